package runmanager

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/domain"
)

// Repository persists Run rows across Manager restarts. The Manager's
// Recover step depends on a durable implementation; MemRepository exists
// so the Manager is fully usable (minus restart recovery) without a
// database configured, e.g. in tests.
type Repository interface {
	Create(ctx context.Context, run domain.Run) error
	Update(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, f domain.RunFilter) ([]domain.Run, int64, error)
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status domain.RunStatus) ([]domain.Run, error)
}

// GormRepository is the durable Repository, backed by the same
// gorm.io/gorm + gorm.io/driver/mysql stack domain.Run is already tagged
// for.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the runs table. Call once at startup.
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(&domain.Run{})
}

func (r *GormRepository) Create(ctx context.Context, run domain.Run) error {
	return r.db.WithContext(ctx).Create(&run).Error
}

func (r *GormRepository) Update(ctx context.Context, run domain.Run) error {
	return r.db.WithContext(ctx).Save(&run).Error
}

func (r *GormRepository) Get(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Run{}, apperr.New(apperr.CodeNotFound, "run "+id+" not found")
	}
	return run, err
}

func (r *GormRepository) List(ctx context.Context, f domain.RunFilter) ([]domain.Run, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Run{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Mode != "" {
		q = q.Where("mode = ?", f.Mode)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	var runs []domain.Run
	err := q.Order("created_at desc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&runs).Error
	return runs, total, err
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Run{}, "id = ?", id).Error
}

func (r *GormRepository) ListByStatus(ctx context.Context, status domain.RunStatus) ([]domain.Run, error) {
	var runs []domain.Run
	err := r.db.WithContext(ctx).Where("status = ?", status).Find(&runs).Error
	return runs, err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	return page, pageSize
}

// MemRepository is an in-process Repository for tests and
// database-less deployments. It implements the same pagination and
// filter semantics as GormRepository so Manager behaves identically
// against either.
type MemRepository struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func NewMemRepository() *MemRepository {
	return &MemRepository{runs: make(map[string]domain.Run)}
}

func (m *MemRepository) Create(_ context.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *MemRepository) Update(_ context.Context, run domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return apperr.New(apperr.CodeNotFound, "run "+run.ID+" not found")
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemRepository) Get(_ context.Context, id string) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.Run{}, apperr.New(apperr.CodeNotFound, "run "+id+" not found")
	}
	return run, nil
}

func (m *MemRepository) List(_ context.Context, f domain.RunFilter) ([]domain.Run, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Run
	for _, run := range m.runs {
		if f.Status != "" && run.Status != f.Status {
			continue
		}
		if f.Mode != "" && run.Mode != f.Mode {
			continue
		}
		matched = append(matched, run)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	page, pageSize := normalizePage(f.Page, f.PageSize)
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *MemRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return nil
}

func (m *MemRepository) ListByStatus(_ context.Context, status domain.RunStatus) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, run := range m.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}
