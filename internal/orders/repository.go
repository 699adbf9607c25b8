// Package orders maintains the durable, queryable projection of order
// state described in spec §3/§6: a read model built by folding every
// orders.* envelope the Event Log carries, so the HTTP API can list and
// fetch orders without reaching into a live run's in-memory engine or
// live bridge.
package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/domain"
)

// Repository is the read/write contract over the order projection.
type Repository interface {
	Upsert(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error)

	// PruneTerminal deletes terminal orders created before cutoff,
	// returning the number of rows removed. Non-terminal orders are
	// never pruned regardless of age.
	PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormRepository persists the order projection via GORM, mirroring
// runmanager.GormRepository's structure for the Run projection.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps db. Migrate must be called once before use.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates/updates the orders table.
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(&domain.Order{})
}

func (r *GormRepository) Upsert(ctx context.Context, o domain.Order) error {
	return r.db.WithContext(ctx).Save(&o).Error
}

func (r *GormRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if err == gorm.ErrRecordNotFound {
		return domain.Order{}, apperr.New(apperr.CodeNotFound, "order "+id+" not found")
	}
	return o, err
}

// PruneTerminal deletes terminal orders older than cutoff in a single
// bounded DELETE, no per-row fetch-then-delete.
func (r *GormRepository) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := []domain.OrderStatus{domain.OrderFilled, domain.OrderCancelled, domain.OrderRejected, domain.OrderExpired}
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", terminal, cutoff).
		Delete(&domain.Order{})
	return res.RowsAffected, res.Error
}

func (r *GormRepository) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	page, pageSize := normalizePage(f.Page, f.PageSize)
	q := r.db.WithContext(ctx).Model(&domain.Order{})
	q = applyOrderFilter(q, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Order
	err := q.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&out).Error
	return out, total, err
}

func applyOrderFilter(q *gorm.DB, f domain.OrderFilter) *gorm.DB {
	if f.RunID != "" {
		q = q.Where("run_id = ?", f.RunID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.StartTime != nil {
		q = q.Where("created_at >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		q = q.Where("created_at < ?", *f.EndTime)
	}
	return q
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return page, pageSize
}

// MemRepository is an in-process Repository for tests and database-less
// deployments, mirroring runmanager.MemRepository's semantics exactly.
type MemRepository struct {
	mu   sync.Mutex
	rows map[string]domain.Order
}

// NewMemRepository builds an empty in-memory order projection.
func NewMemRepository() *MemRepository {
	return &MemRepository{rows: make(map[string]domain.Order)}
}

func (r *MemRepository) Upsert(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[o.ID] = o
	return nil
}

func (r *MemRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return domain.Order{}, apperr.New(apperr.CodeNotFound, fmt.Sprintf("order %s not found", id))
	}
	return o, nil
}

func (r *MemRepository) PruneTerminal(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned int64
	for id, o := range r.rows {
		if o.Status.Terminal() && o.CreatedAt.Before(cutoff) {
			delete(r.rows, id)
			pruned++
		}
	}
	return pruned, nil
}

func (r *MemRepository) List(_ context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]domain.Order, 0, len(r.rows))
	for _, o := range r.rows {
		if f.RunID != "" && o.RunID != f.RunID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Symbol != "" && o.Symbol != f.Symbol {
			continue
		}
		if f.StartTime != nil && o.CreatedAt.Before(*f.StartTime) {
			continue
		}
		if f.EndTime != nil && !o.CreatedAt.Before(*f.EndTime) {
			continue
		}
		matched = append(matched, o)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	page, pageSize := normalizePage(f.Page, f.PageSize)
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []domain.Order{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}
