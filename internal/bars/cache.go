package bars

import (
	"context"
	"sort"
	"sync"

	"github.com/weaverhq/weaver/internal/domain"
)

// Cache is an in-memory, read-mostly preload of one run's bar window,
// keyed by symbol. The Backtest Engine loads the run's full range once
// from a Repository and then calls Next repeatedly as the Clock ticks, so
// a single run never re-queries durable storage per tick.
type Cache struct {
	mu   sync.RWMutex
	rows map[string][]domain.Bar // symbol -> ascending timestamp
	pos  map[string]int
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{
		rows: make(map[string][]domain.Bar),
		pos:  make(map[string]int),
	}
}

// Preload populates the cache for one symbol from repo, covering
// [from, to).
func (c *Cache) Preload(ctx context.Context, repo Repository, symbol string, tf domain.Timeframe, from, to int64) error {
	rows, err := repo.GetBars(ctx, Filter{Symbol: symbol, Timeframe: tf, From: &from, To: &to, Limit: 1_000_000})
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[symbol] = rows
	c.pos[symbol] = 0
	return nil
}

// Next returns the next bar for symbol in timestamp order and advances the
// cursor, or ok=false when the preloaded window is exhausted.
func (c *Cache) Next(symbol string) (bar domain.Bar, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := c.rows[symbol]
	i := c.pos[symbol]
	if i >= len(rows) {
		return domain.Bar{}, false
	}
	c.pos[symbol] = i + 1
	return rows[i], true
}

// Peek returns the next bar without advancing the cursor.
func (c *Cache) Peek(symbol string) (bar domain.Bar, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := c.rows[symbol]
	i := c.pos[symbol]
	if i >= len(rows) {
		return domain.Bar{}, false
	}
	return rows[i], true
}

// Window returns up to n bars ending at the cursor (exclusive of the next
// unconsumed bar), oldest first — the FetchWindow intent's lookback.
func (c *Cache) Window(symbol string, n int) []domain.Bar {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := c.rows[symbol]
	i := c.pos[symbol]
	start := i - n
	if start < 0 {
		start = 0
	}
	out := make([]domain.Bar, i-start)
	copy(out, rows[start:i])
	return out
}
