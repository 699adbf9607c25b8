package clock

import (
	"context"
	"testing"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
)

func TestAlignTimeRoundsDownToBucket(t *testing.T) {
	in := time.Date(2026, 3, 4, 9, 37, 42, 0, time.UTC)
	got := AlignTime(in, domain.Timeframe1h)
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAlignTimeFiveMinute(t *testing.T) {
	in := time.Date(2026, 3, 4, 9, 37, 42, 0, time.UTC)
	got := AlignTime(in, domain.Timeframe5m)
	want := time.Date(2026, 3, 4, 9, 35, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBacktestClockEmitsZeroIndexedBarIndex(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	c := &BacktestClock{Start: start, End: end, Timeframe: domain.Timeframe1m}

	var ticks []Tick
	for tk := range c.Run(context.Background()) {
		ticks = append(ticks, tk)
	}

	if len(ticks) != 5 {
		t.Fatalf("got %d ticks, want 5", len(ticks))
	}
	for i, tk := range ticks {
		if tk.BarIndex != int64(i) {
			t.Fatalf("tick %d: got bar index %d, want %d", i, tk.BarIndex, i)
		}
		want := start.Add(time.Duration(i) * time.Minute)
		if !tk.Time.Equal(want) {
			t.Fatalf("tick %d: got time %v, want %v", i, tk.Time, want)
		}
	}
}

func TestBacktestClockStopsOnCancel(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c := &BacktestClock{Start: start, End: end, Timeframe: domain.Timeframe1m}

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Run(ctx)

	<-ch
	cancel()

	drained := 0
	for range ch {
		drained++
		if drained > 60 {
			t.Fatal("clock did not stop after cancellation")
		}
	}
}
