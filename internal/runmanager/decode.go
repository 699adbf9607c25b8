package runmanager

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/strategy"
)

// decodeWindow builds a strategy.Window from a data.WindowReady envelope.
// The Backtest Engine's own payload stores "bars" as a native []domain.Bar
// (eventlog.MemLog never serializes it), while a durable log round-trips
// it through JSON/BSON as []any of map[string]any — both shapes are
// handled so the same dispatch path works regardless of backend.
func decodeWindow(env eventlog.Envelope) (strategy.Window, bool) {
	win := strategy.Window{
		CorrelationID: env.CorrelationID,
		Symbol:        stringField(env.Payload, "symbol"),
		Timeframe:     domain.Timeframe(stringField(env.Payload, "timeframe")),
	}

	raw, ok := env.Payload["bars"]
	if !ok {
		return win, true
	}

	switch bars := raw.(type) {
	case []domain.Bar:
		win.Bars = bars
	case []any:
		win.Bars = make([]domain.Bar, 0, len(bars))
		for _, item := range bars {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			win.Bars = append(win.Bars, domain.Bar{
				Symbol:    stringField(m, "symbol"),
				Timeframe: domain.Timeframe(stringField(m, "timeframe")),
				Timestamp: timeField(m, "timestamp"),
				Open:      floatField(m, "open"),
				High:      floatField(m, "high"),
				Low:       floatField(m, "low"),
				Close:     floatField(m, "close"),
				Volume:    floatField(m, "volume"),
			})
		}
	default:
		return win, false
	}
	return win, true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func timeField(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	}
	return time.Time{}
}

func decField(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case string:
		d, _ := decimal.NewFromString(v)
		return d
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

func decPtrField(m map[string]any, key string) *decimal.Decimal {
	if _, ok := m[key]; !ok {
		return nil
	}
	d := decField(m, key)
	return &d
}
