// Package domain holds the core entities shared across Weaver's run
// orchestration and event plane: runs, orders, fills, positions and bars.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Mode is the execution mode a run operates under.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeBacktest, ModePaper, ModeLive:
		return true
	}
	return false
}

// Timeframe is one of the canonical bar durations Weaver understands.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Period returns the wall-clock duration one bar of this timeframe spans.
func (t Timeframe) Period() time.Duration {
	switch t {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe30m:
		return 30 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (t Timeframe) Valid() bool {
	return t.Period() > 0
}

// RunStatus is a node in the run lifecycle DAG:
// pending -> running -> {stopped | completed | error}.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunStopped   RunStatus = "stopped"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// Terminal reports whether the status is one from which no further
// transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStopped, RunCompleted, RunError:
		return true
	}
	return false
}

// Run is a trading session: the persisted, audited record of one strategy
// execution. Status is mutated only by the Run Manager; the Run itself is
// never destroyed, only its in-memory RunContext is released.
type Run struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	StrategyID  string     `json:"strategyId" gorm:"size:128;index"`
	Mode        Mode       `json:"mode" gorm:"size:16;index"`
	Symbols     []string   `json:"symbols" gorm:"-"`
	SymbolsCSV  string     `json:"-" gorm:"column:symbols_csv;size:1024"`
	Timeframe   Timeframe  `json:"timeframe" gorm:"size:8"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Status      RunStatus  `json:"status" gorm:"size:16;index"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ErrorMsg    string     `json:"errorMessage,omitempty" gorm:"size:1024"`
	StatsJSON   string     `json:"-" gorm:"column:stats_json;type:text"`
	Stats       map[string]any `json:"stats,omitempty" gorm:"-"`
}

// TableName pins the GORM table name regardless of struct name changes.
func (Run) TableName() string { return "runs" }

// BeforeSave flattens the in-memory Symbols slice and Stats map into the
// columns GORM actually persists (symbols_csv, stats_json), so callers
// never have to remember to keep the two in sync themselves.
func (r *Run) BeforeSave(tx *gorm.DB) error {
	r.SymbolsCSV = strings.Join(r.Symbols, ",")
	if r.Stats != nil {
		b, err := json.Marshal(r.Stats)
		if err != nil {
			return err
		}
		r.StatsJSON = string(b)
	}
	return nil
}

// AfterFind reconstructs Symbols and Stats from the persisted columns.
func (r *Run) AfterFind(tx *gorm.DB) error {
	if r.SymbolsCSV != "" {
		r.Symbols = strings.Split(r.SymbolsCSV, ",")
	}
	if r.StatsJSON != "" {
		return json.Unmarshal([]byte(r.StatsJSON), &r.Stats)
	}
	return nil
}

// CreateRunRequest is the validated input to Manager.Create.
type CreateRunRequest struct {
	StrategyID string
	Mode       Mode
	Symbols    []string
	Timeframe  Timeframe
	StartTime  *time.Time
	EndTime    *time.Time
}

// RunFilter narrows Manager.List queries.
type RunFilter struct {
	Status   RunStatus
	Mode     Mode
	Page     int
	PageSize int
}
