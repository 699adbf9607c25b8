package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

// --- runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	f := domain.RunFilter{
		Status:   domain.RunStatus(r.URL.Query().Get("status")),
		Mode:     domain.Mode(r.URL.Query().Get("mode")),
		Page:     parseIntParam(r, "page", 1),
		PageSize: parseIntParam(r, "page_size", 50),
	}

	runs, total, err := s.runs.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, listResponse[domain.Run]{Items: runs, Total: total, Page: f.Page, PageSize: f.PageSize})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StrategyID string     `json:"strategy_id"`
		Mode       string     `json:"mode"`
		Symbols    []string   `json:"symbols"`
		Timeframe  string     `json:"timeframe"`
		StartTime  *time.Time `json:"start_time,omitempty"`
		EndTime    *time.Time `json:"end_time,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body: "+err.Error()))
		return
	}

	run, err := s.runs.Create(r.Context(), domain.CreateRunRequest{
		StrategyID: body.StrategyID,
		Mode:       domain.Mode(body.Mode),
		Symbols:    body.Symbols,
		Timeframe:  domain.Timeframe(body.Timeframe),
		StartTime:  body.StartTime,
		EndTime:    body.EndTime,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runs.Start(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runs.Stop(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-Correlation-ID", correlationID(r))
	w.WriteHeader(http.StatusNoContent)
}

// --- orders ---

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	f := domain.OrderFilter{
		RunID:     r.URL.Query().Get("run_id"),
		Status:    domain.OrderStatus(r.URL.Query().Get("status")),
		Symbol:    r.URL.Query().Get("symbol"),
		StartTime: parseTimeParam(r, "start_time"),
		EndTime:   parseTimeParam(r, "end_time"),
		Page:      parseIntParam(r, "page", 1),
		PageSize:  parseIntParam(r, "page_size", 50),
	}

	out, total, err := s.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, listResponse[domain.Order]{Items: out, Total: total, Page: f.Page, PageSize: f.PageSize})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, o)
}

// handleSubmitOrder accepts a manual order for a live/paper run. It never
// talks to the Exchange Adapter directly: it appends a
// strategy.PlaceRequest envelope, the same intent a strategy plugin would
// emit, and lets the Domain Router and live bridge carry it the rest of
// the way. A backtest run has no manual order path since its clock owns
// the only valid timeline for placing orders.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RunID         string  `json:"run_id"`
		ClientOrderID string  `json:"client_order_id"`
		Symbol        string  `json:"symbol"`
		Side          string  `json:"side"`
		Type          string  `json:"type"`
		Qty           string  `json:"qty"`
		LimitPrice    *string `json:"limit_price,omitempty"`
		StopPrice     *string `json:"stop_price,omitempty"`
		TimeInForce   string  `json:"time_in_force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.New(apperr.CodeBadRequest, "invalid request body: "+err.Error()))
		return
	}
	if body.RunID == "" || body.ClientOrderID == "" || body.Symbol == "" {
		writeError(w, r, apperr.New(apperr.CodeValidation, "run_id, client_order_id and symbol are required"))
		return
	}

	run, err := s.runs.Get(r.Context(), body.RunID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if run.Mode == domain.ModeBacktest {
		writeError(w, r, apperr.New(apperr.CodeValidation, "manual order submission is not valid for backtest runs"))
		return
	}
	if run.Status != domain.RunRunning {
		writeError(w, r, apperr.New(apperr.CodeConflict, "run "+run.ID+" is not running"))
		return
	}

	qty, err := decimal.NewFromString(body.Qty)
	if err != nil {
		writeError(w, r, apperr.New(apperr.CodeValidation, "qty must be a decimal string"))
		return
	}

	payload := map[string]any{
		"clientOrderId": body.ClientOrderID,
		"symbol":        body.Symbol,
		"side":          body.Side,
		"type":          body.Type,
		"qty":           qty.String(),
		"timeInForce":   body.TimeInForce,
	}
	if body.LimitPrice != nil {
		payload["limitPrice"] = *body.LimitPrice
	}
	if body.StopPrice != nil {
		payload["stopPrice"] = *body.StopPrice
	}

	corrID := correlationID(r)
	if _, err := s.log.Append(r.Context(), eventlog.NewEnvelope(
		eventlog.EventStrategyPlaceRequest, "api", run.ID, corrID, payload,
	)); err != nil {
		writeError(w, r, apperr.Wrap(apperr.CodeInternal, "append strategy.PlaceRequest", err))
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]string{
		"clientOrderId": body.ClientOrderID,
		"runId":         run.ID,
		"status":        "accepted",
	})
}

// --- candles ---

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	tf := domain.Timeframe(r.URL.Query().Get("timeframe"))
	if symbol == "" || !tf.Valid() {
		writeError(w, r, apperr.New(apperr.CodeValidation, "symbol and a valid timeframe are required"))
		return
	}

	out, err := s.barRepo.GetBars(r.Context(), bars.Filter{
		Symbol:    symbol,
		Timeframe: tf,
		From:      parseUnixParam(r, "from"),
		To:        parseUnixParam(r, "to"),
		Limit:     parseIntParam(r, "limit", 500),
	})
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.CodeInternal, "query candles", err))
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// listResponse is the common pagination envelope used by every list
// endpoint.
type listResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}
