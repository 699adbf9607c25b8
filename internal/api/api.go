// Package api implements the HTTP surface (spec §6): runs, orders,
// candles, and the SSE event stream, all backed by the Run Manager, the
// order projection, the Bar Repository, and the Event Log.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/orders"
	"github.com/weaverhq/weaver/internal/runmanager"
	"github.com/weaverhq/weaver/internal/sse"
)

// Version is reported by the healthz endpoint; set at build time in a
// real release, left as a constant here since this repo has no release
// pipeline of its own.
const Version = "0.1.0"

// Server wires the Run Manager, order projection, Bar Repository, Event
// Log and SSE Broadcaster into one HTTP handler set.
type Server struct {
	runs    *runmanager.Manager
	orders  orders.Repository
	barRepo bars.Repository
	log     eventlog.Log
	sse     *sse.Broadcaster
	startAt time.Time
}

// NewServer builds a Server. sseBroadcaster may be nil only in tests that
// don't exercise the stream endpoint.
func NewServer(runs *runmanager.Manager, orderRepo orders.Repository, barRepo bars.Repository, l eventlog.Log, broadcaster *sse.Broadcaster) *Server {
	return &Server{
		runs:    runs,
		orders:  orderRepo,
		barRepo: barRepo,
		log:     l,
		sse:     broadcaster,
		startAt: time.Now().UTC(),
	}
}

// Register attaches every route in spec §6 to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealthz)

	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/start", s.handleStartRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/stop", s.handleStopRun)
	mux.HandleFunc("DELETE /api/v1/runs/{id}", s.handleDeleteRun)

	mux.HandleFunc("GET /api/v1/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/v1/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /api/v1/orders", s.handleSubmitOrder)

	mux.HandleFunc("GET /api/v1/candles", s.handleCandles)

	if s.sse != nil {
		mux.HandleFunc("GET /api/v1/events/stream", s.sse.ServeHTTP)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// --- response envelope helpers ---

// correlationID returns the inbound X-Correlation-ID, generating one when
// absent, per spec §6.
func correlationID(r *http.Request) string {
	if v := r.Header.Get("X-Correlation-ID"); v != "" {
		return v
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-ID", correlationID(r))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the closed error shape spec §6 mandates for every
// non-2xx response.
type errorEnvelope struct {
	Code          apperr.Code `json:"code"`
	Message       string      `json:"message"`
	Details       any         `json:"details,omitempty"`
	CorrelationID string      `json:"correlation_id"`
	Timestamp     time.Time   `json:"timestamp"`
}

// writeError maps err onto its HTTP status and the closed error envelope.
// A plain (non-*apperr.Error) err is treated as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusForCode(code)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Correlation-ID", correlationID(r))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{
		Code:          code,
		Message:       err.Error(),
		CorrelationID: correlationID(r),
		Timestamp:     time.Now().UTC(),
	})
}

func statusForCode(c apperr.Code) int {
	switch c {
	case apperr.CodeValidation, apperr.CodeBadRequest, apperr.CodeInvalidMode:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict, apperr.CodeNotStartable, apperr.CodeNotStoppable:
		return http.StatusConflict
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- query parameter helpers ---

func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseTimeParam(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func parseUnixParam(r *http.Request, key string) *int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
