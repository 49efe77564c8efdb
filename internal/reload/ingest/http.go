// Package ingest accepts navigation events from the browser over HTTP.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// maxBodyBytes bounds a single event payload.
const maxBodyBytes = 4 << 10

// Sink receives accepted events.
type Sink interface {
	Submit(ctx context.Context, ev domain.Event) error
}

// Request is the body of POST /events.
type Request struct {
	Type  domain.EventType `json:"type"`
	TabID *domain.TabID    `json:"tab_id"`
}

// Response is returned for accepted events.
type Response struct {
	EventID string `json:"event_id"`
}

// Handler serves POST /events. Timer events are produced internally and are rejected here.
type Handler struct {
	sink Sink
	log  *slog.Logger
}

// NewHandler creates an ingest handler.
func NewHandler(sink Sink) *Handler {
	return &Handler{
		sink: sink,
		log:  slog.Default().With("component", "ingest"),
	}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /events", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event: "+err.Error())
		return
	}

	if req.Type != domain.EventNavigationError && req.Type != domain.EventNavigationCommitted {
		writeError(w, http.StatusBadRequest, "unsupported event type")
		return
	}
	if req.TabID == nil || *req.TabID < 0 {
		writeError(w, http.StatusBadRequest, "tab_id must be a non-negative integer")
		return
	}

	ev := domain.Event{
		ID:    uuid.NewString(),
		Type:  req.Type,
		TabID: *req.TabID,
	}

	if err := h.sink.Submit(r.Context(), ev); err != nil {
		h.log.Warn("Failed to submit event", "event_id", ev.ID, "tab", ev.TabID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "event queue unavailable")
		return
	}

	h.log.Debug("Event accepted", "event_id", ev.ID, "type", ev.Type, "tab", ev.TabID)
	writeJSON(w, http.StatusAccepted, Response{EventID: ev.ID})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
