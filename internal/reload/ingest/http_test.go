package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// ===== Mocks =====

type mockSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (m *mockSink) Submit(ctx context.Context, ev domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// ===== Tests =====

func TestHandler_Accepts(t *testing.T) {
	sink := &mockSink{}
	rec := post(t, NewHandler(sink), `{"type":"navigation_error","tab_id":7}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}

	ev := sink.events[0]
	if ev.Type != domain.EventNavigationError || ev.TabID != 7 {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Errorf("event id %q is not a uuid", ev.ID)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.EventID != ev.ID {
		t.Errorf("response id %q does not match event id %q", resp.EventID, ev.ID)
	}
}

func TestHandler_AcceptsTabZero(t *testing.T) {
	sink := &mockSink{}
	rec := post(t, NewHandler(sink), `{"type":"navigation_committed","tab_id":0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestHandler_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"type":`},
		{"timer event", `{"type":"timer_elapsed","tab_id":7}`},
		{"unknown type", `{"type":"reload","tab_id":7}`},
		{"missing tab", `{"type":"navigation_error"}`},
		{"negative tab", `{"type":"navigation_error","tab_id":-1}`},
		{"unknown field", `{"type":"navigation_error","tab_id":7,"url":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{}
			rec := post(t, NewHandler(sink), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if len(sink.events) != 0 {
				t.Errorf("expected no events, got %d", len(sink.events))
			}
		})
	}
}

func TestHandler_SinkUnavailable(t *testing.T) {
	sink := &mockSink{err: errors.New("queue full")}
	rec := post(t, NewHandler(sink), `{"type":"navigation_error","tab_id":7}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(&mockSink{}).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
