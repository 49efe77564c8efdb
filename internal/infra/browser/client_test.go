package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T, open map[string]bool) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var reloads []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tabs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !open[r.PathValue("id")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":` + r.PathValue("id") + `}`))
	})
	mux.HandleFunc("POST /tabs/{id}/reload", func(w http.ResponseWriter, r *http.Request) {
		if !open[r.PathValue("id")] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		reloads = append(reloads, r.PathValue("id"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &reloads
}

func TestClient_Exists(t *testing.T) {
	srv, _ := newAgent(t, map[string]bool{"7": true})
	client := NewClient(Config{URL: srv.URL + "/"})
	ctx := context.Background()

	ok, err := client.Exists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Exists(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.Exists(ctx, 500)
	assert.Error(t, err)
}

func TestClient_Reload(t *testing.T) {
	srv, reloads := newAgent(t, map[string]bool{"7": true})
	client := NewClient(Config{URL: srv.URL})
	ctx := context.Background()

	require.NoError(t, client.Reload(ctx, 7))
	assert.Equal(t, []string{"7"}, *reloads)

	err := client.Reload(ctx, 9)
	assert.True(t, errors.Is(err, ErrTabNotFound), "got %v", err)
}

func TestClient_AgentDown(t *testing.T) {
	srv, _ := newAgent(t, nil)
	srv.Close()

	client := NewClient(Config{URL: srv.URL})
	_, err := client.Exists(context.Background(), 1)
	assert.Error(t, err)
}
