package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjamilk/campusmarket/pkg/httpclient"
	"github.com/bjamilk/campusmarket/pkg/logger"
	"github.com/bjamilk/campusmarket/pkg/middleware"
)

func newClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return httpclient.New(cfg)
}

func TestRun_CreatesListingsAndReviews(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		users []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		users = append(users, r.Header.Get(middleware.HeaderUserID))
		mu.Unlock()

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "l1"}})
	}))
	defer srv.Close()

	listings := Demo()[:2]
	res, err := New(newClient(), srv.URL+"/", logger.NewNop()).Run(context.Background(), listings)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Listings)
	assert.Equal(t, 3, res.Reviews)
	require.Len(t, paths, 5)
	assert.Equal(t, "/api/v1/listings/textbook", paths[0])
	assert.Equal(t, "/api/v1/listings/textbook/l1/reviews", paths[1])
	assert.Equal(t, "seed-ada", users[0])
	assert.Equal(t, "seed-tunde", users[1])
}

func TestRun_StopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"VALIDATION_ERROR","message":"request validation failed"}}`))
	}))
	defer srv.Close()

	res, err := New(newClient(), srv.URL, logger.NewNop()).Run(context.Background(), Demo())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "create textbook"))
	assert.Zero(t, res.Listings)
}

func TestDemo_ValidKinds(t *testing.T) {
	for _, l := range Demo() {
		assert.True(t, l.Kind.Valid(), l.Kind)
		for _, r := range l.Reviews {
			assert.NotEqual(t, l.Poster.ID, r.By.ID, l.Title)
			assert.GreaterOrEqual(t, r.Rating, 1)
			assert.LessOrEqual(t, r.Rating, 5)
		}
	}
}
