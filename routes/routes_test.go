package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"hubtask/auth"
	"hubtask/config"
	"hubtask/handlers"
	"hubtask/services"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newTestServer() *echo.Echo {
	cfg := &config.Config{}
	identity := auth.NewLarkIdentity(cfg, nil)
	tokens := auth.NewTokenManager(nil, identity)
	ok := func(ctx context.Context) (*services.SyncResult, error) {
		return &services.SyncResult{Success: true}, nil
	}

	e := NewServer()
	RegisterRoutes(e, Handlers{
		OAuth: handlers.NewOAuthHandler(cfg, identity, tokens),
		Proxy: handlers.NewProxyHandler(nil, tokens, identity),
		Sync:  handlers.NewSyncHandler(nil, nil, services.NewOrchestrator(nil, ok, ok, ok, nil), tokens),
		DB:    handlers.NewDBHandler(services.NewReadService(nil, nil, nil), services.NewSearchService(nil, nil, false)),
	}, "cron-secret")
	return e
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	e := newTestServer()

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"preflight", http.MethodOptions, "/api/sync/all", http.StatusOK},
		{"sync all without secret", http.MethodPost, "/api/sync/all", http.StatusUnauthorized},
		{"sync all via cron GET", http.MethodGet, "/api/sync/all?secret=cron-secret", http.StatusOK},
		{"sync all via POST", http.MethodPost, "/api/sync/all?secret=cron-secret", http.StatusOK},
		{"db without store", http.MethodGet, "/api/db/activity", http.StatusInternalServerError},
		{"oauth ping", http.MethodGet, "/api/oauth/callback", http.StatusOK},
		{"comments need task", http.MethodGet, "/api/comments", http.StatusBadRequest},
		{"unknown", http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.method, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		})
	}
}
