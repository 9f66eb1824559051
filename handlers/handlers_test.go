package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hubtask/auth"
	"hubtask/config"
	"hubtask/models"
	"hubtask/repositories"
	"hubtask/services"
	"hubtask/testutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		needsAuth bool
		details   bool
	}{
		{"not authenticated", models.ErrNotAuthenticated, http.StatusUnauthorized, true, false},
		{"wrapped not authenticated", fmt.Errorf("sync: %w", models.ErrNotAuthenticated), http.StatusUnauthorized, true, false},
		{"refresh failed", &models.RefreshFailedError{Message: "expired"}, http.StatusUnauthorized, true, false},
		{"validation", &models.ValidationError{Field: "taskId"}, http.StatusBadRequest, false, false},
		{"upstream code", &models.UpstreamError{Status: 200, Code: 99991663, Msg: "bad", Body: []byte(`{"code":99991663}`)}, http.StatusBadRequest, false, true},
		{"upstream transport", &models.UpstreamError{Status: 502, Body: []byte("gateway")}, http.StatusInternalServerError, false, false},
		{"store", models.ErrStoreUnavailable, http.StatusInternalServerError, false, false},
		{"other", errors.New("boom"), http.StatusInternalServerError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := NewErrorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.False(t, body.Success)
			assert.Equal(t, tt.err.Error(), body.Error)
			assert.Equal(t, tt.needsAuth, body.NeedsAuth)
			if tt.needsAuth {
				assert.Equal(t, models.LoginPath, body.AuthURL)
			}
			assert.Equal(t, tt.details, body.Details != nil)
		})
	}
}

func TestSaveTokens(t *testing.T) {
	tokenRepo := repositories.NewTokenRepository(testutil.NewDB(t), nil)
	h := NewSyncHandler(nil, nil, nil, auth.NewTokenManager(tokenRepo, nil))

	c, rec := newContext(http.MethodPost, "/api/sync/save-tokens", `{"user_access_token":"u-1"}`)
	require.NoError(t, h.SaveTokens(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required tokens", decode(t, rec)["error"])

	c, rec = newContext(http.MethodPost, "/api/sync/save-tokens", `{"user_access_token":"u-1","refresh_token":"r-1"}`)
	require.NoError(t, h.SaveTokens(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	stored, err := tokenRepo.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "u-1", stored.AccessToken)
	assert.Equal(t, "r-1", stored.RefreshToken)
	assert.Equal(t, int64(7200), stored.TTLSeconds)
}

func TestSaveTokensWithoutStore(t *testing.T) {
	h := NewSyncHandler(nil, nil, nil, auth.NewTokenManager(nil, nil))

	c, rec := newContext(http.MethodPost, "/api/sync/save-tokens", `{"user_access_token":"u-1","refresh_token":"r-1"}`)
	require.NoError(t, h.SaveTokens(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestSyncWithoutStoreCarriesEnvelope(t *testing.T) {
	cfg := &config.Config{}
	sync := services.NewSyncService(cfg, nil, nil, nil, nil, nil, nil, nil)
	h := NewSyncHandler(sync, nil, nil, nil)

	c, rec := newContext(http.MethodPost, "/api/sync/tasks", "")
	require.NoError(t, h.Bitable(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, models.ErrStoreUnavailable.Error(), decode(t, rec)["error"])
}

func TestSyncAllStatus(t *testing.T) {
	ok := func(ctx context.Context) (*services.SyncResult, error) {
		return &services.SyncResult{Success: true, Items: 2}, nil
	}
	broken := func(ctx context.Context) (*services.SyncResult, error) {
		return nil, errors.New("upstream down")
	}

	c, rec := newContext(http.MethodPost, "/api/sync/all", "")
	h := NewSyncHandler(nil, nil, services.NewOrchestrator(nil, ok, ok, ok, nil), nil)
	require.NoError(t, h.All(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Full sync completed", decode(t, rec)["message"])

	c, rec = newContext(http.MethodPost, "/api/sync/all", "")
	h = NewSyncHandler(nil, nil, services.NewOrchestrator(nil, ok, ok, broken, nil), nil)
	require.NoError(t, h.All(c))
	assert.Equal(t, http.StatusMultiStatus, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	results := out["results"].(map[string]interface{})
	assert.Equal(t, []interface{}{"Comments sync: upstream down"}, results["errors"])
}

func TestOAuthCallbackVerification(t *testing.T) {
	cfg := &config.Config{LarkBaseURL: "http://lark.invalid"}
	h := NewOAuthHandler(cfg, auth.NewLarkIdentity(cfg, nil), nil)

	c, rec := newContext(http.MethodGet, "/api/oauth/callback", "")
	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	c, rec = newContext(http.MethodPost, "/api/oauth/callback", `{"challenge":"abc123"}`)
	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", decode(t, rec)["challenge"])

	c, rec = newContext(http.MethodPost, "/api/oauth/callback", "")
	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackRejectsTamperedState(t *testing.T) {
	cfg := &config.Config{LarkBaseURL: "http://lark.invalid", StateSecret: "s3cret"}
	h := NewOAuthHandler(cfg, auth.NewLarkIdentity(cfg, nil), nil)

	c, rec := newContext(http.MethodGet, "/api/oauth/callback?code=abc&state=not-a-token", "")
	require.NoError(t, h.Callback(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decode(t, rec)["error"])
}

func TestOAuthLoginRedirect(t *testing.T) {
	cfg := &config.Config{
		LarkBaseURL:   "https://open.larksuite.com/open-apis",
		LarkAppID:     "cli_1",
		PublicBaseURL: "https://hub.example.com",
		OAuthScopes:   "task:task:read",
	}
	h := NewOAuthHandler(cfg, auth.NewLarkIdentity(cfg, nil), nil)

	c, rec := newContext(http.MethodGet, "/api/oauth/login?redirect=https://evil.example.com", "")
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get(echo.HeaderLocation)
	assert.True(t, strings.HasPrefix(location, "https://open.larksuite.com/open-apis/authen/v1/authorize?"))
	assert.Contains(t, location, "redirect_uri=https%3A%2F%2Fhub.example.com%2Fapi%2Foauth%2Fcallback")
	assert.Contains(t, location, "state=%2Factivity")
}

func TestOAuthRefreshRequiresToken(t *testing.T) {
	cfg := &config.Config{}
	h := NewOAuthHandler(cfg, auth.NewLarkIdentity(cfg, nil), nil)

	c, rec := newContext(http.MethodPost, "/api/oauth/refresh", `{"refresh_token":"  "}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing refresh_token", decode(t, rec)["error"])
}

func TestProxyCommentsValidation(t *testing.T) {
	h := NewProxyHandler(nil, nil, nil)

	c, rec := newContext(http.MethodGet, "/api/comments", "")
	require.NoError(t, h.Comments(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newContext(http.MethodGet, "/api/comments?taskId=abc", "")
	require.NoError(t, h.Comments(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "No access token provided", out["error"])
	assert.Equal(t, true, out["needsAuth"])
	assert.Equal(t, models.LoginPath, out["authUrl"])
}

func TestDBSearch(t *testing.T) {
	tasks := repositories.NewTaskRepository(testutil.NewDB(t))
	require.NoError(t, tasks.Upsert(context.Background(), &models.Task{
		ID: "t1", Title: "Deploy API", Status: models.StatusPending, APISource: models.SourceTaskV2, UpdatedAt: 1,
	}))
	h := NewDBHandler(services.NewReadService(tasks, nil, nil), services.NewSearchService(tasks, nil, false))

	c, rec := newContext(http.MethodGet, "/api/db/search", "")
	require.NoError(t, h.Search(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing query parameter", decode(t, rec)["error"])

	c, rec = newContext(http.MethodGet, "/api/db/search?query=deploy", "")
	require.NoError(t, h.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "text", out["searchType"])
	assert.Len(t, out["tasks"], 1)

	c, rec = newContext(http.MethodPost, "/api/db/search", `{"query":"deploy","limit":5}`)
	require.NoError(t, h.Search(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDBReadsWithoutStore(t *testing.T) {
	h := NewDBHandler(services.NewReadService(nil, nil, nil), services.NewSearchService(nil, nil, false))

	c, rec := newContext(http.MethodGet, "/api/db/tasks", "")
	require.NoError(t, h.Tasks(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, models.ErrStoreUnavailable.Error(), decode(t, rec)["error"])
}

func TestDBSyncLogs(t *testing.T) {
	logs := repositories.NewSyncLogRepository(testutil.NewDB(t))
	entry, err := logs.Start(context.Background(), models.SyncTypeComments)
	require.NoError(t, err)
	h := NewDBHandler(services.NewReadService(nil, nil, logs), nil)

	c, rec := newContext(http.MethodGet, "/api/db/sync-logs?limit=5", "")
	require.NoError(t, h.SyncLogs(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, float64(5), out["limit"])
	require.Len(t, out["logs"], 1)
	first := out["logs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, entry.ID, first["id"])
	assert.Equal(t, "running", first["status"])
}
