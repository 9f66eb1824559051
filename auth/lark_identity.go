package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"hubtask/config"
	"hubtask/models"

	"golang.org/x/oauth2"
)

// UserToken is a user access/refresh pair as returned by the Lark OIDC
// endpoints.
type UserToken struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Record converts the pair into the persisted singleton row issued at now.
func (t *UserToken) Record(now time.Time) *models.OAuthToken {
	return &models.OAuthToken{
		ID:                models.DefaultTokenID,
		AccessToken:       t.AccessToken,
		RefreshToken:      t.RefreshToken,
		IssuedAtMillis:    now.UnixMilli(),
		TTLSeconds:        t.ExpiresIn,
		RefreshTTLSeconds: t.RefreshExpiresIn,
	}
}

// LarkIdentity talks to the Lark auth and authen endpoints with the app
// credentials.
type LarkIdentity struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
}

func NewLarkIdentity(cfg *config.Config, httpClient *http.Client) *LarkIdentity {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &LarkIdentity{
		baseURL:    cfg.LarkBaseURL,
		appID:      cfg.LarkAppID,
		appSecret:  cfg.LarkAppSecret,
		httpClient: httpClient,
	}
}

// AuthorizeURL builds the user consent URL.
func (l *LarkIdentity) AuthorizeURL(redirectURI, scope, state string) string {
	q := url.Values{}
	q.Set("app_id", l.appID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", scope)
	q.Set("state", state)
	return l.baseURL + "/authen/v1/authorize?" + q.Encode()
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type appTokenResponse struct {
	envelope
	AppAccessToken    string `json:"app_access_token"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

type userTokenResponse struct {
	envelope
	Data UserToken `json:"data"`
}

// AppAccessToken performs the client-credentials exchange.
func (l *LarkIdentity) AppAccessToken(ctx context.Context) (string, error) {
	var resp appTokenResponse
	if err := l.post(ctx, "/auth/v3/app_access_token/internal", "", l.credentials(), &resp); err != nil {
		return "", fmt.Errorf("failed to get app_access_token: %w", err)
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("failed to get app_access_token: %w",
			&models.UpstreamError{Code: resp.Code, Msg: resp.Msg})
	}
	return resp.AppAccessToken, nil
}

// TenantToken returns an application-scoped bearer for APIs that do not need
// a user identity.
func (l *LarkIdentity) TenantToken(ctx context.Context) (*oauth2.Token, error) {
	var resp appTokenResponse
	if err := l.post(ctx, "/auth/v3/tenant_access_token/internal", "", l.credentials(), &resp); err != nil {
		return nil, fmt.Errorf("failed to get tenant_access_token: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("failed to get tenant_access_token: %w",
			&models.UpstreamError{Code: resp.Code, Msg: resp.Msg})
	}
	return &oauth2.Token{
		AccessToken: resp.TenantAccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(resp.Expire) * time.Second),
	}, nil
}

// TenantTokenSource caches the tenant token for the lifetime of the returned
// source. Callers create one per request or per sync run.
func (l *LarkIdentity) TenantTokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, tenantSource{ctx: ctx, identity: l})
}

type tenantSource struct {
	ctx      context.Context
	identity *LarkIdentity
}

func (s tenantSource) Token() (*oauth2.Token, error) {
	return s.identity.TenantToken(s.ctx)
}

// ExchangeCode trades an authorization code for a user token pair.
func (l *LarkIdentity) ExchangeCode(ctx context.Context, code string) (*UserToken, error) {
	return l.userToken(ctx, "/authen/v1/oidc/access_token", map[string]string{
		"grant_type": "authorization_code",
		"code":       code,
	})
}

// Refresh trades a refresh token for a new pair. Provider rejections come
// back as *models.RefreshFailedError.
func (l *LarkIdentity) Refresh(ctx context.Context, refreshToken string) (*UserToken, error) {
	tok, err := l.userToken(ctx, "/authen/v1/oidc/refresh_access_token", map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, &models.RefreshFailedError{Message: err.Error()}
	}
	return tok, nil
}

func (l *LarkIdentity) userToken(ctx context.Context, path string, body map[string]string) (*UserToken, error) {
	appToken, err := l.AppAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp userTokenResponse
	if err := l.post(ctx, path, appToken, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &models.UpstreamError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data.AccessToken == "" {
		return nil, &models.UpstreamError{Msg: "empty access_token in response"}
	}
	return &resp.Data, nil
}

func (l *LarkIdentity) credentials() map[string]string {
	return map[string]string{"app_id": l.appID, "app_secret": l.appSecret}
}

func (l *LarkIdentity) post(ctx context.Context, path, bearer string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &models.UpstreamError{Status: resp.StatusCode, Msg: "invalid JSON response", Body: raw}
	}
	return nil
}
