package handlers

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"hubtask/auth"
	"hubtask/config"
	"hubtask/utils"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const stateTTL = 10 * time.Minute

type OAuthHandler struct {
	cfg      *config.Config
	identity *auth.LarkIdentity
	tokens   *auth.TokenManager
}

func NewOAuthHandler(cfg *config.Config, identity *auth.LarkIdentity, tokens *auth.TokenManager) *OAuthHandler {
	return &OAuthHandler{cfg: cfg, identity: identity, tokens: tokens}
}

func (h *OAuthHandler) redirectURI(c echo.Context) string {
	if h.cfg.OAuthRedirectURI != "" {
		return h.cfg.OAuthRedirectURI
	}
	base := h.cfg.PublicBaseURL
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}
	return base + "/api/oauth/callback"
}

// Login sends the browser to the Lark authorize page. The post-login path
// travels in the state parameter, signed when STATE_SECRET is set.
func (h *OAuthHandler) Login(c echo.Context) error {
	redirect := utils.SafeRedirect(c.QueryParam("redirect"))
	state := redirect
	if h.cfg.StateSecret != "" {
		signed, err := utils.SignState([]byte(h.cfg.StateSecret), redirect, stateTTL)
		if err != nil {
			return respondError(c, err)
		}
		state = signed
	}
	return c.Redirect(http.StatusFound, h.identity.AuthorizeURL(h.redirectURI(c), h.cfg.OAuthScopes, state))
}

func (h *OAuthHandler) stateRedirect(state string) (string, error) {
	if h.cfg.StateSecret == "" {
		return utils.SafeRedirect(state), nil
	}
	return utils.ParseState([]byte(h.cfg.StateSecret), state)
}

type challengeRequest struct {
	Challenge string `json:"challenge"`
}

// Callback finishes the authorization-code flow. It also answers the
// platform's URL verification: a POST challenge is echoed and a bare GET
// returns {status:"ok"}.
func (h *OAuthHandler) Callback(c echo.Context) error {
	req := c.Request()
	if req.Method == http.MethodPost {
		var body challengeRequest
		if err := c.Bind(&body); err == nil && body.Challenge != "" {
			return c.JSON(http.StatusOK, echo.Map{"challenge": body.Challenge})
		}
	}

	code := c.QueryParam("code")
	if code == "" {
		if req.Method == http.MethodGet {
			return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing authorization code"})
	}

	logger := logrus.WithFields(logrus.Fields{"handler": "OAuthCallback", "provider": "lark"})

	redirect, err := h.stateRedirect(c.QueryParam("state"))
	if err != nil {
		logger.WithError(err).Warn("Invalid state token")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_state"})
	}

	ctx := req.Context()
	token, err := h.identity.ExchangeCode(ctx, code)
	if err != nil {
		logger.WithError(err).Error("Token exchange failed")
		return c.String(http.StatusInternalServerError, "OAuth Error: "+err.Error())
	}

	if err := h.tokens.Store(ctx, token); err != nil {
		logger.WithError(err).Warn("Tokens not persisted; scheduled sync will need save-tokens")
	}
	logger.Info("Lark account connected")

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return successPage.Execute(c.Response(), successPageData{
		AccessPreview:  preview(token.AccessToken),
		RefreshPreview: preview(token.RefreshToken),
		ExpiresIn:      token.ExpiresIn,
		Tokens: clientTokens{
			UserAccessToken:  token.AccessToken,
			RefreshToken:     token.RefreshToken,
			ExpiresIn:        token.ExpiresIn,
			RefreshExpiresIn: token.RefreshExpiresIn,
		},
		Redirect: redirect,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a client-held refresh token. When it is also the stored
// token the new pair is persisted, since Lark refresh tokens are single use.
func (h *OAuthHandler) Refresh(c echo.Context) error {
	var body refreshRequest
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing refresh_token"})
	}

	ctx := c.Request().Context()
	token, err := h.identity.Refresh(ctx, body.RefreshToken)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if rotated, err := h.tokens.RotateIfCurrent(ctx, body.RefreshToken, token); err != nil {
		logrus.WithError(err).Warn("Failed to persist rotated token")
	} else if rotated {
		logrus.Info("Stored OAuth token rotated by client refresh")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":            true,
		"access_token":       token.AccessToken,
		"refresh_token":      token.RefreshToken,
		"expires_in":         token.ExpiresIn,
		"refresh_expires_in": token.RefreshExpiresIn,
	})
}

func preview(token string) string {
	if len(token) > 50 {
		return token[:50] + "..."
	}
	return token
}

type clientTokens struct {
	UserAccessToken  string `json:"user_access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type successPageData struct {
	AccessPreview  string
	RefreshPreview string
	ExpiresIn      int64
	Tokens         clientTokens
	Redirect       string
}

var successPage = template.Must(template.New("oauth-success").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Authorization Successful</title>
  <style>
    body { font-family: system-ui; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .card { background: white; padding: 40px; border-radius: 16px; box-shadow: 0 4px 20px rgba(0,0,0,0.1); text-align: center; max-width: 400px; }
    h1 { color: #10b981; }
    .tokens { background: #f0f9ff; padding: 16px; border-radius: 8px; text-align: left; font-size: 12px; word-break: break-all; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorization Successful</h1>
    <p>Your Lark account has been connected to HubTask.</p>
    <div class="tokens">
      <p><b>Access Token:</b><br/>{{.AccessPreview}}</p>
      <p><b>Refresh Token:</b><br/>{{.RefreshPreview}}</p>
      <p><b>Expires in:</b> {{.ExpiresIn}} seconds</p>
    </div>
    <script>
      const tokens = {{.Tokens}};
      localStorage.setItem('lark_tokens', JSON.stringify({
        user_access_token: tokens.user_access_token,
        refresh_token: tokens.refresh_token,
        expires_in: tokens.expires_in,
        savedAt: Date.now()
      }));
      setTimeout(function () { window.location.href = {{.Redirect}}; }, 2000);
    </script>
  </div>
</body>
</html>
`))
