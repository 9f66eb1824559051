package handlers

import (
	"context"
	"net/http"

	"hubtask/auth"
	"hubtask/services"

	"github.com/labstack/echo/v4"
)

type SyncHandler struct {
	sync         *services.SyncService
	embeddings   *services.EmbeddingService
	orchestrator *services.Orchestrator
	tokens       *auth.TokenManager
}

func NewSyncHandler(sync *services.SyncService, embeddings *services.EmbeddingService, orchestrator *services.Orchestrator, tokens *auth.TokenManager) *SyncHandler {
	return &SyncHandler{sync: sync, embeddings: embeddings, orchestrator: orchestrator, tokens: tokens}
}

func respondSync(c echo.Context, run func(ctx context.Context) (*services.SyncResult, error)) error {
	result, err := run(c.Request().Context())
	if err != nil {
		status, body := NewErrorResponse(err)
		if result != nil {
			body.SyncID = result.SyncID
		}
		return c.JSON(status, body)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) Bitable(c echo.Context) error {
	return respondSync(c, h.sync.SyncBitable)
}

func (h *SyncHandler) TaskV2(c echo.Context) error {
	return respondSync(c, h.sync.SyncTaskV2)
}

func (h *SyncHandler) Comments(c echo.Context) error {
	return respondSync(c, h.sync.SyncComments)
}

func (h *SyncHandler) Embeddings(c echo.Context) error {
	return respondSync(c, h.embeddings.SyncEmbeddings)
}

// All runs every sub-sync. A partial failure answers 207.
func (h *SyncHandler) All(c echo.Context) error {
	out := h.orchestrator.RunAll(c.Request().Context())
	status := http.StatusOK
	if !out.Success {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, out)
}

type saveTokensRequest struct {
	UserAccessToken string `json:"user_access_token"`
	RefreshToken    string `json:"refresh_token"`
	ExpiresIn       int64  `json:"expires_in"`
}

// SaveTokens stores a client-held pair for scheduled syncs.
func (h *SyncHandler) SaveTokens(c echo.Context) error {
	var body saveTokensRequest
	if err := c.Bind(&body); err != nil || body.UserAccessToken == "" || body.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing required tokens"})
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 7200
	}

	err := h.tokens.Store(c.Request().Context(), &auth.UserToken{
		AccessToken:  body.UserAccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    body.ExpiresIn,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Tokens saved for scheduled sync",
	})
}
