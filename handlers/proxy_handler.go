package handlers

import (
	"context"
	"net/http"

	"hubtask/auth"
	"hubtask/models"
	"hubtask/services"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	HeaderRefreshToken    = "X-Refresh-Token"
	HeaderNewAccessToken  = "X-New-Access-Token"
	HeaderNewRefreshToken = "X-New-Refresh-Token"
)

// UserRefresher exchanges a client-held refresh token. Implemented by
// auth.LarkIdentity.
type UserRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.UserToken, error)
}

// ProxyHandler serves live upstream reads.
type ProxyHandler struct {
	proxy     *services.ProxyService
	tokens    *auth.TokenManager
	refresher UserRefresher
}

func NewProxyHandler(proxy *services.ProxyService, tokens *auth.TokenManager, refresher UserRefresher) *ProxyHandler {
	return &ProxyHandler{proxy: proxy, tokens: tokens, refresher: refresher}
}

// Tasks lists Task-v2 tasks. With all=true it lists the signed-in user's
// tasks, otherwise the configured tasklists.
func (h *ProxyHandler) Tasks(c echo.Context) error {
	ctx := c.Request().Context()
	withComments := c.QueryParam("comments") == "true"

	var (
		resp *services.TasksResponse
		err  error
	)
	if c.QueryParam("all") == "true" {
		token := bearerToken(c)
		if token == "" {
			if token, err = h.tokens.ValidAccessToken(ctx); err != nil {
				return respondError(c, err)
			}
		}
		resp, err = h.proxy.ListMyTasks(ctx, token, withComments)
	} else {
		resp, err = h.proxy.ListTasklistTasks(ctx, c.QueryParam("tasklist"), withComments)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ProxyHandler) Bitable(c echo.Context) error {
	resp, err := h.proxy.ListBitable(c.Request().Context(), c.QueryParam("tableId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Comments lists a task's comments with the caller's user token. When only a
// refresh token is sent, it is exchanged first and the new pair is returned
// in the X-New-* headers.
func (h *ProxyHandler) Comments(c echo.Context) error {
	taskID := c.QueryParam("taskId")
	if taskID == "" {
		return respondError(c, &models.ValidationError{Field: "taskId"})
	}

	ctx := c.Request().Context()
	accessToken := bearerToken(c)
	if accessToken == "" {
		if refreshToken := c.Request().Header.Get(HeaderRefreshToken); refreshToken != "" {
			token, err := h.refresher.Refresh(ctx, refreshToken)
			if err != nil {
				return respondError(c, err)
			}
			accessToken = token.AccessToken
			c.Response().Header().Set(HeaderNewAccessToken, token.AccessToken)
			c.Response().Header().Set(HeaderNewRefreshToken, token.RefreshToken)

			if _, err := h.tokens.RotateIfCurrent(ctx, refreshToken, token); err != nil {
				logrus.WithError(err).Warn("Failed to persist rotated token")
			}
		}
	}
	if accessToken == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:     "No access token provided",
			NeedsAuth: true,
			AuthURL:   models.LoginPath,
		})
	}

	resp, err := h.proxy.TaskComments(ctx, accessToken, taskID)
	if err != nil {
		status, body := NewErrorResponse(err)
		body.TaskID = taskID
		return c.JSON(status, body)
	}
	return c.JSON(http.StatusOK, resp)
}
