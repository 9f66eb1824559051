package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hubtask/models"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the envelope every failed request returns.
type ErrorResponse struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
	NeedsAuth bool            `json:"needsAuth,omitempty"`
	AuthURL   string          `json:"authUrl,omitempty"`
	SyncID    string          `json:"syncId,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// NewErrorResponse classifies err and returns the status code and envelope
// for it.
func NewErrorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Success: false, Error: err.Error()}

	var (
		refreshErr    *models.RefreshFailedError
		upstreamErr   *models.UpstreamError
		validationErr *models.ValidationError
	)
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		body.NeedsAuth, body.AuthURL = true, models.LoginPath
		return http.StatusUnauthorized, body
	case errors.As(err, &refreshErr):
		body.NeedsAuth, body.AuthURL = true, models.LoginPath
		return http.StatusUnauthorized, body
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, body
	case errors.As(err, &upstreamErr):
		if json.Valid(upstreamErr.Body) {
			body.Details = upstreamErr.Body
		}
		if upstreamErr.Code != 0 {
			return http.StatusBadRequest, body
		}
		return http.StatusInternalServerError, body
	}
	return http.StatusInternalServerError, body
}

func respondError(c echo.Context, err error) error {
	status, body := NewErrorResponse(err)
	logrus.WithFields(logrus.Fields{
		"path":   c.Path(),
		"status": status,
		"error":  err,
	}).Warn("Request failed")
	return c.JSON(status, body)
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
