package handlers

import (
	"net/http"

	"hubtask/models"
	"hubtask/repositories"
	"hubtask/services"

	"github.com/labstack/echo/v4"
)

// DBHandler serves read-only queries over the local store.
type DBHandler struct {
	reads  *services.ReadService
	search *services.SearchService
}

func NewDBHandler(reads *services.ReadService, search *services.SearchService) *DBHandler {
	return &DBHandler{reads: reads, search: search}
}

func (h *DBHandler) Tasks(c echo.Context) error {
	resp, err := h.reads.Tasks(c.Request().Context(), repositories.TaskFilter{
		Status:  c.QueryParam("status"),
		Project: c.QueryParam("project"),
		Source:  c.QueryParam("source"),
		Limit:   queryInt(c, "limit", 100),
		Offset:  queryInt(c, "offset", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *DBHandler) Comments(c echo.Context) error {
	resp, err := h.reads.Comments(c.Request().Context(),
		c.QueryParam("taskId"),
		c.QueryParam("taskGuid"),
		queryInt(c, "limit", 100),
		queryInt(c, "offset", 0),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *DBHandler) Activity(c echo.Context) error {
	resp, err := h.reads.Activity(c.Request().Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *DBHandler) SyncLogs(c echo.Context) error {
	resp, err := h.reads.SyncLogs(c.Request().Context(), queryInt(c, "limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Search accepts GET ?q=|query=&limit=&status= or a POST JSON body.
func (h *DBHandler) Search(c echo.Context) error {
	req := services.SearchRequest{Limit: 10}
	if c.Request().Method == http.MethodPost {
		if err := c.Bind(&req); err != nil {
			return respondError(c, &models.ValidationError{Field: "query", Message: "Invalid request body"})
		}
	} else {
		req.Query = c.QueryParam("q")
		if req.Query == "" {
			req.Query = c.QueryParam("query")
		}
		req.Limit = queryInt(c, "limit", 10)
		req.Status = c.QueryParam("status")
	}

	resp, err := h.search.Search(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
