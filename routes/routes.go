package routes

import (
	"net/http"

	"hubtask/handlers"
	"hubtask/middlewares"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	OAuth *handlers.OAuthHandler
	Proxy *handlers.ProxyHandler
	Sync  *handlers.SyncHandler
	DB    *handlers.DBHandler
}

// NewServer builds the echo instance with the global middleware chain.
func NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middlewares.ErrorHandler

	e.Use(middlewares.Recovery())
	e.Use(middlewares.RequestLogger())
	e.Pre(middlewares.CORS())
	return e
}

// RegisterRoutes mounts the JSON API and /metrics.
func RegisterRoutes(e *echo.Echo, h Handlers, cronSecret string) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	api := e.Group("/api")

	// Live upstream reads
	api.GET("/tasks", h.Proxy.Tasks)
	api.GET("/lark", h.Proxy.Bitable)
	api.GET("/comments", h.Proxy.Comments)

	oauth := api.Group("/oauth")
	oauth.GET("/login", h.OAuth.Login)
	oauth.GET("/callback", h.OAuth.Callback)
	oauth.POST("/callback", h.OAuth.Callback)
	oauth.POST("/refresh", h.OAuth.Refresh)

	sync := api.Group("/sync")
	sync.POST("/tasks", h.Sync.Bitable)
	sync.POST("/taskv2", h.Sync.TaskV2)
	sync.POST("/comments", h.Sync.Comments)
	sync.POST("/embeddings", h.Sync.Embeddings)
	sync.POST("/save-tokens", h.Sync.SaveTokens)
	sync.Match([]string{http.MethodGet, http.MethodPost}, "/all", h.Sync.All, middlewares.RequireCronSecret(cronSecret))

	db := api.Group("/db")
	db.GET("/tasks", h.DB.Tasks)
	db.GET("/comments", h.DB.Comments)
	db.GET("/activity", h.DB.Activity)
	db.GET("/sync-logs", h.DB.SyncLogs)
	db.GET("/search", h.DB.Search)
	db.POST("/search", h.DB.Search)
}
