package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelhub/internal/logging"
)

type RouterConfig struct {
	Handler        *Handler
	DB             *sql.DB // optional; /ready pings it
	TrustedProxies []string
	Stream         gin.HandlerFunc // optional websocket endpoint at /ws
	StreamClients  func() int
}

// NewRouter builds the gin engine with middleware, the aggregation routes
// and the operational endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(), Metrics())

	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logging.Warn().Err(err).Strs("proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		body := gin.H{"status": "ready", "sources": len(cfg.Handler.Agg.SourceNames())}
		if cfg.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.DB.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "db_error": err.Error()})
				return
			}
			body["db"] = "ok"
		}
		if cfg.StreamClients != nil {
			body["ws_clients"] = cfg.StreamClients()
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.Stream != nil {
		router.GET("/ws", cfg.Stream)
	}

	cfg.Handler.RegisterRoutes(&router.RouterGroup)
	return router
}
