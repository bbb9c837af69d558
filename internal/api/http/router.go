// Package http assembles the HTTP surface: the runs API, health check,
// Prometheus metrics, and pprof.
package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"

	"github.com/openrmt/openrmt/internal/api/http/handler"
	"github.com/openrmt/openrmt/internal/api/http/middleware"
	"github.com/openrmt/openrmt/internal/app/service"
	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/internal/observability/metrics"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	Mode           string // gin mode: debug, release, test
	AllowedOrigins []string
	EnablePprof    bool
	MetricsPath    string // default /metrics
}

// NewRouter builds the engine with middleware and routes mounted.
func NewRouter(cfg RouterConfig, svc *service.RunService, collector *metrics.Collector, logger logging.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if collector != nil {
		r.GET(metricsPath, gin.WrapH(collector.Handler()))
	}

	if cfg.EnablePprof {
		pprof.Register(r)
	}

	if svc != nil {
		api := r.Group("/api/v1")
		handler.NewRunHandler(svc, logger).Register(api)
	}

	return r
}
