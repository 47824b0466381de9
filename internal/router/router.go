package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sleepstars/ollamabridge/internal/logger"
	"github.com/sleepstars/ollamabridge/internal/metrics"
	"github.com/sleepstars/ollamabridge/internal/ollama"
)

// Options carries the collaborators the routing layer binds together.
type Options struct {
	// Upstream is the Ollama client used by the translation handlers.
	Upstream ollama.Upstream

	// Running reports whether the lifecycle controller considers the
	// service Running; /health depends on nothing else.
	Running func() bool

	// Metrics is optional; when nil no measurements are taken and
	// /metrics is not registered.
	Metrics *metrics.Collector
}

// New builds the gin engine serving the OpenAI-compatible surface.
// Every API route is registered both with and without the /v1 prefix.
func New(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}

	h := &handlers{
		upstream: opts.Upstream,
		running:  opts.Running,
		metrics:  opts.Metrics,
		logger:   logger.GetLogger().WithComponent("router"),
	}

	r.GET("/v1/models", h.listModels)
	r.GET("/models", h.listModels)
	r.POST("/v1/chat/completions", h.chatCompletions)
	r.POST("/chat/completions", h.chatCompletions)
	r.POST("/v1/completions", h.completions)
	r.POST("/completions", h.completions)
	r.GET("/health", h.health)
	r.GET("/", h.health)
	r.GET("/docs", docsPage)
	r.GET("/redoc", redocPage)
	r.GET("/openapi.json", openapiSpec)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	return r
}

// corsMiddleware allows every origin. The proxy fronts a local developer
// tool, so there is nothing to restrict.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
