package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/oauth"
	"github.com/arlofn/provider/pkg/metrics"
)

// NewRouter assembles the provider's HTTP surface: the OAuth2 endpoints,
// a health probe, and /metrics when a metrics sink is given.
func NewRouter(logger *zap.Logger, provider *oauth.Provider, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	NewOAuth(logger, provider).RegisterRoutes(r)
	return r
}
