package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/api/analysis"
	"github.com/csvpilot/csvpilot/internal/api/middleware"
	"github.com/csvpilot/csvpilot/internal/service"
	"github.com/csvpilot/csvpilot/internal/store"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey         string
	AllowOrigins   []string
	MaxUploadBytes int64
}

// SetupRouter sets up the Gin router
func SetupRouter(
	analysisService *service.AnalysisService,
	files *store.FileStore,
	cfg RouterConfig,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handler := analysis.NewHandler(analysisService, files, cfg.MaxUploadBytes, logger)
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.APIKey))
	handler.RegisterRoutes(apiGroup)

	return r
}
