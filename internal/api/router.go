package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/export"
	"github.com/jengzang/gazemap-backend-go/internal/handler"
	"github.com/jengzang/gazemap-backend-go/internal/middleware"
)

// Handlers groups the HTTP handlers mounted by SetupRouter.
type Handlers struct {
	Sessions *handler.SessionHandler
	Heatmaps *handler.HeatmapHandler
	Stream   *handler.StreamHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h Handlers, limiter *middleware.RateLimiter, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log), middleware.CORS())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Gazemap Backend API is running",
		})
	})

	auth := middleware.Auth(cfg.JWTSecret)

	// API 路由组
	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.GET("", h.Sessions.List)
			sessions.GET("/:id", h.Sessions.Get)
			sessions.GET("/:id/stats", h.Sessions.Stats)

			sessions.POST("", auth, h.Sessions.Start)
			sessions.POST("/import", auth, h.Sessions.Import)
			sessions.POST("/:id/complete", auth, h.Sessions.Complete)
			sessions.DELETE("/:id", auth, h.Sessions.Delete)

			// sample ingestion is rate limited per client
			ingest := []gin.HandlerFunc{auth}
			if limiter != nil {
				ingest = append(ingest, middleware.RateLimit(limiter))
			}
			sessions.POST("/:id/samples", append(ingest, h.Sessions.AppendSamples)...)
			sessions.GET("/:id/stream", auth, h.Stream.Stream)
		}

		// 热力图与截图
		heatmaps := api.Group("/sessions/:id")
		{
			heatmaps.GET("/heatmap.png", h.Heatmaps.Heatmap(export.FormatPNG))
			heatmaps.GET("/heatmap.jpg", h.Heatmaps.Heatmap(export.FormatJPEG))
			heatmaps.GET("/heatmap.pdf", h.Heatmaps.Heatmap(export.FormatPDF))
			heatmaps.GET("/depth-chart.png", h.Heatmaps.DepthChart)

			heatmaps.PUT("/screenshot", auth, h.Heatmaps.UploadScreenshot)
			heatmaps.POST("/screenshot/capture", auth, h.Heatmaps.CaptureScreenshot)
		}
	}

	return r
}
