package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/gazemap-backend-go/internal/api"
	"github.com/jengzang/gazemap-backend-go/internal/app"
	"github.com/jengzang/gazemap-backend-go/internal/config"
	"github.com/jengzang/gazemap-backend-go/internal/handler"
	"github.com/jengzang/gazemap-backend-go/internal/logger"
	"github.com/jengzang/gazemap-backend-go/internal/middleware"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.Default().Logging).WithError(err).Fatal("Failed to load config")
	}
	log := logger.New(cfg.Logging)
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库与服务
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	// 初始化路由
	handlers := api.Handlers{
		Sessions: handler.NewSessionHandler(a.Sessions),
		Heatmaps: handler.NewHeatmapHandler(a.Heatmaps),
		Stream: handler.NewStreamHandler(a.Sessions, handler.StreamOptions{
			PollInterval:  cfg.Collector.PollInterval,
			QueueSize:     cfg.Collector.QueueSize,
			ReadyDeadline: cfg.Collector.ReadyDeadline,
		}, logger.Component(log, "stream")),
	}
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	router := api.SetupRouter(cfg, handlers, limiter, logger.Component(log, "http"))

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	go func() {
		log.WithField("addr", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
}
