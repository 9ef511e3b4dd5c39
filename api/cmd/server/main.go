package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/api/cache"
	"github.com/SunilSharmaNP/fvt/api/config"
	"github.com/SunilSharmaNP/fvt/api/database"
	"github.com/SunilSharmaNP/fvt/api/handlers"
	"github.com/SunilSharmaNP/fvt/api/kafka"
	"github.com/SunilSharmaNP/fvt/api/middleware"
	"github.com/SunilSharmaNP/fvt/api/repository"
	"github.com/SunilSharmaNP/fvt/api/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("API service starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env))

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal("Failed to create upload directory", zap.Error(err))
	}

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisCache)
	taskService := service.NewTaskService(repo, statusCache, producer, cfg.KafkaTopic, cfg.MaxQueueLen)
	taskHandler := handlers.NewTaskHandler(taskService, logger, cfg.UploadDir, cfg.MaxFileSize)

	mux := http.NewServeMux()
	taskHandler.Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.TraceID(
		middleware.Recovery(logger)(
			middleware.Logging(logger)(mux)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server started", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
	logger.Info("API service stopped")
}
