package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/acquire"
	"github.com/SunilSharmaNP/fvt/worker/cache"
	"github.com/SunilSharmaNP/fvt/worker/config"
	"github.com/SunilSharmaNP/fvt/worker/delivery"
	"github.com/SunilSharmaNP/fvt/worker/engine"
	"github.com/SunilSharmaNP/fvt/worker/ffmpeg"
	"github.com/SunilSharmaNP/fvt/worker/gate"
	"github.com/SunilSharmaNP/fvt/worker/kafka"
	"github.com/SunilSharmaNP/fvt/worker/probe"
	"github.com/SunilSharmaNP/fvt/worker/repository"
	"github.com/SunilSharmaNP/fvt/worker/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("Worker service starting",
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Int("max_concurrent", cfg.MaxConcurrentTasks))

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		logger.Fatal("Failed to load encode presets", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	prober := probe.New(cfg.FFprobePath)
	runner := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.KillGrace, prober, presets, logger)
	downloader := acquire.NewDownloader(cfg.DownloadRetries, logger)
	statusCache := cache.NewStatusCache(redisClient)
	repo := repository.NewPostgresRepo(pool)

	var primary delivery.Deliverer
	fallback := delivery.Deliverer(delivery.NewGoFile(cfg.GoFileAPI, cfg.GoFileToken, logger))
	if cfg.TelegramToken != "" {
		thumbs := delivery.NewThumbnailer(cfg.FFmpegPath, logger)
		tg, err := delivery.NewTelegram(cfg.TelegramToken, cfg.MaxTelegramUpload, thumbs, logger)
		if err != nil {
			logger.Fatal("Failed to set up telegram delivery", zap.Error(err))
		}
		primary = tg
		fallback = delivery.NewAnnounced(fallback, tg, logger)
	} else {
		outDir := cfg.OutputDir
		if outDir == "" {
			outDir = filepath.Join(cfg.WorkDir, "out")
		}
		primary = delivery.NewLocal(outDir, logger)
		logger.Warn("No telegram token, delivering to local directory",
			zap.String("dir", outDir))
	}

	eng := engine.New(engine.Config{
		MaxConcurrent:    cfg.MaxConcurrentTasks,
		MaxPerRequester:  cfg.MaxTasksPerRequester,
		MaxQueueLen:      cfg.MaxQueueLen,
		AcquireTimeout:   cfg.AcquireTimeout,
		ProcessTimeout:   cfg.ProcessTimeout,
		ProgressInterval: cfg.ProgressInterval,
		FailedRetention:  cfg.FailedRetention,
		WorkDir:          cfg.WorkDir,
	}, engine.Deps{
		Gate:       gate.NewRedis(redisClient, cfg.AdminIDs, logger),
		Acquirer:   downloader,
		Transcoder: runner,
		Primary:    primary,
		Fallback:   fallback,
		Archiver:   repo,
		Sink:       statusCache,
	}, logger)

	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID, logger)
	if err != nil {
		logger.Fatal("Failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	processor := service.NewProcessor(eng, repo, statusCache, logger)

	go func() {
		if err := consumer.Run(ctx, cfg.KafkaTopic, processor.Handle); err != nil {
			logger.Error("Consumer stopped", zap.Error(err))
			stop()
		}
	}()

	go statusCache.ListenCancel(ctx, func(taskID string) {
		err := eng.Cancel(taskID)
		if err != nil && !errors.Is(err, engine.ErrTaskNotFound) {
			logger.Warn("Failed to cancel task",
				zap.String("task_id", taskID),
				zap.Error(err))
		}
	})

	<-ctx.Done()
	logger.Info("Shutting down, draining tasks")

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := eng.Shutdown(drainCtx); err != nil {
		logger.Warn("Drain incomplete", zap.Error(err))
	}
	logger.Info("Worker service stopped")
}
