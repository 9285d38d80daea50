package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radiotest-data/internal/config"
	"radiotest-data/internal/database"
	httpapi "radiotest-data/internal/http"
	"radiotest-data/internal/logger"
	"radiotest-data/internal/mqtt"
	"radiotest-data/internal/repository"
	"radiotest-data/internal/service"
	"radiotest-data/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "radiotest-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Redis backs the catalog cache; the service runs without it.
	var kv store.KV
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err == nil {
		kv = store.NewRedisKV(redisClient)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("Redis unavailable, catalog cache disabled", zap.Error(err))
	}

	// DB 未就绪时退回内存 repo，方便本地联测
	var db *sql.DB
	var repo repository.SamplesRepository
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			repo = repository.NewPostgresSamplesRepo(db)
			log.Info("DB enabled for radiotest-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	if repo == nil {
		repo = repository.NewMemorySamplesRepo()
	}

	ingest := service.NewIngestService(repo, log)
	reports := service.NewReportService(repo, log)
	trajectories := service.NewTrajectoryService(repo, log)

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes("radiotest-data", version)
	router.RegisterSampleRoutes(httpapi.NewSampleHandler(ingest, repo, kv, log))
	router.RegisterReportRoutes(httpapi.NewReportHandler(reports, repo, log))
	router.RegisterTrajectoryRoutes(httpapi.NewTrajectoryHandler(trajectories, log))
	router.RegisterCatalogRoutes(httpapi.NewCatalogHandler(repo, kv, log))

	var bridge *mqtt.IngestBridge
	if cfg.MQTT.Enabled {
		b, err := mqtt.NewIngestBridge(&cfg.MQTT, ingest, log)
		if err != nil {
			log.Warn("MQTT broker unavailable, bridge disabled", zap.Error(err))
		} else if err := b.Start(); err != nil {
			log.Warn("MQTT subscribe failed, bridge disabled", zap.Error(err))
		} else {
			bridge = b
			log.Info("MQTT ingest bridge started", zap.String("topic", cfg.MQTT.Topic))
		}
	}

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	if bridge != nil {
		bridge.Stop()
	}
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
