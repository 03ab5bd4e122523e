package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/luminio/internal/ai"
	"github.com/mkravets/luminio/internal/api"
	"github.com/mkravets/luminio/internal/config"
	"github.com/mkravets/luminio/internal/database"
	"github.com/mkravets/luminio/internal/ingest"
	"github.com/mkravets/luminio/internal/queue"
	"github.com/mkravets/luminio/internal/search"
	"github.com/mkravets/luminio/internal/storage"
	"github.com/mkravets/luminio/internal/video"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	store, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	db, err := database.NewDB(database.Config{
		Type:       cfg.DB.Type,
		Host:       cfg.DB.Host,
		Port:       cfg.DB.Port,
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Name:       cfg.DB.Name,
		SQLitePath: cfg.DB.SQLitePath,
		Dimensions: cfg.Provider.Dimensions,
	})
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	mediaRepo := database.NewMediaRepository(db)
	segmentRepo := database.NewSegmentRepository(db)
	cacheRepo := database.NewQueryCacheRepository(db)

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Name:     cfg.Ingest.QueueName,
	})
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer q.Close()

	embedder, err := ai.NewClient(ai.Config{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		Dimensions:     cfg.Provider.Dimensions,
		PollInterval:   cfg.Provider.PollInterval,
		PollTimeout:    cfg.Provider.PollTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize embedding client", zap.Error(err))
	}

	prober, err := video.NewProber(logger)
	if err != nil {
		logger.Fatal("ffprobe unavailable", zap.Error(err))
	}
	cutter, err := video.NewExtractor(cfg.Ingest.ExtractTimeout, logger)
	if err != nil {
		logger.Fatal("ffmpeg unavailable", zap.Error(err))
	}

	pipeline := ingest.NewPipeline(mediaRepo, segmentRepo, store, prober, cutter, embedder,
		ingest.PipelineConfig{
			MaxChunkSeconds: cfg.Ingest.MaxChunkSeconds,
			OverlapSeconds:  cfg.Ingest.OverlapSeconds,
			ChunkWorkers:    cfg.Ingest.ChunkWorkers,
		}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers := ingest.NewWorkerPool(q, pipeline, cfg.Ingest.WorkerCount, logger)
	workers.Start(ctx)

	if _, err := ingest.ResumePending(ctx, mediaRepo, q, logger); err != nil {
		logger.Warn("failed to resume pending items", zap.Error(err))
	}

	queryCache := search.NewQueryCache(cacheRepo, embedder, logger)
	engine := search.NewEngine(segmentRepo, cfg.Search.MinSimilarity, logger)
	fallback := search.NewFallback(mediaRepo)
	merger := search.NewMerger(queryCache, engine, fallback, search.MergerConfig{
		Timeout:          cfg.Search.RequestTimeout,
		DefaultTopPhotos: cfg.Search.DefaultTopKPhoto,
		DefaultTopVideos: cfg.Search.DefaultTopKVideo,
	}, logger)

	go evictCacheLoop(ctx, cacheRepo, cfg.Ingest.CacheEvictInterval, cfg.Ingest.CacheEvictKeepCount, logger)

	app := &api.App{
		Storage:       store,
		Media:         mediaRepo,
		Queue:         q,
		Merger:        merger,
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        logger,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("upload_dir", cfg.UploadDir),
			zap.String("db_type", cfg.DB.Type))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	// Workers finish their in-flight item before exiting.
	workers.Wait()
	logger.Info("shutdown complete")
}

// evictCacheLoop periodically trims the query cache to its most
// recently used entries.
func evictCacheLoop(ctx context.Context, repo *database.QueryCacheRepository, interval time.Duration, keep int, logger *zap.Logger) {
	if interval <= 0 || keep <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.EvictStale(ctx, keep)
			if err != nil {
				logger.Warn("cache eviction failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("evicted stale query cache entries", zap.Int64("removed", removed))
			}
		}
	}
}
