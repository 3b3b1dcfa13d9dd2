package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"media-webhook-processor/internal/api"
	"media-webhook-processor/internal/config"
	"media-webhook-processor/internal/estimate"
	"media-webhook-processor/internal/media"
	"media-webhook-processor/internal/monitor"
	"media-webhook-processor/internal/pipeline"
	"media-webhook-processor/internal/ratelimit"
	"media-webhook-processor/internal/registry"
	"media-webhook-processor/internal/scheduler"
	"media-webhook-processor/internal/storage"
	"media-webhook-processor/internal/store"
	"media-webhook-processor/internal/tempfiles"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	tmp, err := tempfiles.New(cfg.TempDir)
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}

	st, err := store.New(ctx, cfg.PostgresDSN, cfg.PostsTable)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	uploader, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	fetcher := media.NewFetcher(cfg.DownloadTimeout, cfg.DownloadMaxBytes)
	transcoder := media.NewTranscoder(cfg.FFmpegPath)
	resizer := media.NewResizer(85)
	pipe := pipeline.New(fetcher, transcoder, resizer, uploader, st, tmp, cfg.ThumbnailWidth, cfg.ImageMaxBytes)

	mon := monitor.New(cfg.MemoryLimit, cfg.CleanupInterval, cfg.TempMaxAge, tmp)
	go mon.Run(ctx)

	reg := registry.New(cfg.JobRetention)
	defer reg.Close()

	est := estimate.FixedDuration{PerItem: cfg.ItemTimeEstimate, Parallelism: cfg.BatchSize}
	sched := scheduler.New(reg, pipe, mon, est, cfg.BatchSize, cfg.MaxConcurrentJobs, cfg.ThrottlePause)

	var limiter *ratelimit.SubmissionLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewSubmissionLimiter(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	server := api.New(cfg, sched, reg, limiter, transcoder)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("server listening on :%s (max_jobs=%d batch_size=%d)", cfg.HTTPPort, cfg.MaxConcurrentJobs, cfg.BatchSize)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	sched.Wait()
}
