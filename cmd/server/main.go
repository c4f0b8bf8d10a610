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
	"github.com/redis/go-redis/v9"

	"github.com/youruser/canvasapp/internal/api"
	"github.com/youruser/canvasapp/internal/archive"
	"github.com/youruser/canvasapp/internal/batch"
	"github.com/youruser/canvasapp/internal/config"
	imagepkg "github.com/youruser/canvasapp/internal/image"
	"github.com/youruser/canvasapp/internal/logging"
	"github.com/youruser/canvasapp/internal/output"
	"github.com/youruser/canvasapp/internal/util"
)

func main() {
	cfg := config.Load()
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	gin.SetMode(cfg.Server.Mode)

	for _, dir := range []string{cfg.Storage.ImagesRoot, cfg.Storage.ZipRoot} {
		if err := util.EnsureDir(dir); err != nil {
			logging.Error("cannot create storage root", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	folders := output.New(cfg.Storage.ImagesRoot, cfg.Storage.PublicPrefix)
	fetcher := imagepkg.NewFetcher(&http.Client{}, imagepkg.FetchOptions{
		Timeout:   cfg.Render.FetchTimeout,
		MaxBytes:  cfg.Render.MaxImageBytes,
		MaxPixels: cfg.Render.MaxPixels,
		LocalRoot: cfg.Render.LocalRoot,
	})
	fonts := imagepkg.NewFontBook(cfg.Storage.FontsRoot)
	renderer := imagepkg.NewRenderer(fetcher, fonts, cfg.Render.DefaultFontSize, cfg.Render.MaxPixels)

	router := api.NewRouter(api.Deps{
		Composer:     imagepkg.NewComposer(fetcher, renderer, folders, cfg.Render.DefaultFont),
		Archiver:     archive.New(folders, cfg.Storage.ZipRoot, cfg.Storage.PublicPrefix, cfg.Render.ZipLevel),
		Batches:      newBatchStore(cfg.Cache),
		ImagesRoot:   cfg.Storage.ImagesRoot,
		ZipRoot:      cfg.Storage.ZipRoot,
		PublicPrefix: cfg.Storage.PublicPrefix,
		MaxBodyBytes: cfg.Limits.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	logging.Warn("shutdown signal received, closing server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("server forced to shutdown", "error", err)
	}
	logging.Info("server stopped cleanly")
}

// newBatchStore uses Redis when configured and reachable, memory otherwise.
func newBatchStore(cfg config.CacheConfig) batch.Store {
	if cfg.RedisAddr == "" {
		return batch.NewMemoryStore(cfg.BatchTTL, cfg.MemoryMaxRecords)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logging.Warn("redis unavailable, keeping batch records in memory", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return batch.NewMemoryStore(cfg.BatchTTL, cfg.MemoryMaxRecords)
	}
	logging.Info("using redis for batch records", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return batch.NewRedisStore(rdb, cfg.BatchTTL)
}
