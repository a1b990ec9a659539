package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/justyntemme/bookhaven/internal/api"
	"github.com/justyntemme/bookhaven/internal/auth"
	"github.com/justyntemme/bookhaven/internal/config"
	"github.com/justyntemme/bookhaven/internal/metadata"
	"github.com/justyntemme/bookhaven/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database
	db, err := storage.NewDatabase(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize file storage
	var blobs storage.BlobStore
	if cfg.UseMinio() {
		blobs, err = storage.NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("Failed to initialize object storage: %v", err)
		}
		slog.Info("storing uploads in object storage", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	} else {
		blobs, err = storage.NewFileStorage(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
	}

	// Initialize handlers
	handler := api.NewHandler(db, blobs)
	handler.SetMaxUploadSize(cfg.MaxUploadMB * 1024 * 1024)

	if cfg.UseRedis() {
		cache := storage.NewRedisTextCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TextCacheTTL)
		defer cache.Close()
		if err := cache.Ping(context.Background()); err != nil {
			slog.Warn("redis unavailable, text cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			handler.SetTextCache(cache)
		}
	}

	if cfg.MetadataLookup {
		handler.SetMetadata(metadata.NewService(metadata.NewOpenLibraryProvider(cfg.MetadataURL, 10*time.Second)))
		slog.Info("catalog lookup enabled", "url", cfg.MetadataURL)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	authHandler := api.NewAuthHandler(db, tokens)

	r := api.NewRouter(handler, authHandler, tokens)

	// Start server
	log.Printf("BookHaven server starting on %s", cfg.BindAddr)
	log.Printf("Data directory: %s", cfg.DataDir)
	if err := r.Run(cfg.BindAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
