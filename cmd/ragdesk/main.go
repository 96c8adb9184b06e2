package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ragdesk/internal/app"
	"ragdesk/internal/config"
	"ragdesk/internal/directory"
	"ragdesk/internal/ratelimit"
	"ragdesk/internal/server"
	"ragdesk/internal/servicetoken"
	"ragdesk/internal/util"
	"ragdesk/pkg/ragapi"
	"ragdesk/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var tokens ragapi.TokenSource
	if cfg.BackendTokenKeyPath != "" {
		signer, err := servicetoken.NewSigner(servicetoken.Options{
			PrivateKeyPath: cfg.BackendTokenKeyPath,
			KeyID:          cfg.BackendTokenKeyID,
			Issuer:         cfg.BackendTokenIssuer,
			Audience:       cfg.BackendTokenAudience,
		})
		if err != nil {
			log.Fatalf("failed to init backend token signer: %v", err)
		}
		tokens = signer
	}

	client, err := ragapi.NewClient(cfg.RagAPIBaseURL, tokens)
	if err != nil {
		log.Fatalf("failed to init rag api client: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	var dir directory.Directory
	switch cfg.DirectoryDriver {
	case "postgres":
		dir, err = directory.NewGormDirectory(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres directory: %v", err)
		}
	case "redis":
		dir = directory.NewRedisDirectory(redisClient)
	default:
		slog.Warn("using in-memory session directory; sessions will not survive a restart")
		dir = directory.NewMemoryDirectory()
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	engine, err := app.New(app.Config{
		Client:          client,
		Directory:       dir,
		Objects:         objects,
		PollInterval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
		PollMaxDuration: time.Duration(cfg.PollMaxDurationSeconds) * time.Second,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init engine: %v", err)
	}
	defer engine.Close()

	var limiter *ratelimit.FixedWindowLimiter
	if redisClient != nil && cfg.SubmitLimit > 0 {
		limiter, err = ratelimit.New(redisClient, "ragdesk:submit", cfg.SubmitLimit, time.Duration(cfg.SubmitWindowSeconds)*time.Second)
		if err != nil {
			log.Fatalf("failed to init submit limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:            engine,
		SubmitLimiter:  limiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		// Stop pollers before draining so no timer fires into a
		// closing process.
		engine.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("ragdesk server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
