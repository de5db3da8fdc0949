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

	"product-enhancer/cmd"
	"product-enhancer/internal/api"
	"product-enhancer/internal/config"
	"product-enhancer/internal/database"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	LogFile     string `env:"LOG_FILE"`

	Server  config.ServerConfig
	Storage config.StorageConfig
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load[APIConfig]()
	if err != nil {
		log.Fatal(err)
	}

	closeLog, err := cmd.InitLogging(cfg.LogFile, slog.LevelInfo)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	slog.Info("starting api server", "port", cfg.Server.Port, "base_path", cfg.Server.BasePath)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s3p, err := storage.NewS3Provider(context.Background(), cfg.Storage.S3())
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}
	for _, bucket := range []string{cfg.Storage.UploadBucket, cfg.Storage.ResultBucket} {
		if err := s3p.CreateBucket(context.Background(), bucket); err != nil {
			log.Fatalf("Failed to create bucket %s: %v", bucket, err)
		}
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, s3p, publisher, api.ServiceConfig{
		UploadBucket:   cfg.Storage.UploadBucket,
		ResultBucket:   cfg.Storage.ResultBucket,
		BasePath:       cfg.Server.BasePath,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	r.Route(cfg.Server.BasePath, apiHandler.AddRoutes)

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("api server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", server.Addr, err)
	}

	slog.Info("server stopped")
}
