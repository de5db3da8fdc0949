package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"product-enhancer/cmd"
	"product-enhancer/internal/api"
	"product-enhancer/internal/config"
	"product-enhancer/internal/core"
	"product-enhancer/internal/database"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

type Config struct {
	Root string `env:"ROOT" envDefault:"./product-enhancer"`

	Server  config.ServerConfig
	Storage config.StorageConfig
	Worker  config.WorkerConfig
	LLM     config.LLMConfig
}

func createServer(db *gorm.DB, store storage.Provider, queue messaging.Publisher, cfg Config) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, queue, api.ServiceConfig{
		UploadBucket:   cfg.Storage.UploadBucket,
		ResultBucket:   cfg.Storage.ResultBucket,
		BasePath:       cfg.Server.BasePath,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	r.Route(cfg.Server.BasePath, apiHandler.AddRoutes)

	return &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load[Config]()
	if err != nil {
		log.Fatal(err)
	}

	closeLog, err := cmd.InitLogging(filepath.Join(cfg.Root, "backend.log"), slog.LevelInfo)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Server.Port)

	db, err := database.NewDatabase(filepath.Join(cfg.Root, "db", "product-enhancer.db"))
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}

	store, err := storage.NewLocalProvider(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	worker := core.NewTaskProcessor(db, store, queue, queue, core.NewCompleterFactory(cfg.LLM.Endpoints()), core.ProcessorConfig{
		UploadBucket: cfg.Storage.UploadBucket,
		ResultBucket: cfg.Storage.ResultBucket,
		MaxWorkers:   cfg.Worker.MaxWorkers,
		MaxRetries:   cfg.Worker.MaxRetries,
		RetryDelay:   cfg.Worker.RetryDelay,
	})
	if err := worker.RequeueUnfinished(context.Background()); err != nil {
		log.Fatalf("Failed to requeue unfinished tasks: %v", err)
	}

	server := createServer(db, store, queue, cfg)

	slog.Info("starting worker")
	go worker.Start()

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

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Server.Port, err)
	}

	slog.Info("server stopped")
}
