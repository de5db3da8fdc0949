package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"product-enhancer/cmd"
	"product-enhancer/internal/config"
	"product-enhancer/internal/core"
	"product-enhancer/internal/database"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	LogFile     string `env:"LOG_FILE"`

	Worker  config.WorkerConfig
	Storage config.StorageConfig
	LLM     config.LLMConfig
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.Load[WorkerConfig]()
	if err != nil {
		log.Fatal(err)
	}

	closeLog, err := cmd.InitLogging(cfg.LogFile, slog.LevelInfo)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	slog.Info("starting worker", "max_workers", cfg.Worker.MaxWorkers, "max_retries", cfg.Worker.MaxRetries)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s3p, err := storage.NewS3Provider(context.Background(), cfg.Storage.S3())
	if err != nil {
		log.Fatalf("Worker: Failed to create S3 client: %v", err)
	}
	if err := s3p.CreateBucket(context.Background(), cfg.Storage.ResultBucket); err != nil {
		log.Fatalf("Failed to create bucket %s: %v", cfg.Storage.ResultBucket, err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	worker := core.NewTaskProcessor(db, s3p, publisher, reciever, core.NewCompleterFactory(cfg.LLM.Endpoints()), core.ProcessorConfig{
		UploadBucket: cfg.Storage.UploadBucket,
		ResultBucket: cfg.Storage.ResultBucket,
		MaxWorkers:   cfg.Worker.MaxWorkers,
		MaxRetries:   cfg.Worker.MaxRetries,
		RetryDelay:   cfg.Worker.RetryDelay,
	})

	go worker.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received, stopping worker")
	worker.Stop()

	slog.Info("worker stopped")
}
