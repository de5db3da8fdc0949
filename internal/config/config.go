package config

import (
	"fmt"
	"time"

	"product-enhancer/internal/llm"
	"product-enhancer/internal/storage"

	"github.com/caarlos0/env/v11"
)

type StorageConfig struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	UploadBucket      string `env:"UPLOAD_BUCKET" envDefault:"uploads"`
	ResultBucket      string `env:"RESULT_BUCKET" envDefault:"results"`
}

func (c StorageConfig) S3() storage.S3ProviderConfig {
	return storage.S3ProviderConfig{
		S3EndpointURL:     c.S3EndpointURL,
		S3AccessKeyID:     c.S3AccessKeyID,
		S3SecretAccessKey: c.S3SecretAccessKey,
		S3Region:          c.S3Region,
	}
}

// LLMConfig registers the optional custom provider next to the built-in ones.
type LLMConfig struct {
	CustomBaseURL string `env:"CUSTOM_LLM_BASE_URL"`
	CustomModel   string `env:"CUSTOM_LLM_MODEL" envDefault:"gpt-3.5-turbo"`
}

func (c LLMConfig) Endpoints() llm.Endpoints {
	return llm.DefaultEndpoints().WithCustom(c.CustomBaseURL, c.CustomModel)
}

type WorkerConfig struct {
	MaxWorkers int           `env:"MAX_WORKERS" envDefault:"5"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
}

type ServerConfig struct {
	Port           int    `env:"PORT" envDefault:"5000"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"16777216"`
	BasePath       string `env:"API_BASE_PATH" envDefault:"/api"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ClientConfig configures the command line client. The key is only a default,
// flags take precedence.
type ClientConfig struct {
	ExecutorURL  string        `env:"ENHANCER_API_URL" envDefault:"http://localhost:5000/api"`
	APIKey       string        `env:"ENHANCER_API_KEY"`
	Provider     string        `env:"ENHANCER_PROVIDER" envDefault:"deepseek"`
	PollInterval time.Duration `env:"ENHANCER_POLL_INTERVAL" envDefault:"2s"`
	LLM          LLMConfig
}

// Load parses the environment into a config struct.
func Load[T any]() (T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}
