package api

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Provider string

const (
	ProviderPrimary   Provider = "deepseek"
	ProviderAlternate Provider = "openai"
	ProviderCustom    Provider = "custom"
)

var Providers = []Provider{ProviderPrimary, ProviderAlternate, ProviderCustom}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider '%s'", s)
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// Terminal reports whether no further transitions can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// Rank orders statuses along the lifecycle. Unknown statuses rank lowest.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskPending:
		return 1
	case TaskProcessing:
		return 2
	case TaskCompleted, TaskError:
		return 3
	default:
		return 0
	}
}

type ProcessingConfig struct {
	TextColumns   []string          `json:"textColumns"`
	Attributes    []string          `json:"attributes"`
	CustomPrompts map[string]string `json:"customPrompts"`
	APIKey        string            `json:"apiKey,omitempty"`
	Provider      Provider          `json:"provider"`
}

// Clone returns a deep copy so callers cannot mutate a submitted config.
func (c ProcessingConfig) Clone() ProcessingConfig {
	out := ProcessingConfig{
		TextColumns: append([]string(nil), c.TextColumns...),
		Attributes:  append([]string(nil), c.Attributes...),
		APIKey:      c.APIKey,
		Provider:    c.Provider,
	}
	if c.CustomPrompts != nil {
		out.CustomPrompts = make(map[string]string, len(c.CustomPrompts))
		for k, v := range c.CustomPrompts {
			out.CustomPrompts[k] = v
		}
	}
	return out
}

// Redacted returns a copy without the API key, suitable for responses.
func (c ProcessingConfig) Redacted() ProcessingConfig {
	out := c.Clone()
	out.APIKey = ""
	return out
}

func (c ProcessingConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("text_columns", c.TextColumns),
		slog.Any("attributes", c.Attributes),
		slog.Int("custom_prompts", len(c.CustomPrompts)),
		slog.String("provider", string(c.Provider)),
		slog.Bool("api_key_set", c.APIKey != ""),
	)
}

type Task struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	Status       TaskStatus        `json:"status"`
	Progress     int               `json:"progress"`
	Config       *ProcessingConfig `json:"config,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	DownloadURL  string            `json:"downloadUrl,omitempty"`
}

type PreviewResponse struct {
	Columns  []string   `json:"columns"`
	Rows     [][]string `json:"rows"`
	Filename string     `json:"filename"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ListTasksParams struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}
