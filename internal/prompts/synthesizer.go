package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"product-enhancer/internal/llm"
	"product-enhancer/pkg/api"

	"github.com/go-resty/resty/v2"
)

const (
	synthesisTemperature = 0.3
	synthesisMaxTokens   = 4000
	synthesisTimeout     = 120 * time.Second
)

type Request struct {
	APIKey      string
	Provider    api.Provider
	ProductType string
	Attributes  []string
	Existing    map[string]string
}

type Result struct {
	Merged         map[string]string
	GeneratedCount int
	Missing        []string
}

// Succeeded is false when nothing new was written.
func (r Result) Succeeded() bool {
	return r.GeneratedCount > 0
}

func (r Result) Summary() string {
	return fmt.Sprintf("generated %d prompt(s), %d need manual input", r.GeneratedCount, len(r.Missing))
}

type Synthesizer struct {
	client    *resty.Client
	endpoints llm.Endpoints
}

func NewSynthesizer(endpoints llm.Endpoints) *Synthesizer {
	client := resty.New().
		SetRetryCount(0).
		SetTimeout(synthesisTimeout).
		SetHeader("Content-Type", "application/json")

	return &Synthesizer{client: client, endpoints: endpoints}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Synthesizer) validate(req Request) (llm.Endpoint, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return llm.Endpoint{}, fmt.Errorf("%w: api key is required", ErrValidation)
	}
	if strings.TrimSpace(req.ProductType) == "" {
		return llm.Endpoint{}, fmt.Errorf("%w: product type is required", ErrValidation)
	}
	if len(req.Attributes) == 0 {
		return llm.Endpoint{}, fmt.Errorf("%w: at least one attribute is required", ErrValidation)
	}
	endpoint, err := s.endpoints.Lookup(req.Provider)
	if err != nil {
		return llm.Endpoint{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return endpoint, nil
}

// Synthesize drafts extraction instructions for the requested attributes and
// merges them into req.Existing. On failure the returned result still holds a
// copy of the existing prompts.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Result, error) {
	unchanged := func() Result {
		merged, _ := Merge(req.Existing, nil, req.Attributes)
		return Result{Merged: merged, Missing: Missing(merged, req.Attributes)}
	}

	endpoint, err := s.validate(req)
	if err != nil {
		return unchanged(), err
	}

	generated, err := s.request(ctx, endpoint, req)
	if err != nil {
		slog.Warn("prompt synthesis failed", "provider", req.Provider, "product_type", req.ProductType, "error", err)
		return unchanged(), err
	}

	merged, written := Merge(req.Existing, generated, req.Attributes)
	result := Result{Merged: merged, GeneratedCount: written, Missing: Missing(merged, req.Attributes)}

	slog.Info("prompt synthesis finished", "provider", req.Provider, "generated", written, "missing", len(result.Missing))
	return result, nil
}

func (s *Synthesizer) request(ctx context.Context, endpoint llm.Endpoint, req Request) (map[string]any, error) {
	body := chatRequest{
		Model: endpoint.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req.ProductType, req.Attributes)},
		},
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(req.APIKey).
		SetBody(body).
		Post(strings.TrimRight(endpoint.BaseURL, "/") + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("error sending synthesis request: %w", err)
	}

	if !res.IsSuccess() {
		return nil, &ProviderError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	if len(strings.TrimSpace(res.String())) == 0 {
		return nil, ErrEmptyResponse
	}

	var completion chatResponse
	if err := json.Unmarshal(res.Body(), &completion); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	span, ok := ExtractObject(completion.Choices[0].Message.Content)
	if !ok {
		return nil, ErrMalformedResponse
	}

	var generated map[string]any
	if err := json.Unmarshal([]byte(span), &generated); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return generated, nil
}
