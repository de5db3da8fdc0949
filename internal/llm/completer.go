package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"product-enhancer/pkg/api"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const (
	completionTimeout  = 50 * time.Second
	extractTemperature = 0.1
)

var ErrNoChoices = errors.New("completion returned no choices")

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewCompleter picks the client for a provider. The hosted providers go through
// the OpenAI SDK, custom endpoints through langchaingo.
func NewCompleter(provider api.Provider, endpoint Endpoint, apiKey string) (Completer, error) {
	switch provider {
	case api.ProviderPrimary, api.ProviderAlternate:
		return NewOpenAI(endpoint, apiKey), nil
	case api.ProviderCustom:
		return NewLangChain(endpoint, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider '%s'", provider)
	}
}

type OpenAI struct {
	client openai.Client
	model  string
	temp   float64
}

func NewOpenAI(endpoint Endpoint, apiKey string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(endpoint.BaseURL),
			option.WithMaxRetries(0),
		),
		model: endpoint.Model,
		temp:  extractTemperature,
	}
}

func (o *OpenAI) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if len(systemPrompt) > 0 {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(o.temp),
	})
	if err != nil {
		slog.Error("openai error: chat completions failed", "model", o.model, "error", err)
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	if len(res.Choices) == 0 {
		return "", ErrNoChoices
	}
	return res.Choices[0].Message.Content, nil
}

type LangChain struct {
	client *lcopenai.LLM
	model  string
}

func NewLangChain(endpoint Endpoint, apiKey string) (*LangChain, error) {
	client, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(endpoint.Model),
		lcopenai.WithBaseURL(endpoint.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create custom llm client: %w", err)
	}
	return &LangChain{client: client, model: endpoint.Model}, nil
}

func (l *LangChain) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	messages := make([]llms.MessageContent, 0, 2)
	if len(systemPrompt) > 0 {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := l.client.GenerateContent(ctx, messages, llms.WithTemperature(extractTemperature))
	if err != nil {
		slog.Error("custom llm error: generate content failed", "model", l.model, "error", err)
		return "", fmt.Errorf("custom llm completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}
