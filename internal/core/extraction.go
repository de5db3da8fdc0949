package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"product-enhancer/internal/llm"
	"product-enhancer/internal/prompts"
)

var ErrUnparsableAnswer = errors.New("model answer does not contain a JSON object")

const extractionSystemPrompt = "You are a product data analyst. You only answer with JSON."

// Extractor asks a model for the attribute values of one product.
type Extractor struct {
	completer  llm.Completer
	maxRetries int
	retryDelay time.Duration
}

func NewExtractor(completer llm.Completer, maxRetries int, retryDelay time.Duration) *Extractor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Extractor{completer: completer, maxRetries: maxRetries, retryDelay: retryDelay}
}

func extractionPrompt(productInfo string, attributes []string, customPrompts map[string]string) string {
	var b strings.Builder

	b.WriteString("Act as a product data analyst and extract the key attributes from the product information below. ")
	b.WriteString("Only extract attributes that are clearly present, leave uncertain ones empty.\n\n")
	b.WriteString("Product information:\n")
	b.WriteString(productInfo)
	b.WriteString("\nExtract the following attributes and answer in JSON:\n")
	for i, attr := range attributes {
		fmt.Fprintf(&b, "%d. %s", i+1, attr)
		if p := strings.TrimSpace(customPrompts[attr]); p != "" {
			fmt.Fprintf(&b, " (%s)", p)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Output rules:
1. Use standard units: capacity in "L", weight in "kg", power in "W", length in "cm", temperature in "°C".
2. Do not put a space between a value and its unit, write "1.5L" and not "1.5 L".
3. Keep values precise but use at most one decimal place.

Answer with exactly this JSON shape:
{
`)
	for i, attr := range attributes {
		key, _ := json.Marshal(attr)
		fmt.Fprintf(&b, "  %s: \"value\"", key)
		if i < len(attributes)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n\nOnly fill in values you are sure about, use null for anything uncertain. Output the JSON only, without explanations.")

	return b.String()
}

// parseAnswer keeps the requested attributes that have a usable value.
func parseAnswer(answer string, attributes []string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer)), &raw); err != nil {
		span, ok := prompts.ExtractObject(answer)
		if !ok {
			return nil, ErrUnparsableAnswer
		}
		if err := json.Unmarshal([]byte(span), &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparsableAnswer, err)
		}
	}

	values := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		if v, ok := stringifyValue(raw[attr]); ok {
			values[attr] = v
		}
	}
	return values, nil
}

func stringifyValue(v any) (string, bool) {
	switch value := v.(type) {
	case nil:
		return "", false
	case string:
		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, "null") {
			return "", false
		}
		return value, true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

// Extract retries failed calls and unparsable answers. After the last attempt
// it returns the last error.
func (e *Extractor) Extract(ctx context.Context, productInfo string, attributes []string, customPrompts map[string]string) (map[string]string, error) {
	prompt := extractionPrompt(productInfo, attributes, customPrompts)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		answer, err := e.completer.Complete(ctx, extractionSystemPrompt, prompt)
		if err == nil {
			values, parseErr := parseAnswer(answer, attributes)
			if parseErr == nil {
				return values, nil
			}
			err = parseErr
		}
		lastErr = err

		slog.Warn("attribute extraction attempt failed", "attempt", attempt, "max_attempts", e.maxRetries, "error", err)
		if attempt == e.maxRetries {
			break
		}

		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("extraction failed after %d attempts: %w", e.maxRetries, lastErr)
}
