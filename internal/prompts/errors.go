package prompts

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid synthesis request")
	ErrEmptyResponse     = errors.New("provider returned an empty response")
	ErrMalformedResponse = errors.New("provider response does not contain a JSON object")
)

// ProviderError is returned when the provider answers with a non-2xx status.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.StatusCode, e.Body)
}
