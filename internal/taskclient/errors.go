package taskclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"product-enhancer/pkg/api"

	"github.com/go-resty/resty/v2"
)

var ErrNotDownloadable = errors.New("task has no downloadable result")

// SubmissionError carries the executor's error message verbatim.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("task submission failed (%d): %s", e.StatusCode, e.Message)
}

type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// errorMessage returns the {error} field of the body, falling back to the raw
// body and then the status text.
func errorMessage(res *resty.Response) string {
	var body api.ErrorResponse
	if err := json.Unmarshal(res.Body(), &body); err == nil && body.Error != "" {
		return body.Error
	}
	if text := strings.TrimSpace(res.String()); text != "" {
		return text
	}
	return http.StatusText(res.StatusCode())
}
