package taskclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"product-enhancer/pkg/api"

	"github.com/go-resty/resty/v2"
)

const requestTimeout = 60 * time.Second

// Client talks to the task executor. BaseURL includes any path prefix, for
// example http://localhost:5000/api.
type Client struct {
	client  *resty.Client
	baseURL string
}

func New(baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		client:  resty.New().SetBaseURL(baseURL).SetTimeout(requestTimeout),
		baseURL: baseURL,
	}
}

func decode(res *resty.Response, out any) error {
	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", res.Request.URL, err)
	}
	return nil
}

func (c *Client) Preview(ctx context.Context, filename string, file io.Reader) (*api.PreviewResponse, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, file).
		Post("/preview")
	if err != nil {
		return nil, fmt.Errorf("error sending preview request: %w", err)
	}
	if !res.IsSuccess() {
		return nil, &FetchError{StatusCode: res.StatusCode(), Message: errorMessage(res)}
	}

	var preview api.PreviewResponse
	if err := decode(res, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Submit uploads the file together with the configuration and returns the
// created task. The returned task carries the submitted config, without the key.
func (c *Client) Submit(ctx context.Context, filename string, file io.Reader, config api.ProcessingConfig) (*api.Task, error) {
	prompts := config.CustomPrompts
	if prompts == nil {
		prompts = map[string]string{}
	}
	encode := func(v any) string {
		data, _ := json.Marshal(v)
		return string(data)
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", filename, file).
		SetMultipartFormData(map[string]string{
			"textColumns":   encode(config.TextColumns),
			"attributes":    encode(config.Attributes),
			"customPrompts": encode(prompts),
			"apiKey":        config.APIKey,
			"provider":      string(config.Provider),
		}).
		Post("/tasks")
	if err != nil {
		return nil, fmt.Errorf("error submitting task: %w", err)
	}
	if !res.IsSuccess() {
		return nil, &SubmissionError{StatusCode: res.StatusCode(), Message: errorMessage(res)}
	}

	var task api.Task
	if err := decode(res, &task); err != nil {
		return nil, err
	}
	submitted := config.Redacted()
	task.Config = &submitted

	slog.Info("submitted task", "task_id", task.ID, "filename", filename, "config", config)
	return &task, nil
}

// Fetch returns the current snapshot of a task, or nil if the executor does
// not know it.
func (c *Client) Fetch(ctx context.Context, id string) (*api.Task, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/tasks/{id}")
	if err != nil {
		return nil, fmt.Errorf("error fetching task %s: %w", id, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if !res.IsSuccess() {
		return nil, &FetchError{StatusCode: res.StatusCode(), Message: errorMessage(res)}
	}

	var task api.Task
	if err := decode(res, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListAll is best effort, any failure yields an empty list.
func (c *Client) ListAll(ctx context.Context) []api.Task {
	res, err := c.client.R().SetContext(ctx).Get("/tasks")
	if err != nil {
		slog.Warn("error listing tasks", "error", err)
		return []api.Task{}
	}
	if !res.IsSuccess() {
		slog.Warn("error listing tasks", "status", res.StatusCode(), "error", errorMessage(res))
		return []api.Task{}
	}

	var tasks []api.Task
	if err := decode(res, &tasks); err != nil {
		slog.Warn("error listing tasks", "error", err)
		return []api.Task{}
	}
	if tasks == nil {
		tasks = []api.Task{}
	}
	return tasks
}

func (c *Client) Health(ctx context.Context) bool {
	res, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		slog.Debug("health check failed", "error", err)
		return false
	}
	return res.IsSuccess()
}

// DownloadURL resolves the task's result link. Relative links are resolved
// against the executor origin.
func (c *Client) DownloadURL(task *api.Task) (string, error) {
	if task == nil || task.DownloadURL == "" {
		return "", ErrNotDownloadable
	}

	link, err := url.Parse(task.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("invalid download url '%s': %w", task.DownloadURL, err)
	}
	if link.IsAbs() {
		return link.String(), nil
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url '%s': %w", c.baseURL, err)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(link).String(), nil
}

// Download saves the result of a completed task to dest.
func (c *Client) Download(ctx context.Context, id, dest string) error {
	task, err := c.Fetch(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return &FetchError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("task %s not found", id)}
	}
	if task.Status != api.TaskCompleted {
		return fmt.Errorf("%w: task %s is %s", ErrNotDownloadable, id, task.Status)
	}

	link, err := c.DownloadURL(task)
	if err != nil {
		return err
	}

	res, err := c.client.R().SetContext(ctx).SetOutput(dest).Get(link)
	if err != nil {
		return fmt.Errorf("error downloading result of task %s: %w", id, err)
	}
	if !res.IsSuccess() {
		_ = os.Remove(dest)
		return &FetchError{StatusCode: res.StatusCode(), Message: fmt.Sprintf("download of %s failed", link)}
	}

	slog.Info("downloaded task result", "task_id", id, "dest", dest)
	return nil
}
