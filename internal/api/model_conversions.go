package api

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"path"

	"product-enhancer/internal/database"
	"product-enhancer/pkg/api"
)

func convertTask(t database.Task, basePath string) api.Task {
	task := api.Task{
		ID:           t.Id.String(),
		Filename:     t.Filename,
		Status:       api.TaskStatus(t.Status),
		Progress:     t.Progress,
		CreatedAt:    t.CreationTime,
		UpdatedAt:    t.UpdateTime,
		ErrorMessage: t.ErrorMessage,
	}

	var config api.ProcessingConfig
	if err := json.Unmarshal(t.Config, &config); err != nil {
		slog.Warn("stored task config is not valid json", "task_id", t.Id, "error", err)
	} else {
		redacted := config.Redacted()
		task.Config = &redacted
	}

	if t.CompletionTime.Valid {
		completed := t.CompletionTime.Time
		task.CompletedAt = &completed
	}

	if t.Status == database.TaskCompleted && t.ResultName != "" {
		task.DownloadURL = path.Join("/", basePath, "download", url.PathEscape(t.ResultName))
	}

	return task
}

func convertTasks(ts []database.Task, basePath string) []api.Task {
	tasks := make([]api.Task, 0, len(ts))
	for _, t := range ts {
		tasks = append(tasks, convertTask(t, basePath))
	}
	return tasks
}
