package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// predecessors lists the statuses a task may hold before moving to the key.
// Processing may be re-entered so a restarted worker can resume a task.
var predecessors = map[string][]string{
	TaskProcessing: {TaskPending, TaskProcessing},
	TaskCompleted:  {TaskProcessing},
	TaskError:      {TaskPending, TaskProcessing},
}

func CreateTask(ctx context.Context, txn *gorm.DB, task *Task) error {
	now := time.Now().UTC()
	task.CreationTime = now
	task.UpdateTime = now
	if task.Status == "" {
		task.Status = TaskPending
	}
	if err := txn.WithContext(ctx).Create(task).Error; err != nil {
		slog.Error("error creating task", "task_id", task.Id, "error", err)
		return fmt.Errorf("error creating task: %w", err)
	}
	return nil
}

func GetTask(ctx context.Context, txn *gorm.DB, id uuid.UUID) (*Task, error) {
	var task Task
	if err := txn.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("error getting task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns tasks newest first. Empty status matches all, limit <= 0 means no limit.
func ListTasks(ctx context.Context, txn *gorm.DB, status string, limit int) ([]Task, error) {
	query := txn.WithContext(ctx).Order("creation_time DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var tasks []Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	return tasks, nil
}

// ListUnfinishedTasks returns pending and processing tasks, oldest first.
func ListUnfinishedTasks(ctx context.Context, txn *gorm.DB) ([]Task, error) {
	var tasks []Task
	if err := txn.WithContext(ctx).
		Where("status IN ?", []string{TaskPending, TaskProcessing}).
		Order("creation_time ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("error listing unfinished tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task forward. The transition is checked in the
// update itself, so a concurrent writer can never move a task backwards.
func UpdateTaskStatus(ctx context.Context, txn *gorm.DB, id uuid.UUID, status string, extra map[string]any) error {
	from, ok := predecessors[status]
	if !ok {
		return fmt.Errorf("%w: cannot move task to '%s'", ErrInvalidTransition, status)
	}

	updates := map[string]any{"status": status, "update_time": time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}
	if status == TaskCompleted || status == TaskError {
		updates["completion_time"] = time.Now().UTC()
	}

	result := txn.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if err := result.Error; err != nil {
		slog.Error("error updating task status", "task_id", id, "status", status, "error", err)
		return fmt.Errorf("error updating task status: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s cannot move to '%s'", ErrInvalidTransition, id, status)
	}
	return nil
}

func StartTask(ctx context.Context, txn *gorm.DB, id uuid.UUID, totalRows int) error {
	return UpdateTaskStatus(ctx, txn, id, TaskProcessing, map[string]any{"total_rows": totalRows})
}

func CompleteTask(ctx context.Context, txn *gorm.DB, id uuid.UUID, resultName string) error {
	return UpdateTaskStatus(ctx, txn, id, TaskCompleted, map[string]any{"progress": 100, "result_name": resultName})
}

func FailTask(ctx context.Context, txn *gorm.DB, id uuid.UUID, message string) error {
	return UpdateTaskStatus(ctx, txn, id, TaskError, map[string]any{"error_message": message})
}

// UpdateTaskProgress records processed rows. Progress never decreases and is
// only written while the task is processing.
func UpdateTaskProgress(ctx context.Context, txn *gorm.DB, id uuid.UUID, processed, total int) error {
	progress := 100
	if total > 0 {
		progress = processed * 100 / total
	}

	if err := txn.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ? AND progress <= ?", id, TaskProcessing, progress).
		Updates(map[string]any{"progress": progress, "processed_rows": processed, "update_time": time.Now().UTC()}).
		Error; err != nil {
		slog.Error("error updating task progress", "task_id", id, "progress", progress, "error", err)
		return fmt.Errorf("error updating task progress: %w", err)
	}
	return nil
}

func SaveRowResult(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, rowIndex int, values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("could not marshal row values: %w", err)
	}

	row := RowResult{TaskId: taskId, RowIndex: rowIndex, Attributes: datatypes.JSON(data)}
	if err := txn.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("error saving result of row %d: %w", rowIndex, err)
	}
	return nil
}

// GetRowResults returns the checkpointed values keyed by row index.
func GetRowResults(ctx context.Context, txn *gorm.DB, taskId uuid.UUID) (map[int]map[string]string, error) {
	var rows []RowResult
	if err := txn.WithContext(ctx).Where("task_id = ?", taskId).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("could not query row results: %w", err)
	}

	results := make(map[int]map[string]string, len(rows))
	for _, r := range rows {
		var values map[string]string
		if err := json.Unmarshal(r.Attributes, &values); err != nil {
			return nil, fmt.Errorf("invalid values JSON for row %d: %w", r.RowIndex, err)
		}
		results[r.RowIndex] = values
	}
	return results, nil
}
