package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"product-enhancer/internal/core/utils"
	"product-enhancer/internal/database"
	"product-enhancer/internal/llm"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"
	"product-enhancer/internal/tabular"
	"product-enhancer/pkg/api"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultMaxWorkers = 5
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// CompleterFactory builds the model client for a task.
type CompleterFactory func(provider api.Provider, apiKey string) (llm.Completer, error)

func NewCompleterFactory(endpoints llm.Endpoints) CompleterFactory {
	return func(provider api.Provider, apiKey string) (llm.Completer, error) {
		endpoint, err := endpoints.Lookup(provider)
		if err != nil {
			return nil, err
		}
		return llm.NewCompleter(provider, endpoint, apiKey)
	}
}

type ProcessorConfig struct {
	UploadBucket string
	ResultBucket string
	MaxWorkers   int
	MaxRetries   int
	RetryDelay   time.Duration
}

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	reciever  messaging.Reciever

	completers CompleterFactory
	cfg        ProcessorConfig
}

func NewTaskProcessor(db *gorm.DB, storage storage.Provider, publisher messaging.Publisher, reciever messaging.Reciever, completers CompleterFactory, cfg ProcessorConfig) *TaskProcessor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &TaskProcessor{
		db:         db,
		storage:    storage,
		publisher:  publisher,
		reciever:   reciever,
		completers: completers,
		cfg:        cfg,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "max_workers", proc.cfg.MaxWorkers, "max_retries", proc.cfg.MaxRetries)

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

// RequeueUnfinished publishes every pending or processing task again. Rows that
// were checkpointed before a restart are not extracted twice.
func (proc *TaskProcessor) RequeueUnfinished(ctx context.Context) error {
	tasks, err := database.ListUnfinishedTasks(ctx, proc.db)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if err := proc.publisher.PublishExtractionTask(ctx, messaging.ExtractionPayload{TaskId: task.Id}); err != nil {
			return fmt.Errorf("error requeueing task %s: %w", task.Id, err)
		}
		slog.Info("requeued unfinished task", "task_id", task.Id, "status", task.Status)
	}
	return nil
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.ExtractionQueue:
		var payload messaging.ExtractionPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling extraction task", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processExtractionTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) fail(ctx context.Context, taskId uuid.UUID, err error) error {
	if updateErr := database.FailTask(ctx, proc.db, taskId, err.Error()); updateErr != nil {
		slog.Error("error marking task as failed", "task_id", taskId, "error", updateErr)
	}
	return err
}

type rowOutcome struct {
	index  int
	values map[string]string
}

func (proc *TaskProcessor) processExtractionTask(ctx context.Context, payload messaging.ExtractionPayload) error {
	task, err := database.GetTask(ctx, proc.db, payload.TaskId)
	if err != nil {
		return err
	}
	if task.Status == database.TaskCompleted || task.Status == database.TaskError {
		slog.Info("skipping finished task", "task_id", task.Id, "status", task.Status)
		return nil
	}

	var config api.ProcessingConfig
	if err := json.Unmarshal(task.Config, &config); err != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("invalid processing config: %w", err))
	}

	data, err := proc.storage.GetObject(ctx, proc.cfg.UploadBucket, task.UploadKey)
	if err != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("error loading uploaded file: %w", err))
	}

	doc, err := tabular.Ingest(data, task.Filename, "")
	if err != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("error reading uploaded file: %w", err))
	}

	if err := database.StartTask(ctx, proc.db, task.Id, len(doc.Rows)); err != nil {
		if errors.Is(err, database.ErrInvalidTransition) {
			slog.Warn("task can no longer be started", "task_id", task.Id)
			return nil
		}
		return err
	}

	completer, err := proc.completers(api.Provider(task.Provider), task.ApiKey)
	if err != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("error creating model client: %w", err))
	}
	extractor := NewExtractor(completer, proc.cfg.MaxRetries, proc.cfg.RetryDelay)

	results, err := database.GetRowResults(ctx, proc.db, task.Id)
	if err != nil {
		return proc.fail(ctx, task.Id, err)
	}
	if len(results) > 0 {
		slog.Info("resuming task from checkpoint", "task_id", task.Id, "processed_rows", len(results))
	}

	queue := make(chan int, len(doc.Rows))
	for i := range doc.Rows {
		if _, done := results[i]; !done {
			queue <- i
		}
	}
	close(queue)

	worker := func(row int) (rowOutcome, error) {
		values := map[string]string{}
		if text := RowText(doc, config.TextColumns, row); text != "" {
			extracted, err := extractor.Extract(ctx, text, config.Attributes, config.CustomPrompts)
			if err != nil {
				slog.Warn("leaving row empty after failed extraction", "task_id", task.Id, "row", row, "error", err)
			} else {
				values = extracted
			}
		}

		if err := database.SaveRowResult(ctx, proc.db, task.Id, row, values); err != nil {
			return rowOutcome{}, err
		}
		return rowOutcome{index: row, values: values}, nil
	}

	completed := make(chan utils.CompletedTask[rowOutcome], len(queue))
	utils.RunInPool(worker, queue, completed, proc.cfg.MaxWorkers)

	var workerErr error
	for res := range completed {
		if res.Error != nil {
			slog.Error("error processing row", "task_id", task.Id, "error", res.Error)
			workerErr = errors.Join(workerErr, res.Error)
			continue
		}
		results[res.Result.index] = res.Result.values
		if err := database.UpdateTaskProgress(ctx, proc.db, task.Id, len(results), len(doc.Rows)); err != nil {
			slog.Warn("error updating task progress", "task_id", task.Id, "error", err)
		}
	}
	if workerErr != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("error saving row results: %w", workerErr))
	}

	workbook, err := WriteWorkbook(doc, config.Attributes, results)
	if err != nil {
		return proc.fail(ctx, task.Id, err)
	}

	name := ResultName(task.Filename, time.Now())
	if err := proc.storage.PutObject(ctx, proc.cfg.ResultBucket, name, workbook); err != nil {
		return proc.fail(ctx, task.Id, fmt.Errorf("error saving result workbook: %w", err))
	}

	if err := database.CompleteTask(ctx, proc.db, task.Id, name); err != nil {
		return err
	}

	slog.Info("extraction task completed", "task_id", task.Id, "rows", len(doc.Rows), "result", name)
	return nil
}
