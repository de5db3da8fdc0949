package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"product-enhancer/internal/core"
	"product-enhancer/internal/database"
	"product-enhancer/internal/llm"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"
	"product-enhancer/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	uploadBucket = "uploads"
	resultBucket = "results"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

// colorCompleter answers with the first color word found in the prompt.
type colorCompleter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *colorCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.fail {
		return "", errors.New("provider unavailable")
	}
	_, info, _ := strings.Cut(userPrompt, "Product information:")
	info, _, _ = strings.Cut(info, "Extract the following")
	for _, color := range []string{"red", "black", "white"} {
		if strings.Contains(info, color) {
			return `{"Color": "` + color + `", "Weight": null}`, nil
		}
	}
	return `{"Color": null}`, nil
}

func (c *colorCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	db        *gorm.DB
	storage   *storage.LocalProvider
	queue     *messaging.InMemoryQueue
	completer *colorCompleter
	processor *core.TaskProcessor
}

func setup(t *testing.T) *fixture {
	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		db:        createDB(t),
		storage:   provider,
		queue:     messaging.NewInMemoryQueue(),
		completer: &colorCompleter{},
	}
	factory := func(p api.Provider, apiKey string) (llm.Completer, error) {
		if apiKey != "sk-test" {
			return nil, errors.New("unexpected api key")
		}
		return f.completer, nil
	}
	f.processor = core.NewTaskProcessor(f.db, f.storage, f.queue, f.queue, factory, core.ProcessorConfig{
		UploadBucket: uploadBucket,
		ResultBucket: resultBucket,
		MaxWorkers:   3,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
	})
	return f
}

func (f *fixture) createTask(t *testing.T, filename, content string) uuid.UUID {
	ctx := context.Background()
	id := uuid.New()
	key := id.String() + "/" + filename
	require.NoError(t, f.storage.PutObject(ctx, uploadBucket, key, strings.NewReader(content)))

	config, err := json.Marshal(api.ProcessingConfig{
		TextColumns:   []string{"description"},
		Attributes:    []string{"Color", "Weight"},
		CustomPrompts: map[string]string{"Color": "main color"},
		Provider:      api.ProviderPrimary,
	})
	require.NoError(t, err)

	require.NoError(t, database.CreateTask(ctx, f.db, &database.Task{
		Id:        id,
		Filename:  filename,
		UploadKey: key,
		Config:    datatypes.JSON(config),
		ApiKey:    "sk-test",
		Provider:  string(api.ProviderPrimary),
	}))
	return id
}

func (f *fixture) run(t *testing.T, id uuid.UUID) {
	require.NoError(t, f.queue.PublishExtractionTask(context.Background(), messaging.ExtractionPayload{TaskId: id}))
	f.processor.ProcessTask(<-f.queue.Tasks())
}

func (f *fixture) resultRows(t *testing.T, name string) [][]string {
	data, err := f.storage.GetObject(context.Background(), resultBucket, name)
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Sheet1")
	require.NoError(t, err)
	return rows
}

func TestProcessExtractionTask(t *testing.T) {
	f := setup(t)
	id := f.createTask(t, "products.csv", "name,description\nkettle,red steel kettle\ntoaster\nmug,black mug\n")

	f.run(t, id)

	task, err := database.GetTask(context.Background(), f.db, id)
	require.NoError(t, err)
	assert.Equal(t, database.TaskCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, 3, task.TotalRows)
	assert.True(t, strings.HasPrefix(task.ResultName, "products_enhanced_"))
	assert.Equal(t, 2, f.completer.Calls(), "rows without text are not sent to the model")

	assert.Equal(t, [][]string{
		{"name", "description", "Color", "Weight"},
		{"kettle", "red steel kettle", "red"},
		{"toaster"},
		{"mug", "black mug", "black"},
	}, f.resultRows(t, task.ResultName))
}

func TestProcessResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	id := f.createTask(t, "products.csv", "name,description\nkettle,red kettle\nmug,black mug\n")

	require.NoError(t, database.StartTask(ctx, f.db, id, 2))
	require.NoError(t, database.SaveRowResult(ctx, f.db, id, 0, map[string]string{"Color": "cached"}))

	f.run(t, id)

	task, err := database.GetTask(ctx, f.db, id)
	require.NoError(t, err)
	assert.Equal(t, database.TaskCompleted, task.Status)
	assert.Equal(t, 1, f.completer.Calls())

	rows := f.resultRows(t, task.ResultName)
	assert.Equal(t, "cached", rows[1][2])
	assert.Equal(t, "black", rows[2][2])
}

func TestProcessFailedExtractionLeavesRowsEmpty(t *testing.T) {
	f := setup(t)
	f.completer.fail = true
	id := f.createTask(t, "products.csv", "description\nred kettle\n")

	f.run(t, id)

	task, err := database.GetTask(context.Background(), f.db, id)
	require.NoError(t, err)
	assert.Equal(t, database.TaskCompleted, task.Status)
	assert.Equal(t, 2, f.completer.Calls())
	assert.Equal(t, [][]string{{"description", "Color", "Weight"}, {"red kettle"}}, f.resultRows(t, task.ResultName))
}

func TestProcessUnreadableUpload(t *testing.T) {
	f := setup(t)
	id := f.createTask(t, "products.xlsx", "this is not a workbook")

	f.run(t, id)

	task, err := database.GetTask(context.Background(), f.db, id)
	require.NoError(t, err)
	assert.Equal(t, database.TaskError, task.Status)
	assert.Contains(t, task.ErrorMessage, "error reading uploaded file")
	assert.Equal(t, 0, f.completer.Calls())
}

func TestProcessSkipsFinishedTask(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	id := f.createTask(t, "products.csv", "description\nred kettle\n")
	require.NoError(t, database.FailTask(ctx, f.db, id, "cancelled"))

	f.run(t, id)

	task, err := database.GetTask(ctx, f.db, id)
	require.NoError(t, err)
	assert.Equal(t, database.TaskError, task.Status)
	assert.Equal(t, "cancelled", task.ErrorMessage)
	assert.Equal(t, 0, f.completer.Calls())
}

type recordingTask struct {
	queue    string
	payload  []byte
	rejected bool
	acked    bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { t.acked = true; return nil }
func (t *recordingTask) Nack() error     { return nil }
func (t *recordingTask) Reject() error   { t.rejected = true; return nil }

func TestProcessRejectsMalformedMessages(t *testing.T) {
	f := setup(t)

	malformed := &recordingTask{queue: messaging.ExtractionQueue, payload: []byte("{not json")}
	f.processor.ProcessTask(malformed)
	assert.True(t, malformed.rejected)

	unknown := &recordingTask{queue: "shard_data_queue", payload: []byte("{}")}
	f.processor.ProcessTask(unknown)
	assert.True(t, unknown.rejected)
	assert.False(t, unknown.acked)
}

func TestRequeueUnfinished(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.createTask(t, "a.csv", "description\nred\n")
	done := f.createTask(t, "b.csv", "description\nred\n")
	require.NoError(t, database.FailTask(ctx, f.db, done, "boom"))

	require.NoError(t, f.processor.RequeueUnfinished(ctx))

	task := <-f.queue.Tasks()
	var payload messaging.ExtractionPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, pending, payload.TaskId)
	assert.Len(t, f.queue.Tasks(), 0)
}
