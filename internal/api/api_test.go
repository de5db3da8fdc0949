package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	backend "product-enhancer/internal/api"
	"product-enhancer/internal/database"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"
	"product-enhancer/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type env struct {
	db      *gorm.DB
	storage *storage.LocalProvider
	queue   *messaging.InMemoryQueue
	router  chi.Router
}

func setup(t *testing.T, maxUpload int64) *env {
	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	e := &env{db: createDB(t), storage: provider, queue: messaging.NewInMemoryQueue()}
	service := backend.NewBackendService(e.db, e.storage, e.queue, backend.ServiceConfig{
		UploadBucket:   uploadBucket,
		ResultBucket:   resultBucket,
		BasePath:       "/api",
		MaxUploadBytes: maxUpload,
	})

	e.router = chi.NewRouter()
	e.router.Route("/api", service.AddRoutes)
	return e
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, url, filename, content string, fields map[string]string) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	var res api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Error
}

const products = "name,description\nkettle,red steel kettle\nmug,black mug\n"

func validFields() map[string]string {
	return map[string]string{
		"textColumns":   `["description"]`,
		"attributes":    `["Color","Material"]`,
		"customPrompts": `{"Color":"main color"}`,
		"apiKey":        "sk-secret",
		"provider":      "openai",
	}
}

func TestHealth(t *testing.T) {
	e := setup(t, 0)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, backend.Version, res.Version)
}

func TestPreview(t *testing.T) {
	e := setup(t, 0)

	t.Run("FirstRows", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("sku,title\n")
		for i := range 8 {
			b.WriteString("sku" + string(rune('a'+i)) + ",item\n")
		}
		rec := e.do(multipartRequest(t, "/api/preview", "items.csv", b.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var res api.PreviewResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, []string{"sku", "title"}, res.Columns)
		assert.Len(t, res.Rows, backend.PreviewRows)
		assert.Equal(t, []string{"skua", "item"}, res.Rows[0])
		assert.Equal(t, "items.csv", res.Filename)
	})

	t.Run("MissingFile", func(t *testing.T) {
		rec := e.do(multipartRequest(t, "/api/preview", "", "", map[string]string{"x": "y"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "no file uploaded", errorMessage(t, rec))
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		rec := e.do(multipartRequest(t, "/api/preview", "notes.pdf", "%PDF-1.4", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "unsupported file type")
	})

	t.Run("CorruptWorkbook", func(t *testing.T) {
		rec := e.do(multipartRequest(t, "/api/preview", "sheet.xlsx", "not a zip", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "error reading file")
	})
}

func TestUploadTooLarge(t *testing.T) {
	e := setup(t, 256)

	rec := e.do(multipartRequest(t, "/api/preview", "big.csv", "a,b\n"+strings.Repeat("x,y\n", 200), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "exceeds the limit")
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	e := setup(t, 0)

	rec := e.do(multipartRequest(t, "/api/tasks", "products.csv", products, validFields()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var task api.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, api.TaskPending, task.Status)
	assert.Equal(t, "products.csv", task.Filename)
	assert.Equal(t, 0, task.Progress)
	require.NotNil(t, task.Config)
	assert.Equal(t, []string{"Color", "Material"}, task.Config.Attributes)
	assert.Equal(t, api.ProviderAlternate, task.Config.Provider)
	assert.NotContains(t, rec.Body.String(), "sk-secret")

	id, err := uuid.Parse(task.ID)
	require.NoError(t, err)

	stored, err := database.GetTask(ctx, e.db, id)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", stored.ApiKey)
	assert.NotContains(t, string(stored.Config), "sk-secret")

	upload, err := e.storage.GetObject(ctx, uploadBucket, stored.UploadKey)
	require.NoError(t, err)
	assert.Equal(t, products, string(upload))

	select {
	case msg := <-e.queue.Tasks():
		var payload messaging.ExtractionPayload
		require.NoError(t, json.Unmarshal(msg.Payload(), &payload))
		assert.Equal(t, id, payload.TaskId)
	default:
		t.Fatal("no extraction task was published")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e := setup(t, 0)

	cases := []struct {
		name    string
		change  func(map[string]string)
		message string
	}{
		{"MissingKey", func(f map[string]string) { delete(f, "apiKey") }, "API key is required"},
		{"NoAttributes", func(f map[string]string) { f["attributes"] = "[]" }, "at least one attribute is required"},
		{"NoColumns", func(f map[string]string) { delete(f, "textColumns") }, "at least one text column is required"},
		{"UnknownColumn", func(f map[string]string) { f["textColumns"] = `["weight"]` }, "unknown text column 'weight'"},
		{"UnknownProvider", func(f map[string]string) { f["provider"] = "acme" }, "unknown provider 'acme'"},
		{"BadAttributes", func(f map[string]string) { f["attributes"] = "Color" }, "invalid attributes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := validFields()
			tc.change(fields)

			rec := e.do(multipartRequest(t, "/api/tasks", "products.csv", products, fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tc.message)
		})
	}

	tasks, err := database.ListTasks(context.Background(), e.db, "", 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Len(t, e.queue.Tasks(), 0)
}

func TestCreateTaskDefaults(t *testing.T) {
	e := setup(t, 0)

	fields := validFields()
	delete(fields, "provider")
	fields["customPrompts"] = "{broken"

	rec := e.do(multipartRequest(t, "/api/tasks", "products.csv", products, fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var task api.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, api.ProviderPrimary, task.Config.Provider)
	assert.Empty(t, task.Config.CustomPrompts)
}

func insertTask(t *testing.T, db *gorm.DB, filename, status string, created time.Time) database.Task {
	task := database.Task{
		Id:           uuid.New(),
		Filename:     filename,
		UploadKey:    "key/" + filename,
		Status:       status,
		Config:       datatypes.JSON(`{"textColumns":["description"],"attributes":["Color"],"customPrompts":{},"provider":"deepseek"}`),
		ApiKey:       "sk-secret",
		Provider:     "deepseek",
		CreationTime: created,
		UpdateTime:   created,
	}
	require.NoError(t, db.Create(&task).Error)
	return task
}

func TestListTasks(t *testing.T) {
	e := setup(t, 0)
	now := time.Now().UTC()
	oldest := insertTask(t, e.db, "a.csv", database.TaskError, now.Add(-2*time.Hour))
	middle := insertTask(t, e.db, "b.csv", database.TaskPending, now.Add(-time.Hour))
	newest := insertTask(t, e.db, "c.csv", database.TaskPending, now)

	list := func(url string) []api.Task {
		rec := e.do(httptest.NewRequest(http.MethodGet, url, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var tasks []api.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
		return tasks
	}

	ids := func(tasks []api.Task) []string {
		out := make([]string, 0, len(tasks))
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	assert.Equal(t, []string{newest.Id.String(), middle.Id.String(), oldest.Id.String()}, ids(list("/api/tasks")))
	assert.Equal(t, []string{newest.Id.String(), middle.Id.String()}, ids(list("/api/tasks?status=pending")))
	assert.Equal(t, []string{newest.Id.String()}, ids(list("/api/tasks?limit=1")))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/tasks?status=paused", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/tasks?limit=many", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask(t *testing.T) {
	ctx := context.Background()
	e := setup(t, 0)
	task := insertTask(t, e.db, "products.csv", database.TaskPending, time.Now().UTC())

	get := func(id string) *httptest.ResponseRecorder {
		return e.do(httptest.NewRequest(http.MethodGet, "/api/tasks/"+id, nil))
	}

	rec := get(task.Id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var res api.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, api.TaskPending, res.Status)
	assert.Empty(t, res.DownloadURL)
	assert.Nil(t, res.CompletedAt)
	assert.NotContains(t, rec.Body.String(), "sk-secret")

	require.NoError(t, database.StartTask(ctx, e.db, task.Id, 4))
	require.NoError(t, database.CompleteTask(ctx, e.db, task.Id, "products_enhanced_20260101_120000.xlsx"))

	rec = get(task.Id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, api.TaskCompleted, res.Status)
	assert.Equal(t, 100, res.Progress)
	assert.Equal(t, "/api/download/products_enhanced_20260101_120000.xlsx", res.DownloadURL)
	assert.NotNil(t, res.CompletedAt)

	rec = get(uuid.New().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "not found")

	rec = get("not-a-task")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownload(t *testing.T) {
	e := setup(t, 0)
	name := "products_enhanced_20260101_120000.xlsx"
	require.NoError(t, e.storage.PutObject(context.Background(), resultBucket, name, strings.NewReader("workbook")))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/download/"+name, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "workbook", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), name)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/download/missing.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "not found")

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/download/..%2Fsecret.xlsx", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/api/download/notes.txt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
