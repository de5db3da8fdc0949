package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"product-enhancer/internal/database"
	"product-enhancer/internal/messaging"
	"product-enhancer/internal/storage"
	"product-enhancer/internal/tabular"
	"product-enhancer/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	Version = "2.0"

	DefaultMaxUploadBytes = 16 << 20
	PreviewRows           = 5
)

type ServiceConfig struct {
	UploadBucket string
	ResultBucket string
	// BasePath is the prefix the routes are mounted under, used to build download links.
	BasePath       string
	MaxUploadBytes int64
}

type BackendService struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	cfg       ServiceConfig
}

func NewBackendService(db *gorm.DB, storage storage.Provider, publisher messaging.Publisher, cfg ServiceConfig) *BackendService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &BackendService{db: db, storage: storage, publisher: publisher, cfg: cfg}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.Health))
	r.Post("/preview", RestHandler(s.Preview))
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateTask))
		r.Get("/", RestHandler(s.ListTasks))
		r.Get("/{task_id}", RestHandler(s.GetTask))
	})
	r.Get("/download/{filename}", s.Download)
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{
		Status:  "ok",
		Message: "product attribute enhancer api is running",
		Version: Version,
	}, nil
}

type upload struct {
	filename string
	mimeType string
	data     []byte
}

// parseUpload reads the multipart form and its "file" part, enforcing the
// upload size limit.
func (s *BackendService) parseUpload(r *http.Request) (*upload, error) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds the limit of %d bytes", s.cfg.MaxUploadBytes)
	}
	r.Body = http.MaxBytesReader(nil, r.Body, s.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds the limit of %d bytes", s.cfg.MaxUploadBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, CodedErrorf(http.StatusBadRequest, "no file uploaded")
		}
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file: %v", err)
	}
	defer file.Close()

	filename := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return nil, CodedErrorf(http.StatusBadRequest, "no file selected")
	}
	if !tabular.Allowed(filename) {
		return nil, CodedErrorf(http.StatusBadRequest, "unsupported file type '%s'", filepath.Ext(filename))
	}

	data, err := readPart(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file: %v", err)
	}

	return &upload{filename: filename, mimeType: header.Header.Get("Content-Type"), data: data}, nil
}

func readPart(file multipart.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ingestError(err error) error {
	if errors.Is(err, tabular.ErrUnsupportedFormat) || errors.Is(err, tabular.ErrEmptyDocument) {
		return CodedErrorf(http.StatusBadRequest, "error reading file: %v", err)
	}
	return CodedErrorf(http.StatusInternalServerError, "error reading file: %v", err)
}

func (s *BackendService) Preview(r *http.Request) (any, error) {
	up, err := s.parseUpload(r)
	if err != nil {
		return nil, err
	}

	doc, err := tabular.Ingest(up.data, up.filename, up.mimeType)
	if err != nil {
		return nil, ingestError(err)
	}

	preview := doc.Preview(PreviewRows)
	return api.PreviewResponse{Columns: preview.Columns, Rows: preview.Rows, Filename: up.filename}, nil
}

func parseJSONField(r *http.Request, name string, dst any) error {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return CodedErrorf(http.StatusBadRequest, "invalid %s: %v", name, err)
	}
	return nil
}

func (s *BackendService) parseConfig(r *http.Request) (api.ProcessingConfig, error) {
	var config api.ProcessingConfig
	if err := parseJSONField(r, "textColumns", &config.TextColumns); err != nil {
		return config, err
	}
	if err := parseJSONField(r, "attributes", &config.Attributes); err != nil {
		return config, err
	}
	// Unreadable custom prompts fall back to the default instructions.
	if err := parseJSONField(r, "customPrompts", &config.CustomPrompts); err != nil {
		slog.Warn("ignoring invalid custom prompts", "error", err)
		config.CustomPrompts = nil
	}
	if config.CustomPrompts == nil {
		config.CustomPrompts = map[string]string{}
	}

	config.APIKey = strings.TrimSpace(r.FormValue("apiKey"))
	if config.APIKey == "" {
		return config, CodedErrorf(http.StatusBadRequest, "API key is required")
	}

	providerName := r.FormValue("provider")
	if strings.TrimSpace(providerName) == "" {
		providerName = string(api.ProviderPrimary)
	}
	provider, err := api.ParseProvider(providerName)
	if err != nil {
		return config, CodedError(http.StatusBadRequest, err)
	}
	config.Provider = provider

	if len(config.TextColumns) == 0 {
		return config, CodedErrorf(http.StatusBadRequest, "at least one text column is required")
	}
	if len(config.Attributes) == 0 {
		return config, CodedErrorf(http.StatusBadRequest, "at least one attribute is required")
	}

	return config, nil
}

func (s *BackendService) CreateTask(r *http.Request) (any, error) {
	up, err := s.parseUpload(r)
	if err != nil {
		return nil, err
	}

	config, err := s.parseConfig(r)
	if err != nil {
		return nil, err
	}

	doc, err := tabular.Ingest(up.data, up.filename, up.mimeType)
	if err != nil {
		return nil, ingestError(err)
	}
	for _, column := range config.TextColumns {
		if doc.ColumnIndex(column) < 0 {
			return nil, CodedErrorf(http.StatusBadRequest, "unknown text column '%s'", column)
		}
	}

	ctx := r.Context()

	taskId := uuid.New()
	uploadKey := taskId.String() + "/" + up.filename
	if err := s.storage.PutObject(ctx, s.cfg.UploadBucket, uploadKey, bytes.NewReader(up.data)); err != nil {
		slog.Error("error storing upload", "task_id", taskId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store uploaded file")
	}

	storedConfig, err := json.Marshal(config.Redacted())
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to encode task config")
	}

	task := database.Task{
		Id:        taskId,
		Filename:  up.filename,
		UploadKey: uploadKey,
		Status:    database.TaskPending,
		Config:    datatypes.JSON(storedConfig),
		ApiKey:    config.APIKey,
		Provider:  string(config.Provider),
	}
	if err := database.CreateTask(ctx, s.db, &task); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create task entry")
	}

	if err := s.publisher.PublishExtractionTask(ctx, messaging.ExtractionPayload{TaskId: taskId}); err != nil {
		slog.Error("error publishing extraction task", "task_id", taskId, "error", err)
		if err := database.FailTask(ctx, s.db, taskId, "failed to queue task"); err != nil {
			slog.Error("error marking unqueued task as failed", "task_id", taskId, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue extraction task")
	}

	slog.Info("created extraction task", "task_id", taskId, "filename", up.filename, "rows", len(doc.Rows), "config", config)
	return convertTask(task, s.cfg.BasePath), nil
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListTasksParams](r)
	if err != nil {
		return nil, err
	}
	if params.Status != "" && api.TaskStatus(params.Status).Rank() == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid status '%s'", params.Status)
	}

	tasks, err := database.ListTasks(r.Context(), s.db, params.Status, params.Limit)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing tasks")
	}

	return convertTasks(tasks, s.cfg.BasePath), nil
}

func (s *BackendService) GetTask(r *http.Request) (any, error) {
	taskId, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	task, err := database.GetTask(r.Context(), s.db, taskId)
	if err != nil {
		if errors.Is(err, database.ErrTaskNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "task '%s' not found", taskId)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving task record")
	}

	return convertTask(*task, s.cfg.BasePath), nil
}

func (s *BackendService) Download(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, CodedErrorf(http.StatusBadRequest, "invalid file name"))
		return
	}
	if err := validateResultName(name); err != nil {
		writeError(w, err)
		return
	}

	stream, err := s.storage.GetObjectStream(r.Context(), s.cfg.ResultBucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, CodedErrorf(http.StatusNotFound, "file '%s' not found", name))
			return
		}
		writeError(w, CodedError(http.StatusInternalServerError, fmt.Errorf("error opening result file: %w", err)))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		slog.Error("error streaming result file", "filename", name, "error", err)
	}
}
