//go:build integration

package integrationtests

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backend "product-enhancer/internal/api"
	"product-enhancer/internal/core"
	"product-enhancer/internal/llm"
	"product-enhancer/internal/monitor"
	"product-enhancer/internal/taskclient"
	"product-enhancer/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type materialCompleter struct{}

func (materialCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	_, info, _ := strings.Cut(userPrompt, "Product information:")
	info, _, _ = strings.Cut(info, "Extract the following")
	if strings.Contains(info, "steel") {
		return "```json\n{\"Material\": \"steel\", \"Capacity\": \"1.7L\"}\n```", nil
	}
	return `{"Material": "ceramic", "Capacity": null}`, nil
}

func TestExtractionWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s3p := setupS3Provider(t, ctx)
	db := createDB(t, ctx)
	pub, sub := setupRabbitMQContainer(t, ctx)

	service := backend.NewBackendService(db, s3p, pub, backend.ServiceConfig{
		UploadBucket: uploadBucket,
		ResultBucket: resultBucket,
		BasePath:     "/api",
	})
	router := chi.NewRouter()
	router.Route("/api", service.AddRoutes)
	server := httptest.NewServer(router)
	defer server.Close()

	completers := func(provider api.Provider, apiKey string) (llm.Completer, error) {
		return materialCompleter{}, nil
	}
	worker := core.NewTaskProcessor(db, s3p, pub, sub, completers, core.ProcessorConfig{
		UploadBucket: uploadBucket,
		ResultBucket: resultBucket,
		MaxWorkers:   2,
		RetryDelay:   10 * time.Millisecond,
	})
	go worker.Start()
	defer worker.Stop()

	client := taskclient.New(server.URL + "/api")
	require.True(t, client.Health(ctx))

	content := "sku,title,details\n1,Kettle,brushed steel body\n2,Mug,glazed\n3,Lid\n"
	preview, err := client.Preview(ctx, "kitchen.csv", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "title", "details"}, preview.Columns)

	task, err := client.Submit(ctx, "kitchen.csv", strings.NewReader(content), api.ProcessingConfig{
		TextColumns:   []string{"title", "details"},
		Attributes:    []string{"Material", "Capacity"},
		CustomPrompts: map[string]string{"Capacity": "volume in liters"},
		APIKey:        "sk-integration",
		Provider:      api.ProviderPrimary,
	})
	require.NoError(t, err)
	assert.Equal(t, api.TaskPending, task.Status)

	var updates []api.Task
	handle := monitor.New(client, 200*time.Millisecond).Watch(ctx, task.ID, func(task api.Task) {
		updates = append(updates, task)
	})
	select {
	case <-handle.Done():
	case <-ctx.Done():
		t.Fatal("task did not finish in time")
	}

	require.NotEmpty(t, updates)
	final := updates[len(updates)-1]
	require.Equal(t, api.TaskCompleted, final.Status, final.ErrorMessage)
	assert.Equal(t, 100, final.Progress)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Status.Rank(), updates[i-1].Status.Rank())
	}

	listed := client.ListAll(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, task.ID, listed[0].ID)

	dest := filepath.Join(t.TempDir(), "result.xlsx")
	require.NoError(t, client.Download(ctx, task.ID, dest))

	book, err := excelize.OpenFile(dest)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"sku", "title", "details", "Material", "Capacity"},
		{"1", "Kettle", "brushed steel body", "steel", "1.7L"},
		{"2", "Mug", "glazed", "ceramic"},
		{"3", "Lid", "", "ceramic"},
	}, rows)
}
