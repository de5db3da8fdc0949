package assembler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"product-enhancer/internal/assembler"
	"product-enhancer/internal/llm"
	"product-enhancer/internal/prompts"
	"product-enhancer/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleColumn(t *testing.T) {
	a := assembler.New([]string{"name", "description", "price"})

	selected, err := a.ToggleColumn("description")
	require.NoError(t, err)
	assert.True(t, selected)

	_, err = a.ToggleColumn("name")
	require.NoError(t, err)
	assert.Equal(t, []string{"description", "name"}, a.SelectedColumns())

	selected, err = a.ToggleColumn("description")
	require.NoError(t, err)
	assert.False(t, selected)
	assert.Equal(t, []string{"name"}, a.SelectedColumns())

	_, err = a.ToggleColumn("sku")
	assert.ErrorIs(t, err, assembler.ErrUnknownColumn)
	assert.ErrorIs(t, err, assembler.ErrValidation)
}

func TestConfirmAttributes(t *testing.T) {
	a := assembler.New([]string{"description"})

	require.NoError(t, a.EditAttributes("  Color \n\nWeight\nColor\n"))
	require.NoError(t, a.ConfirmAttributes())
	assert.Equal(t, []string{"Color", "Weight"}, a.Attributes())
	assert.Equal(t, map[string]string{"Color": "", "Weight": ""}, a.CustomPrompts())

	assert.ErrorIs(t, a.EditAttributes("Size"), assembler.ErrAttributesLocked)

	require.NoError(t, a.SetCustomPrompt("Color", "Extract the main color"))
	assert.ErrorIs(t, a.SetCustomPrompt("Size", "x"), assembler.ErrUnknownAttribute)

	a.Unconfirm()
	require.NoError(t, a.EditAttributes("Color\nCapacity"))
	require.NoError(t, a.ConfirmAttributes())
	assert.Equal(t, map[string]string{"Color": "Extract the main color", "Capacity": ""}, a.CustomPrompts())
}

func TestConfirmEmptyAttributes(t *testing.T) {
	a := assembler.New([]string{"description"})
	require.NoError(t, a.EditAttributes("Color"))
	require.NoError(t, a.ConfirmAttributes())

	a.Unconfirm()
	require.NoError(t, a.EditAttributes(" \n \n"))
	assert.ErrorIs(t, a.ConfirmAttributes(), assembler.ErrNoAttributes)
	assert.False(t, a.Confirmed())
	assert.Equal(t, []string{"Color"}, a.Attributes())
}

func TestSetCustomPromptBeforeConfirm(t *testing.T) {
	a := assembler.New([]string{"description"})
	assert.ErrorIs(t, a.SetCustomPrompt("Color", "x"), assembler.ErrAttributesNotConfirmed)
}

func TestSetProvider(t *testing.T) {
	a := assembler.New(nil)
	assert.NoError(t, a.SetProvider("OpenAI"))
	assert.ErrorIs(t, a.SetProvider("anthropic"), assembler.ErrUnknownProvider)
}

func TestBuild(t *testing.T) {
	a := assembler.New([]string{"name", "description"})

	_, err := a.Build()
	assert.ErrorIs(t, err, assembler.ErrNoColumnsSelected)

	_, err = a.ToggleColumn("description")
	require.NoError(t, err)
	_, err = a.Build()
	assert.ErrorIs(t, err, assembler.ErrAttributesNotConfirmed)

	require.NoError(t, a.EditAttributes("Color\nWeight"))
	require.NoError(t, a.ConfirmAttributes())
	_, err = a.Build()
	assert.ErrorIs(t, err, assembler.ErrMissingCredential)

	a.SetAPIKey(" sk-test ")
	require.NoError(t, a.SetCustomPrompt("Weight", "in kg"))
	config, err := a.Build()
	require.NoError(t, err)

	assert.Equal(t, api.ProcessingConfig{
		TextColumns:   []string{"description"},
		Attributes:    []string{"Color", "Weight"},
		CustomPrompts: map[string]string{"Color": "", "Weight": "in kg"},
		APIKey:        "sk-test",
		Provider:      api.ProviderPrimary,
	}, config)

	config.CustomPrompts["Color"] = "mutated"
	config.TextColumns[0] = "name"
	assert.Equal(t, "", a.CustomPrompts()["Color"])
	assert.Equal(t, []string{"description"}, a.SelectedColumns())
}

func newSynthesizer(t *testing.T, status int, content string) *prompts.Synthesizer {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)
	return prompts.NewSynthesizer(llm.Endpoints{api.ProviderPrimary: {BaseURL: server.URL, Model: "m"}})
}

func TestGeneratePrompts(t *testing.T) {
	a := assembler.New([]string{"description"})
	a.SetAPIKey("sk-test")
	a.SetProductType("kettle")

	_, err := a.GeneratePrompts(context.Background(), newSynthesizer(t, http.StatusOK, "{}"))
	assert.ErrorIs(t, err, assembler.ErrAttributesNotConfirmed)

	require.NoError(t, a.EditAttributes("Color\nWeight"))
	require.NoError(t, a.ConfirmAttributes())
	require.NoError(t, a.SetCustomPrompt("Color", "mine"))

	synth := newSynthesizer(t, http.StatusOK, `{"Color": "theirs", "Weight": "Extract weight in kg"}`)
	result, err := a.GeneratePrompts(context.Background(), synth)
	require.NoError(t, err)
	assert.Equal(t, 1, result.GeneratedCount)
	assert.Equal(t, map[string]string{"Color": "mine", "Weight": "Extract weight in kg"}, a.CustomPrompts())

	failing := newSynthesizer(t, http.StatusInternalServerError, "")
	require.NoError(t, a.SetCustomPrompt("Weight", ""))
	_, err = a.GeneratePrompts(context.Background(), failing)
	var providerErr *prompts.ProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, map[string]string{"Color": "mine", "Weight": ""}, a.CustomPrompts())
}
