package llm_test

import (
	"testing"

	"product-enhancer/internal/llm"
	"product-enhancer/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEndpoints(t *testing.T) {
	endpoints := llm.DefaultEndpoints()

	primary, err := endpoints.Lookup(api.ProviderPrimary)
	require.NoError(t, err)
	assert.Equal(t, llm.Endpoint{BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"}, primary)

	alternate, err := endpoints.Lookup(api.ProviderAlternate)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", alternate.Model)

	_, err = endpoints.Lookup(api.ProviderCustom)
	assert.Error(t, err)
}

func TestWithCustom(t *testing.T) {
	base := llm.DefaultEndpoints()

	endpoints := base.WithCustom("http://localhost:11434/v1/", "llama3")
	custom, err := endpoints.Lookup(api.ProviderCustom)
	require.NoError(t, err)
	assert.Equal(t, llm.Endpoint{BaseURL: "http://localhost:11434/v1", Model: "llama3"}, custom)

	_, err = base.Lookup(api.ProviderCustom)
	assert.Error(t, err, "original endpoints must not be modified")

	_, err = base.WithCustom("  ", "llama3").Lookup(api.ProviderCustom)
	assert.Error(t, err)
}

func TestNewCompleter(t *testing.T) {
	endpoints := llm.DefaultEndpoints().WithCustom("http://localhost:8080/v1", "local")

	c, err := llm.NewCompleter(api.ProviderPrimary, endpoints[api.ProviderPrimary], "key")
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAI{}, c)

	c, err = llm.NewCompleter(api.ProviderCustom, endpoints[api.ProviderCustom], "key")
	require.NoError(t, err)
	assert.IsType(t, &llm.LangChain{}, c)

	_, err = llm.NewCompleter(api.Provider("other"), llm.Endpoint{}, "key")
	assert.Error(t, err)
}
