package llm

import (
	_ "embed"
	"fmt"
	"strings"

	"product-enhancer/pkg/api"

	"gopkg.in/yaml.v2"
)

// Endpoint is an OpenAI-compatible chat completion service.
type Endpoint struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type Endpoints map[api.Provider]Endpoint

//go:embed providers.yaml
var providersYAML []byte

// DefaultEndpoints returns the built-in endpoints. The custom provider has no
// default and must be registered with WithCustom.
func DefaultEndpoints() Endpoints {
	var raw struct {
		Providers []struct {
			Name     string `yaml:"name"`
			Endpoint `yaml:",inline"`
		} `yaml:"providers"`
	}
	if err := yaml.Unmarshal(providersYAML, &raw); err != nil {
		panic(fmt.Sprintf("invalid embedded providers.yaml: %v", err))
	}

	endpoints := make(Endpoints, len(raw.Providers))
	for _, p := range raw.Providers {
		endpoints[api.Provider(p.Name)] = p.Endpoint
	}
	return endpoints
}

// WithCustom returns a copy with the custom provider registered. A blank base
// URL leaves the custom provider unregistered.
func (e Endpoints) WithCustom(baseURL, model string) Endpoints {
	out := make(Endpoints, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	if strings.TrimSpace(baseURL) != "" {
		out[api.ProviderCustom] = Endpoint{BaseURL: strings.TrimRight(baseURL, "/"), Model: model}
	}
	return out
}

func (e Endpoints) Lookup(provider api.Provider) (Endpoint, error) {
	endpoint, ok := e[provider]
	if !ok || endpoint.BaseURL == "" {
		return Endpoint{}, fmt.Errorf("no endpoint registered for provider '%s'", provider)
	}
	return endpoint, nil
}
