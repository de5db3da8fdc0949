package assembler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"product-enhancer/internal/prompts"
	"product-enhancer/pkg/api"
)

// Assembler collects the choices that make up a ProcessingConfig. It is not
// safe for concurrent use.
type Assembler struct {
	columns  []string
	selected []string

	attributeText string
	confirmed     bool
	attributes    []string
	customPrompts map[string]string

	apiKey      string
	provider    api.Provider
	productType string
}

func New(columns []string) *Assembler {
	return &Assembler{
		columns:       append([]string(nil), columns...),
		customPrompts: make(map[string]string),
		provider:      api.ProviderPrimary,
	}
}

// ToggleColumn flips the selection of a column and reports whether it is now selected.
func (a *Assembler) ToggleColumn(name string) (bool, error) {
	if !slices.Contains(a.columns, name) {
		return false, fmt.Errorf("%w '%s'", ErrUnknownColumn, name)
	}
	if i := slices.Index(a.selected, name); i >= 0 {
		a.selected = slices.Delete(a.selected, i, i+1)
		return false, nil
	}
	a.selected = append(a.selected, name)
	return true, nil
}

func (a *Assembler) SelectedColumns() []string {
	return slices.Clone(a.selected)
}

func (a *Assembler) EditAttributes(text string) error {
	if a.confirmed {
		return ErrAttributesLocked
	}
	a.attributeText = text
	return nil
}

func (a *Assembler) Unconfirm() {
	a.confirmed = false
}

func (a *Assembler) Confirmed() bool {
	return a.confirmed
}

func (a *Assembler) Attributes() []string {
	return slices.Clone(a.attributes)
}

// ConfirmAttributes freezes the attribute list parsed from the edited text.
// Prompts written for attributes that survive a re-confirmation are kept.
func (a *Assembler) ConfirmAttributes() error {
	attributes := ParseAttributes(a.attributeText)
	if len(attributes) == 0 {
		return ErrNoAttributes
	}

	customPrompts := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		customPrompts[attr] = a.customPrompts[attr]
	}

	a.attributes = attributes
	a.customPrompts = customPrompts
	a.confirmed = true
	return nil
}

// ParseAttributes splits on newlines, trims, drops blanks and keeps the first
// occurrence of duplicates.
func ParseAttributes(text string) []string {
	attributes := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		attr := strings.TrimSpace(line)
		if attr == "" || slices.Contains(attributes, attr) {
			continue
		}
		attributes = append(attributes, attr)
	}
	return attributes
}

func (a *Assembler) SetCustomPrompt(attr, text string) error {
	if !a.confirmed {
		return ErrAttributesNotConfirmed
	}
	if !slices.Contains(a.attributes, attr) {
		return fmt.Errorf("%w '%s'", ErrUnknownAttribute, attr)
	}
	a.customPrompts[attr] = text
	return nil
}

func (a *Assembler) CustomPrompts() map[string]string {
	out := make(map[string]string, len(a.customPrompts))
	for k, v := range a.customPrompts {
		out[k] = v
	}
	return out
}

func (a *Assembler) SetAPIKey(key string) {
	a.apiKey = strings.TrimSpace(key)
}

func (a *Assembler) SetProvider(name string) error {
	provider, err := api.ParseProvider(name)
	if err != nil {
		return fmt.Errorf("%w '%s'", ErrUnknownProvider, name)
	}
	a.provider = provider
	return nil
}

func (a *Assembler) SetProductType(productType string) {
	a.productType = strings.TrimSpace(productType)
}

// GeneratePrompts drafts prompts for the confirmed attributes. Existing text is
// never replaced and the stored prompts are left alone when synthesis fails.
func (a *Assembler) GeneratePrompts(ctx context.Context, synth *prompts.Synthesizer) (prompts.Result, error) {
	if !a.confirmed {
		return prompts.Result{Merged: a.CustomPrompts()}, ErrAttributesNotConfirmed
	}

	result, err := synth.Synthesize(ctx, prompts.Request{
		APIKey:      a.apiKey,
		Provider:    a.provider,
		ProductType: a.productType,
		Attributes:  a.Attributes(),
		Existing:    a.CustomPrompts(),
	})
	if err != nil {
		return result, err
	}

	for _, attr := range a.attributes {
		a.customPrompts[attr] = result.Merged[attr]
	}
	return result, nil
}

// Build validates the collected choices and returns an independent copy.
func (a *Assembler) Build() (api.ProcessingConfig, error) {
	if len(a.selected) == 0 {
		return api.ProcessingConfig{}, ErrNoColumnsSelected
	}
	if !a.confirmed {
		return api.ProcessingConfig{}, ErrAttributesNotConfirmed
	}
	if a.apiKey == "" {
		return api.ProcessingConfig{}, ErrMissingCredential
	}

	config := api.ProcessingConfig{
		TextColumns:   a.selected,
		Attributes:    a.attributes,
		CustomPrompts: a.customPrompts,
		APIKey:        a.apiKey,
		Provider:      a.provider,
	}
	return config.Clone(), nil
}
