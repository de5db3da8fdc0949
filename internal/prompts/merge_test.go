package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	existing := map[string]string{"Color": "keep me", "Weight": ""}
	generated := map[string]any{
		"Color":    "overwritten?",
		"Weight":   "Extract the weight in kg",
		"Capacity": "not requested",
		"Power":    42.0,
	}
	attributes := []string{"Color", "Weight", "Power"}

	merged, written := Merge(existing, generated, attributes)
	assert.Equal(t, 1, written)
	assert.Equal(t, map[string]string{"Color": "keep me", "Weight": "Extract the weight in kg"}, merged)
	assert.Equal(t, []string{"Power"}, Missing(merged, attributes))
	assert.Equal(t, "", existing["Weight"], "input map must not be modified")

	again, written := Merge(merged, generated, attributes)
	assert.Equal(t, 0, written)
	assert.Equal(t, merged, again)
}

func TestMergeBlankValues(t *testing.T) {
	merged, written := Merge(nil, map[string]any{"Color": "   ", "Size": nil}, []string{"Color", "Size"})
	assert.Equal(t, 0, written)
	assert.Empty(t, merged)
}

func TestExtractObject(t *testing.T) {
	for _, tc := range []struct {
		text string
		want string
		ok   bool
	}{
		{text: `{"a": "b"}`, want: `{"a": "b"}`, ok: true},
		{text: "Sure! ```json\n{\"a\": {\"b\": 1}}\n``` done {\"c\": 2}", want: `{"a": {"b": 1}}`, ok: true},
		{text: `{"a": "has } brace and \" quote"} tail`, want: `{"a": "has } brace and \" quote"}`, ok: true},
		{text: `no json here`, ok: false},
		{text: `{"a": "unterminated"`, ok: false},
	} {
		got, ok := ExtractObject(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestMergeKeepsWhitespacePrompt(t *testing.T) {
	merged, written := Merge(map[string]string{"Color": "   "}, map[string]any{"Color": "generated"}, []string{"Color"})
	assert.Equal(t, 0, written)
	assert.Equal(t, "   ", merged["Color"])
	assert.Empty(t, Missing(merged, []string{"Color"}))
}
