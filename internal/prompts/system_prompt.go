package prompts

import (
	"fmt"
	"strings"
)

const DescriptionPlaceholder = "[INSERT PRODUCT DESCRIPTION HERE]"

const systemPrompt = `You write extraction instructions for a language model that reads product descriptions.
For every attribute you are given, write one self-contained instruction that follows these rules:

1. Atomicity: the instruction extracts exactly one attribute and nothing else.
2. Role framing: open with the role of a meticulous product data analyst.
3. Strict output format: state the exact shape of the answer and give a worked example,
   for instance "Capacity: 1.7L" rather than "about 1.7 liters".
4. Unit standardization: name the canonical unit (L, kg, W, cm, °C) and require conversion
   from any other unit before answering, with no space between value and unit.
5. Null handling: when the description does not mention the attribute, answer exactly
   "Not mentioned"; for yes/no attributes answer "No" when the feature is absent.
6. End every instruction with the placeholder ` + DescriptionPlaceholder + ` on its own line.

Answer with a single JSON object mapping each attribute name to its instruction text.
Do not add any commentary before or after the JSON object.`

func userPrompt(productType string, attributes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product type: %s\n", productType)
	b.WriteString("Attributes:\n")
	for _, attr := range attributes {
		fmt.Fprintf(&b, "- %s\n", attr)
	}
	return b.String()
}
