package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docuchat/docuchat/internal/models"
)

// Prefix bounds keep classification and extraction prompts inside the model's
// input budget.
const (
	classifyPrefixLen = 2000
	extractPrefixLen  = 3000
)

const classifyPrompt = `Analyze the following document text and classify it into one of these categories:
- contract: Legal agreements, terms and conditions, contracts
- invoice: Bills, invoices, financial documents
- report: Reports, analysis, research documents
- letter: Letters, correspondence, memos
- other: Any other document type

Document text:
%s

Classification (respond with only the category name):`

var extractionPrompts = map[string]string{
	"contract": `Extract key information from this contract document:
- Parties involved
- Contract value/amount
- Start and end dates
- Key terms and conditions

Document text:
%s

Return as JSON format:`,
	"invoice": `Extract key information from this invoice:
- Invoice number
- Date
- Due date
- Total amount
- Vendor/client information
- Line items

Document text:
%s

Return as JSON format:`,
	"report": `Extract key information from this report:
- Report title
- Author
- Date
- Executive summary
- Key findings
- Recommendations

Document text:
%s

Return as JSON format:`,
}

// Classifier assigns a document type and extracts a type-specific field map
// using the generation model.
type Classifier struct {
	gen Generator
}

// NewClassifier creates a classifier on top of a Generator.
func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns the document type label for the given text. Labels outside
// the known set fail rather than being silently indexed under a bogus type.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(classifyPrompt, prefix(text, classifyPrefixLen))
	result, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	label := normalizeLabel(result)
	if label == "" {
		return "", fmt.Errorf("classify: unrecognized label %q", strings.TrimSpace(result))
	}
	return label, nil
}

// ExtractFields returns the structured field map for the given document type.
// Types without an extraction template get a raw-text map; a reply that is
// not valid JSON degrades to a raw-text map as well.
func (c *Classifier) ExtractFields(ctx context.Context, text, documentType string) (map[string]any, error) {
	tmpl, ok := extractionPrompts[documentType]
	if !ok {
		return map[string]any{"raw_text": prefix(text, 1000)}, nil
	}
	result, err := c.gen.Generate(ctx, fmt.Sprintf(tmpl, prefix(text, extractPrefixLen)))
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(result)), &fields); err != nil {
		return map[string]any{
			"extracted_text": result,
			"raw_text":       prefix(text, 1000),
		}, nil
	}
	return fields, nil
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Models occasionally answer "Classification: contract" or add a period.
	s = strings.TrimSuffix(s, ".")
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	for _, t := range models.DocumentTypes {
		if s == t || strings.Contains(s, t) {
			return t
		}
	}
	return ""
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
