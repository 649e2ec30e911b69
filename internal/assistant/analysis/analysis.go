// Package analysis turns extracted document text into structured insight.
//
// The worker sends the document to the language model with an extraction
// prompt, then tries to interpret the reply as structured JSON.  Model
// output is untrusted: it is accepted as structured data only when it
// validates against the embedded result schema, and anything else is kept
// verbatim as a free-text summary.  Either way the job completes; the two
// shapes are tagged so API clients never have to guess.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ontime-erp/assistant/internal/assistant/llm"
)

//go:embed schema.json
var resultSchema string

var compiledSchema = jsonschema.MustCompileString("analysis/schema.json", resultSchema)

// promptTmpl instructs the model to extract document data.  Two verbs: the
// document name and the extracted text.
const promptTmpl = `Analyze the following document content from '%s' and extract key information, summarize it, and identify any relevant entities. If it's a structured document like an invoice or purchase order, extract line items, totals, dates, and parties. If it's a contract, identify key clauses, parties, and terms. If it's a general text, provide a concise summary and main topics. Return the output in a structured JSON format if possible, otherwise as a comprehensive summary.

Document Content:
%s`

// systemPrompt frames the model's role for every analysis call.
const systemPrompt = `You are a document-analysis assistant for a business management application. When you return JSON, it must be a single object with at least a "summary" string field; optional fields are "document_type", "entities", "line_items", "totals", "dates", and "parties". Return plain JSON with no markdown fences.`

// BuildMessages composes the model conversation for one document.
func BuildMessages(documentName, content string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(promptTmpl, documentName, content)},
	}
}

// Outcome is the tagged result of interpreting model output.
type Outcome struct {
	// Structured holds the validated JSON object, nil when the model
	// answered in prose.
	Structured json.RawMessage `json:"structured,omitempty"`
	// Summary holds the free-text answer when no valid JSON was produced.
	Summary string `json:"summary,omitempty"`
}

// MarshalResult renders the outcome in the shape stored on the job:
// {"kind":"structured","data":{...}} or {"kind":"summary","text":"..."}.
func (o Outcome) MarshalResult() (json.RawMessage, error) {
	var wire struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data,omitempty"`
		Text string          `json:"text,omitempty"`
	}
	if o.Structured != nil {
		wire.Kind = "structured"
		wire.Data = o.Structured
	} else {
		wire.Kind = "summary"
		wire.Text = o.Summary
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("analysis: marshal result: %w", err)
	}
	return out, nil
}

// ParseOutcome interprets raw model output.  Output that parses as JSON and
// validates against the result schema becomes a structured outcome; anything
// else — prose, malformed JSON, JSON of the wrong shape — is preserved as a
// summary.  Markdown code fences around JSON are tolerated and stripped.
func ParseOutcome(raw string) Outcome {
	candidate := stripFences(strings.TrimSpace(raw))

	var decoded any
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Outcome{Summary: strings.TrimSpace(raw)}
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return Outcome{Summary: strings.TrimSpace(raw)}
	}
	return Outcome{Structured: json.RawMessage(candidate)}
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	trimmed := strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
