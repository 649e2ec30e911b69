package analysis

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("invoice.pdf", "Total: 1500")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first role = %s, want system", msgs[0].Role)
	}
	if !strings.Contains(msgs[1].Content, "'invoice.pdf'") {
		t.Errorf("prompt does not name the document: %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[1].Content, "Total: 1500") {
		t.Error("prompt does not carry the document content")
	}
}

func TestParseOutcomeStructured(t *testing.T) {
	raw := `{"summary":"An invoice from Acme Corp","document_type":"invoice","parties":["Acme Corp"]}`
	out := ParseOutcome(raw)
	if out.Structured == nil {
		t.Fatalf("outcome = %+v, want structured", out)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Structured, &decoded); err != nil {
		t.Fatalf("structured payload is not JSON: %v", err)
	}
	if decoded["summary"] != "An invoice from Acme Corp" {
		t.Errorf("summary = %v", decoded["summary"])
	}
}

func TestParseOutcomeStripsFences(t *testing.T) {
	raw := "```json\n{\"summary\":\"fenced\"}\n```"
	out := ParseOutcome(raw)
	if out.Structured == nil {
		t.Fatalf("fenced JSON not accepted: %+v", out)
	}
}

func TestParseOutcomeProse(t *testing.T) {
	raw := "This document appears to be a rental contract between two parties."
	out := ParseOutcome(raw)
	if out.Structured != nil {
		t.Fatalf("prose misread as structured: %+v", out)
	}
	if out.Summary != raw {
		t.Errorf("summary = %q, want verbatim prose", out.Summary)
	}
}

func TestParseOutcomeInvalidShape(t *testing.T) {
	tests := []string{
		`{"document_type":"invoice"}`, // missing required summary
		`{"summary":""}`,              // empty summary
		`{"summary":42}`,              // wrong type
		`["a","b"]`,                   // not an object
		`{"summary":"ok","entities":"not-a-list"}`,
	}
	for _, raw := range tests {
		out := ParseOutcome(raw)
		if out.Structured != nil {
			t.Errorf("ParseOutcome(%q) accepted invalid shape", raw)
		}
		if out.Summary == "" {
			t.Errorf("ParseOutcome(%q) dropped the raw output", raw)
		}
	}
}

func TestMarshalResult(t *testing.T) {
	structured, err := Outcome{Structured: json.RawMessage(`{"summary":"x"}`)}.MarshalResult()
	if err != nil {
		t.Fatalf("MarshalResult() error: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(structured, &wire); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if wire["kind"] != "structured" {
		t.Errorf("kind = %v, want structured", wire["kind"])
	}

	summary, err := Outcome{Summary: "plain text"}.MarshalResult()
	if err != nil {
		t.Fatalf("MarshalResult() error: %v", err)
	}
	if err := json.Unmarshal(summary, &wire); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if wire["kind"] != "summary" || wire["text"] != "plain text" {
		t.Errorf("summary wire = %v", wire)
	}
}
