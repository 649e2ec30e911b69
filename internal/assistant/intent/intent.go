// Package intent provides the natural-language intent classifier.
//
// The classifier sits between the raw chat message and the command executor.
// Its sole responsibility is translation: convert a free-form sentence
// (English or Arabic) into a structured Intent that the executor or the
// language-model fallback can process.  Classification is deterministic —
// an ordered table of trigger-phrase rules, first match wins — so every rule
// can be tested independently and no LLM is involved in control decisions.
package intent

import (
	"time"
)

// Kind identifies the action the user wants the assistant to take.
type Kind string

const (
	// KindCreate creates a new record of the target type.
	KindCreate Kind = "create"
	// KindRead fetches one record or a filtered list.
	KindRead Kind = "read"
	// KindUpdate applies field overwrites to an identified record.
	KindUpdate Kind = "update"
	// KindDelete removes an identified record.
	KindDelete Kind = "delete"
	// KindReport is a read with an additional count/group summary.
	KindReport Kind = "report"
	// KindNavigate asks the presentation layer to open a screen.
	KindNavigate Kind = "navigate"
	// KindExplain asks for an explanation of an ERP term or concept.
	KindExplain Kind = "explain"
	// KindSteps asks for the steps of an ERP process.
	KindSteps Kind = "steps"
	// KindGenerateScript asks for generated code.
	KindGenerateScript Kind = "generate_script"
	// KindChat is the fallback: forward the raw text to the language model.
	KindChat Kind = "chat"
)

// IsRecordCommand reports whether the kind operates on the record store and
// therefore requires a target type.
func (k Kind) IsRecordCommand() bool {
	switch k {
	case KindCreate, KindRead, KindUpdate, KindDelete, KindReport:
		return true
	}
	return false
}

// Language is the detected query language.
type Language string

const (
	// LangEnglish is the default language path.
	LangEnglish Language = "en"
	// LangArabic is selected when the query contains Arabic script.
	LangArabic Language = "ar"
)

// DetectLanguage returns LangArabic when the text contains any character in
// the Arabic Unicode block, LangEnglish otherwise.  This is a binary choice,
// not a confidence score.
func DetectLanguage(text string) Language {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return LangArabic
		}
	}
	return LangEnglish
}

// Filter is a single constraint on a record field.  Either Value (for the
// comparison operators) or From/To (for Op == "between") is populated.
type Filter struct {
	// Op is one of "=", "!=", "<", "<=", ">", ">=", "between".
	Op string `json:"op"`
	// Value is the comparison operand.
	Value any `json:"value,omitempty"`
	// From and To bound a "between" range (inclusive).
	From any `json:"from,omitempty"`
	To   any `json:"to,omitempty"`
}

// Pagination bounds a list result.
type Pagination struct {
	Offset uint `json:"offset"`
	Limit  uint `json:"limit"`
}

// DefaultLimit is applied when a rule does not specify its own page size.
const DefaultLimit = 20

// Intent is the structured interpretation of a free-text query.  It is
// created fresh per incoming query, never mutated afterwards, and consumed
// exactly once by the executor or the chat fallback.
type Intent struct {
	// Kind is always set.
	Kind Kind `json:"kind"`
	// TargetType is the record type; set exactly when Kind.IsRecordCommand().
	TargetType string `json:"target_type,omitempty"`
	// Parameters are extracted values (names, assignment pairs, raw text).
	Parameters map[string]any `json:"parameters,omitempty"`
	// Filters constrain Read/Report lists and identify Update/Delete targets.
	Filters map[string]Filter `json:"filters,omitempty"`
	// ResultFields is the ordered projection for list results; empty means all.
	ResultFields []string `json:"result_fields,omitempty"`
	// OrderBy optionally names the sort field for list results.
	OrderBy string `json:"order_by,omitempty"`
	// GroupBy optionally names the grouping field for Report summaries.
	GroupBy string `json:"group_by,omitempty"`
	// Pagination bounds list results.
	Pagination Pagination `json:"pagination"`
	// Language is the detected query language, carried for prompt building.
	Language Language `json:"language"`
}

// Identifier returns the record identifier pinned by the Filters, if any.
// Update and Delete require one; Read uses it to fetch a single record.
func (in Intent) Identifier() (string, bool) {
	f, ok := in.Filters["name"]
	if !ok || f.Op != "=" {
		return "", false
	}
	s, ok := f.Value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// nowFunc returns the current time; swapped in tests for determinism.
type nowFunc func() time.Time
