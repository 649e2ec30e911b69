package intent

import (
	"strings"
	"time"
)

// Classifier turns free-text queries into Intents by walking the ordered
// rule table.  It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules []rule
	now   nowFunc
}

// New returns a Classifier backed by the embedded rule table.
func New() (*Classifier, error) {
	return NewFromRules(defaultRules)
}

// NewFromRules returns a Classifier for an explicit YAML rule table.
// Exposed so tests and deployments can substitute their own table.
func NewFromRules(data []byte) (*Classifier, error) {
	rules, err := loadRules(data)
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: rules, now: time.Now}, nil
}

// Classify maps query text to a structured Intent.  Pure function of its
// input (plus the current date for the "$today" filter sentinel): no side
// effects, deterministic, single dispatch — the first matching rule wins and
// no later rule is consulted.
//
// When no rule matches, the fallback is Intent{Kind: KindChat} carrying the
// raw text, which callers forward to the language model.
func (c *Classifier) Classify(query string) Intent {
	lang := DetectLanguage(query)
	lower := strings.ToLower(query)

	for _, r := range c.rules {
		if !r.matches(lower) {
			continue
		}
		return c.build(r, query, lower, lang)
	}

	return Intent{
		Kind:       KindChat,
		Parameters: map[string]any{"text": query},
		Language:   lang,
	}
}

// build materializes an Intent from a matched rule.
func (c *Classifier) build(r rule, query, lower string, lang Language) Intent {
	in := Intent{
		Kind:       r.Kind,
		TargetType: r.Target,
		OrderBy:    r.OrderBy,
		GroupBy:    r.GroupBy,
		Language:   lang,
	}

	if len(r.Fields) > 0 {
		in.ResultFields = append([]string(nil), r.Fields...)
	}

	limit := r.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	in.Pagination = Pagination{Offset: 0, Limit: limit}

	params := make(map[string]any)
	for k, v := range r.Set {
		params[k] = v
	}
	if r.CaptureName != "" {
		if name := captureName(query); name != "" {
			params[r.CaptureName] = name
		}
	}
	if r.CaptureAssignments {
		for k, v := range captureAssignments(query) {
			params[k] = v
		}
	}
	switch r.Kind {
	case KindExplain, KindSteps, KindGenerateScript:
		params["text"] = query
	case KindNavigate:
		params["path"] = r.Path
	}
	if len(params) > 0 {
		in.Parameters = params
	}

	filters := make(map[string]Filter)
	for _, fs := range r.Filters {
		filters[fs.Field] = Filter{Op: fs.Op, Value: resolveFilterValue(fs.Value, c.now)}
	}
	if r.MonthField != "" {
		if from, to, ok := captureMonthRange(lower); ok {
			filters[r.MonthField] = Filter{Op: "between", From: from, To: to}
		}
	}
	if len(r.IDMarkers) > 0 {
		if id := captureIdentifier(query, r.IDMarkers); id != "" {
			filters["name"] = Filter{Op: "=", Value: id}
		}
	}
	if len(filters) > 0 {
		in.Filters = filters
	}

	return in
}

// resolveFilterValue substitutes the "$today" sentinel with the current date.
func resolveFilterValue(v any, now nowFunc) any {
	if s, ok := v.(string); ok && s == "$today" {
		return now().Format("2006-01-02")
	}
	return v
}
