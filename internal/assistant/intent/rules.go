package intent

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// triggerGroup is one bilingual phrase group.  The group matches when any of
// its phrases — either language — appears in the lowercased query.
type triggerGroup struct {
	EN []string `yaml:"en"`
	AR []string `yaml:"ar"`
}

// filterSpec is a static filter attached to a rule.  The sentinel value
// "$today" is resolved to the current date at classification time.
type filterSpec struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

// rule is one entry of the ordered rule table.
type rule struct {
	Name               string         `yaml:"name"`
	Kind               Kind           `yaml:"kind"`
	Target             string         `yaml:"target"`
	Triggers           []triggerGroup `yaml:"triggers"`
	CaptureName        string         `yaml:"capture_name"`
	IDMarkers          []string       `yaml:"id_markers"`
	CaptureAssignments bool           `yaml:"capture_assignments"`
	Set                map[string]any `yaml:"set"`
	Filters            []filterSpec   `yaml:"filters"`
	MonthField         string         `yaml:"month_field"`
	Fields             []string       `yaml:"fields"`
	OrderBy            string         `yaml:"order_by"`
	GroupBy            string         `yaml:"group_by"`
	Limit              uint           `yaml:"limit"`
	Path               string         `yaml:"path"`
}

// ruleFile is the top-level rules.yaml document.
type ruleFile struct {
	Rules []rule `yaml:"rules"`
}

var validKinds = map[Kind]struct{}{
	KindCreate: {}, KindRead: {}, KindUpdate: {}, KindDelete: {},
	KindReport: {}, KindNavigate: {}, KindExplain: {}, KindSteps: {},
	KindGenerateScript: {},
}

var validFilterOps = map[string]struct{}{
	"=": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
}

// loadRules parses and validates a rule table.  Validation fails fast on
// malformed rules so a bad table is caught at startup, not per query:
//   - kind must be a known non-chat kind (chat is the implicit fallback);
//   - record-command kinds require a target, all others forbid one;
//   - navigate requires a path;
//   - at least one trigger group with at least one phrase per rule;
//   - two rules must not share an identical trigger signature, so an
//     accidentally duplicated rule fails loudly instead of shadowing the
//     later copy forever (first match wins).
func loadRules(data []byte) ([]rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("intent: parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("intent: rule table is empty")
	}

	seenNames := make(map[string]struct{}, len(f.Rules))
	seenSignatures := make(map[string]string, len(f.Rules))

	for i, r := range f.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("intent: rules[%d]: name must not be empty", i)
		}
		if _, dup := seenNames[r.Name]; dup {
			return nil, fmt.Errorf("intent: duplicate rule name %q", r.Name)
		}
		seenNames[r.Name] = struct{}{}

		if _, ok := validKinds[r.Kind]; !ok {
			return nil, fmt.Errorf("intent: rule %q: unknown kind %q", r.Name, r.Kind)
		}
		if r.Kind.IsRecordCommand() && r.Target == "" {
			return nil, fmt.Errorf("intent: rule %q: kind %q requires a target", r.Name, r.Kind)
		}
		if !r.Kind.IsRecordCommand() && r.Target != "" {
			return nil, fmt.Errorf("intent: rule %q: kind %q must not set a target", r.Name, r.Kind)
		}
		if r.Kind == KindNavigate && r.Path == "" {
			return nil, fmt.Errorf("intent: rule %q: navigate requires a path", r.Name)
		}

		if len(r.Triggers) == 0 {
			return nil, fmt.Errorf("intent: rule %q: no trigger groups", r.Name)
		}
		for gi, g := range r.Triggers {
			if len(g.EN)+len(g.AR) == 0 {
				return nil, fmt.Errorf("intent: rule %q: trigger group %d is empty", r.Name, gi)
			}
		}

		for _, fs := range r.Filters {
			if fs.Field == "" {
				return nil, fmt.Errorf("intent: rule %q: filter without a field", r.Name)
			}
			if _, ok := validFilterOps[fs.Op]; !ok {
				return nil, fmt.Errorf("intent: rule %q: filter %q: unsupported op %q", r.Name, fs.Field, fs.Op)
			}
		}

		sig := r.triggerSignature()
		if prev, dup := seenSignatures[sig]; dup {
			return nil, fmt.Errorf("intent: rules %q and %q share the same trigger signature; the later one would never fire", prev, r.Name)
		}
		seenSignatures[sig] = r.Name
	}

	return f.Rules, nil
}

// triggerSignature returns a canonical string for the rule's trigger groups,
// used to detect rules that can never both fire.
func (r rule) triggerSignature() string {
	groups := make([]string, 0, len(r.Triggers))
	for _, g := range r.Triggers {
		phrases := make([]string, 0, len(g.EN)+len(g.AR))
		for _, p := range g.EN {
			phrases = append(phrases, strings.ToLower(p))
		}
		phrases = append(phrases, g.AR...)
		sort.Strings(phrases)
		groups = append(groups, strings.Join(phrases, "|"))
	}
	sort.Strings(groups)
	return strings.Join(groups, "&")
}

// matches reports whether every trigger group has at least one phrase present
// in the lowercased query.
func (r rule) matches(lower string) bool {
	for _, g := range r.Triggers {
		if !groupMatches(g, lower) {
			return false
		}
	}
	return true
}

func groupMatches(g triggerGroup, lower string) bool {
	for _, p := range g.EN {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	for _, p := range g.AR {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
