package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// nameMarkers precede an entity-name span.  Evaluated in order; the first
// marker found in the query wins.  "for" comes last because it is the most
// ambiguous of the set.
var nameMarkers = []string{"named", "called", "باسم", "for"}

// captureName returns the title-cased span following the first name marker
// found in the query, or "" when no marker is present.  The span is taken
// from the original query so letter case survives into the capture, then
// title-cased.  No validation is applied to the captured span — the
// classifier deliberately trusts it (a documented weakness of this layer).
func captureName(query string) string {
	lower := strings.ToLower(query)
	for _, m := range nameMarkers {
		idx := strings.Index(lower, " "+m+" ")
		if idx < 0 {
			continue
		}
		span := query[idx+len(m)+2:]
		span = trimPunctuation(span)
		if span == "" {
			continue
		}
		return titleCase(span)
	}
	return ""
}

// identifierStopWords terminate an identifier span so that trailing clauses
// ("… set phone to …") are not swallowed into the identifier.
var identifierStopWords = map[string]struct{}{
	"set": {}, "change": {}, "to": {}, "and": {}, "with": {},
}

// captureIdentifier returns the span following the first marker noun (e.g.
// "customer"), stopping at the first stop word.  Letter case is preserved:
// identifiers are matched verbatim against the record store.  Returns ""
// when no marker or no span follows — callers treat that as "no identifier"
// and the executor raises the hard error for Update/Delete.
func captureIdentifier(query string, markers []string) string {
	lower := strings.ToLower(query)
	for _, m := range markers {
		idx := strings.Index(lower, strings.ToLower(m)+" ")
		if idx < 0 {
			continue
		}
		// Marker must start at a word boundary.
		if idx > 0 && !isBoundary(rune(lower[idx-1])) {
			continue
		}
		rest := query[idx+len(m)+1:]
		words := strings.Fields(rest)
		var span []string
		for _, w := range words {
			if _, stop := identifierStopWords[strings.ToLower(w)]; stop {
				break
			}
			span = append(span, trimPunctuation(w))
		}
		if len(span) > 0 && span[0] != "" {
			return strings.Join(span, " ")
		}
	}
	return ""
}

// assignmentPattern extracts "set <field> to <value>" style overwrites for
// Update intents.  Field names are snake_case record fields.
var assignmentPattern = regexp.MustCompile(`(?i)(?:set|change)\s+([a-z][a-z0-9_]*)\s+to\s+(.+?)(?:\s+and\s+|$)`)

// captureAssignments returns the field→value pairs expressed in the query.
func captureAssignments(query string) map[string]any {
	matches := assignmentPattern.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]any, len(matches))
	for _, m := range matches {
		field := strings.ToLower(m[1])
		value := strings.Trim(trimPunctuation(m[2]), `"'`)
		if field != "" && value != "" {
			out[field] = value
		}
	}
	return out
}

// monthPhrases maps recognized month phrases to their fixed date window.
//
// TODO: replace the hardcoded April-2025 literal with relative-month
// resolution ("for <month>" → the most recent such month) once the intended
// semantics are clarified; the original behaviour is preserved until then.
var monthPhrases = map[string][2]string{
	"for april":  {"2025-04-01", "2025-04-30"},
	"in april":   {"2025-04-01", "2025-04-30"},
	"لشهر ابريل": {"2025-04-01", "2025-04-30"},
	"لشهر أبريل": {"2025-04-01", "2025-04-30"},
}

// captureMonthRange returns the inclusive date window for a recognized month
// phrase.  Any other month phrase is not understood and yields ok == false.
func captureMonthRange(lower string) (from, to string, ok bool) {
	for phrase, window := range monthPhrases {
		if strings.Contains(lower, phrase) {
			return window[0], window[1], true
		}
	}
	return "", "", false
}

// titleCase capitalizes the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// trimPunctuation strips surrounding whitespace and trailing sentence
// punctuation from a captured span.
func trimPunctuation(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ',' || r == '!' || r == '?' || r == '؟' || r == '،'
	})
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
