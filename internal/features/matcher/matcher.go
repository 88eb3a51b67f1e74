package matcher

import (
	"regexp"
	"strings"
)

// Suggestion is the proposed destination field for one file header.
// Confidence 0 means no usable signal; the header is surfaced as unmatched
// rather than dropped.
type Suggestion struct {
	Field        string        `json:"field"`
	Confidence   float64       `json:"confidence"`
	SampleValues []interface{} `json:"sample_values,omitempty"`
}

var nonAlnumRun = regexp.MustCompile("[^a-z0-9]+")

// Normalize lowercases and collapses every non-alphanumeric run to a single
// underscore. Both file headers and destination fields pass through this
// before scoring.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Score rates the similarity of a normalized (header, field) pair:
// exact match 1.0, substring containment either direction 0.6, otherwise
// 0.1 per shared underscore-delimited token.
func Score(header, field string) float64 {
	if header == "" || field == "" {
		return 0
	}
	if header == field {
		return 1.0
	}
	if strings.Contains(header, field) || strings.Contains(field, header) {
		return 0.6
	}

	fieldTokens := map[string]bool{}
	for _, tok := range strings.Split(field, "_") {
		if tok != "" {
			fieldTokens[tok] = true
		}
	}
	overlap := 0
	seen := map[string]bool{}
	for _, tok := range strings.Split(header, "_") {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		if fieldTokens[tok] {
			overlap++
		}
	}
	score := float64(overlap) * 0.1
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Suggest proposes a best-effort header-to-field mapping. Fields are
// considered in the given order; ties keep the first-seen field. Two headers
// may suggest the same field; resolving that is the mapping editor's job, not
// the matcher's. Sample values are passed through for display only.
func Suggest(headers []string, fields []string, samples map[string][]interface{}) map[string]Suggestion {
	normFields := make([]string, len(fields))
	for i, f := range fields {
		normFields[i] = Normalize(f)
	}

	out := make(map[string]Suggestion, len(headers))
	for _, header := range headers {
		normHeader := Normalize(header)

		best := Suggestion{}
		bestScore := 0.0
		for i, field := range fields {
			s := Score(normHeader, normFields[i])
			if s > bestScore {
				bestScore = s
				best = Suggestion{Field: field, Confidence: s}
			}
		}
		best.SampleValues = samples[header]
		out[header] = best
	}
	return out
}
