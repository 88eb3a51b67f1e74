package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-mis/internal/features/catalog"
)

// Accepted textual forms per logical type. Anything outside these is a type
// mismatch, never a silent best-effort parse.
var (
	boolForms = map[string]bool{
		"true": true, "t": true, "yes": true, "y": true, "1": true,
		"false": false, "f": false, "no": false, "n": false, "0": false,
	}
	dateForms = []string{
		"2006-01-02",
		"2006/01/02",
		"02.01.2006",
		"02/01/2006",
	}
	datetimeForms = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// Coerce parses a cell's textual value into the logical type. Empty cells
// coerce to nil regardless of type; nullability is checked elsewhere.
func Coerce(raw string, logicalType string) (interface{}, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch logicalType {
	case catalog.TypeInteger:
		n := strings.ReplaceAll(s, ",", "")
		// Spreadsheets often render integers as "5.0".
		n = strings.TrimSuffix(n, ".0")
		v, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return v, nil
	case catalog.TypeNumber:
		n := strings.ReplaceAll(s, ",", "")
		v, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case catalog.TypeBoolean:
		v, ok := boolForms[strings.ToLower(s)]
		if !ok {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return v, nil
	case catalog.TypeDate:
		for _, layout := range dateForms {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, fmt.Errorf("%q is not a date", raw)
	case catalog.TypeDatetime:
		for _, layout := range datetimeForms {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		for _, layout := range dateForms {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("%q is not a datetime", raw)
	default:
		// text, json and unknown destination types pass through verbatim.
		return s, nil
	}
}

// NormalizeKey folds a natural key value for case/whitespace-insensitive
// matching.
func NormalizeKey(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
