package utils

import (
	"regexp"
	"strings"
)

// Reserved identifiers that would collide with SQL keywords (Postgres short set).
var reservedIdents = map[string]bool{
	"user": true, "order": true, "group": true, "select": true, "where": true,
	"table": true, "column": true, "count": true, "limit": true, "offset": true,
}

var (
	nonAlnum      = regexp.MustCompile("[^a-z0-9]+")
	multiUnder    = regexp.MustCompile("_+")
	leadingDigits = regexp.MustCompile("^[0-9_]+")
)

func Slugify(s string) string {
	// Convert to lowercase
	s = strings.ToLower(s)
	// Replace non-alphanumeric characters with hyphens
	reg := regexp.MustCompile("[^a-z0-9]+")
	s = reg.ReplaceAllString(s, "-")
	// Trim hyphens from start and end
	s = strings.Trim(s, "-")
	return s
}

// SnakeIdent normalizes an arbitrary label into a safe snake_case SQL
// identifier: lowercase, alphanumerics and underscores only, no leading
// digits, reserved words suffixed, capped at maxlen.
func SnakeIdent(s string, maxlen int) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, "_")
	s = multiUnder.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	s = leadingDigits.ReplaceAllString(s, "")
	if s == "" {
		s = "x"
	}
	if reservedIdents[s] {
		s += "_col"
	}
	if maxlen > 0 && len(s) > maxlen {
		s = s[:maxlen]
	}
	return strings.TrimRight(s, "_")
}

// TableIdent builds a table name from a role tag ("fact" or "ref") and a
// human label, within the 63-char Postgres identifier limit.
func TableIdent(role, label string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "fact" && role != "ref" {
		role = "fact"
	}
	topic := SnakeIdent(label, 57)
	name := role + "_" + topic
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
