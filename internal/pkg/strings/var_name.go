// Package strings provides string utility functions for variable naming.
package strings

import (
	"strings"
	"unicode"
)

func ToLowerCamel(s string) string {
	i := 0
	for i < len(s) && unicode.IsUpper(rune(s[i])) {
		i++
	}
	// A capital run followed by a lowercase letter shares its last capital
	// with the next word: DBPool becomes dbPool, not dbpool.
	if i > 1 && i < len(s) {
		i--
	}

	return strings.ToLower(s[:i]) + s[i:]
}

// commonInitialisms lists words that stay fully capitalized in exported
// identifiers, matching the convention used across the standard library.
var commonInitialisms = map[string]string{
	"api":   "API",
	"db":    "DB",
	"dsn":   "DSN",
	"grpc":  "GRPC",
	"http":  "HTTP",
	"https": "HTTPS",
	"id":    "ID",
	"json":  "JSON",
	"sql":   "SQL",
	"tls":   "TLS",
	"ttl":   "TTL",
	"ui":    "UI",
	"uid":   "UID",
	"uri":   "URI",
	"url":   "URL",
	"uuid":  "UUID",
	"yaml":  "YAML",
}

// ToExported converts a lowerCamel identifier into an exported Go name,
// upper-casing well-known initialisms: "apiKey" becomes "APIKey" and
// "db" becomes "DB".
func ToExported(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	for _, word := range splitCamel(s) {
		if up, ok := commonInitialisms[strings.ToLower(word)]; ok {
			b.WriteString(up)
			continue
		}

		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}

	return b.String()
}

// splitCamel splits an identifier at lower-to-upper transitions, so runs
// of capitals such as "URL" stay in one word.
func splitCamel(s string) []string {
	runes := []rune(s)
	words := make([]string, 0, 2)

	start := 0
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}

	return append(words, string(runes[start:]))
}
