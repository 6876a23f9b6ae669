package loom

import (
	"strings"
	"unicode"
)

// LiteralClassifier assigns semantic parameter names to literal values
// found at constructor call sites. Implementations must be deterministic so
// repeated runs produce the same schema.
type LiteralClassifier interface {
	// ClassifyLiteral names the literal value appearing as a constructor
	// argument of the named owner type. ok is false when the value does
	// not look like configuration data.
	ClassifyLiteral(owner, value string) (name string, ok bool)
}

// NopClassifier never classifies anything, disabling literal extraction.
type NopClassifier struct{}

func (NopClassifier) ClassifyLiteral(string, string) (string, bool) {
	return "", false
}

const (
	// longLiteralLength is the length at which any literal counts as
	// probable configuration.
	longLiteralLength = 16
	// secretLiteralLength is the length at which an otherwise anonymous
	// literal is presumed to be a credential.
	secretLiteralLength = 32
)

// HeuristicClassifier is the default literal classifier. Structural checks
// decide whether a literal looks like configuration at all; a pattern table
// keyed by the owning type's name then picks the parameter name, with
// generic fallbacks behind it.
type HeuristicClassifier struct{}

type literalPattern struct {
	// ownerHint is a lowercase substring the owner type name must contain.
	// Empty matches every owner.
	ownerHint string
	matches   func(string) bool
	name      string
}

// literalPatterns is ordered most to least specific; the first match wins.
var literalPatterns = []literalPattern{
	{ownerHint: "database", matches: hasSchemeSeparator, name: "connectionString"},
	{ownerHint: "db", matches: hasSchemeSeparator, name: "connectionString"},
	{ownerHint: "store", matches: hasSchemeSeparator, name: "connectionString"},
	{ownerHint: "repo", matches: hasSchemeSeparator, name: "connectionString"},
	{ownerHint: "client", matches: hasSchemeSeparator, name: "baseURL"},
	{ownerHint: "server", matches: isBareNumber, name: "port"},
	{ownerHint: "cache", matches: isBareNumber, name: "capacity"},
	{ownerHint: "pool", matches: isBareNumber, name: "capacity"},
	{matches: hasSchemeSeparator, name: "url"},
	{matches: isBareNumber, name: "port"},
	{matches: hasAtSign, name: "address"},
	{matches: hasPathSeparator, name: "path"},
	{matches: isSecretLength, name: "secret"},
}

func (HeuristicClassifier) ClassifyLiteral(owner, value string) (string, bool) {
	if !looksLikeConfig(value) {
		return "", false
	}

	lowerOwner := strings.ToLower(owner)
	for _, p := range literalPatterns {
		if p.ownerHint != "" && !strings.Contains(lowerOwner, p.ownerHint) {
			continue
		}

		if p.matches(value) {
			return p.name, true
		}
	}

	return "config", true
}

// looksLikeConfig reports whether a literal is worth surfacing in the
// config schema at all. Short plain strings are assumed to be fixed inputs
// rather than deployment settings.
func looksLikeConfig(value string) bool {
	if value == "" {
		return false
	}

	return hasSchemeSeparator(value) ||
		hasPathSeparator(value) ||
		hasAtSign(value) ||
		isBareNumber(value) ||
		isLongLiteral(value)
}

func hasSchemeSeparator(value string) bool {
	return strings.Contains(value, "://")
}

func hasPathSeparator(value string) bool {
	return strings.ContainsRune(value, '/') && !hasSchemeSeparator(value)
}

func hasAtSign(value string) bool {
	return strings.ContainsRune(value, '@')
}

func isBareNumber(value string) bool {
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return value != ""
}

func isLongLiteral(value string) bool {
	return len(value) >= longLiteralLength
}

func isSecretLength(value string) bool {
	return len(value) >= secretLiteralLength
}
