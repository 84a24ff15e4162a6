package strings

import (
	"strings"
	"unicode"
)

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// NormalizeLower returns the input lowercased.
func NormalizeLower(value string) string {
	return strings.ToLower(value)
}

// NormalizeLowerTrimSpace trims surrounding whitespace and lowercases the input.
func NormalizeLowerTrimSpace(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// TrimSpace trims surrounding Unicode whitespace.
func TrimSpace(value string) string {
	return strings.TrimSpace(value)
}

// IsBlank reports whether the value is empty or only whitespace.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// NormalizeNewlines replaces CRLF and CR with LF.
func NormalizeNewlines(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r\n", "\n")
	return strings.ReplaceAll(value, "\r", "\n")
}

// TrimTrailingNewlines removes trailing CR/LF characters.
func TrimTrailingNewlines(value string) string {
	return strings.TrimRight(value, "\r\n")
}

// TrimTrailingWhitespace removes trailing Unicode whitespace characters.
func TrimTrailingWhitespace(value string) string {
	return strings.TrimRightFunc(value, unicode.IsSpace)
}

// TrimTrailingSlash removes trailing '/' characters.
func TrimTrailingSlash(value string) string {
	return strings.TrimRight(value, "/")
}

// IndentBlock prefixes every line of value with the given number of spaces.
func IndentBlock(value string, spaces int) string {
	if spaces <= 0 || value == "" {
		return value
	}
	prefix := strings.Repeat(" ", spaces)
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
