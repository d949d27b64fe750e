// Package textutil cuts text for logs, storage and API fields without
// splitting a UTF-8 sequence.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// Truncate keeps at most maxBytes from the start of s, ending on a rune boundary.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	if maxBytes <= 0 {
		return ""
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Tail keeps at most maxBytes from the end of s, starting on a rune boundary.
func Tail(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	if maxBytes <= 0 {
		return ""
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// Clean replaces invalid UTF-8 with U+FFFD and then truncates. Text that
// reaches a TEXT column goes through here.
func Clean(s string, maxBytes int) string {
	return Truncate(strings.ToValidUTF8(s, "�"), maxBytes)
}
