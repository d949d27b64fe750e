package archive

import (
	"strings"
	"unicode"
)

// SanitizeName keeps letters, digits and a few separators; everything else
// becomes '_'. The result is cut to maxLen runes when maxLen > 0.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// fileStem turns a clip title into a file name stem without spaces.
func fileStem(title string) string {
	stem := strings.ReplaceAll(SanitizeName(title, 48), " ", "_")
	for strings.Contains(stem, "__") {
		stem = strings.ReplaceAll(stem, "__", "_")
	}
	stem = strings.Trim(stem, "._")
	if stem == "" {
		return "clip"
	}
	return stem
}
