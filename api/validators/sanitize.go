package validators

import "strings"

// SanitizeString trims, collapses inner whitespace and caps the result at
// maxLen characters. Cutting on runes keeps æ, ø and å intact.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
