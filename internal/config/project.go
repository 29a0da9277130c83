package config

import "strings"

// DefaultProject is used when no project identifier is supplied.
const DefaultProject = "default"

// SanitizeProject maps a raw project identifier onto a filesystem-safe token.
// Characters outside [A-Za-z0-9._-] become '_'; leading and trailing
// separators are trimmed so the token can never climb out of its parent
// directory. An empty result falls back to DefaultProject.
func SanitizeProject(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return DefaultProject
	}
	return out
}
