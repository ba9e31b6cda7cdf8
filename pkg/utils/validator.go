package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// SanitizeFileName reduces an uploaded file name to a safe base name.
// Returns "file" when nothing usable is left.
func SanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFileChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > 120 {
		ext := filepath.Ext(base)
		if len(ext) > 10 {
			ext = ""
		}
		base = base[:120-len(ext)] + ext
	}
	return base
}
