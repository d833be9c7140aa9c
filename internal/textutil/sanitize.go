package textutil

import (
	"path/filepath"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// NotebookName derives "<stem>.ipynb" from a paper path. fallback is
// returned when nothing usable is left after sanitizing.
func NotebookName(paperPath, fallback string) string {
	base := filepath.Base(strings.TrimSpace(paperPath))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Trim(SanitizeFileName(stem), ".")
	if stem == "" {
		return fallback
	}
	return stem + ".ipynb"
}
