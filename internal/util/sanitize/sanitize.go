// Package sanitize cleans user-supplied file names and fields before they
// are sent to the store.
//
// File names follow the store's own rules:
//   - directories are stripped, only the base name is kept
//   - empty names are rejected
//   - spaces become underscores
//
// Invisible Unicode characters (zero-width spaces, BOMs) are removed first
// so that names copied from documents do not smuggle them in.
package sanitize

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyFileName   = errors.New("file_name cannot be empty")
	ErrInvalidFileName = errors.New("file_name must not contain path separators")
)

// FileName returns the store-safe form of name.
func FileName(name string) (string, error) {
	name = strings.TrimSpace(removeInvisibleChars(name))
	if name == "" {
		return "", ErrEmptyFileName
	}

	// Accept both separators regardless of the host OS.
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.FromSlash(name))
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", ErrInvalidFileName
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return "", ErrEmptyFileName
	}

	return strings.ReplaceAll(base, " ", "_"), nil
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}

	return s
}

// Field strips invisible characters and surrounding whitespace from a free-text field.
func Field(field string) string {
	if field == "" {
		return field
	}
	return strings.TrimSpace(removeInvisibleChars(field))
}
