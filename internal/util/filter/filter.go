// Package filter selects files for an upload batch by glob patterns.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns match the base name. Empty means include all.
	// Example: []string{"IMG_*", "*.{png,jpg}"}
	Include []string

	// Exclude patterns match the base name and take precedence over Include.
	Exclude []string

	// PathInclude patterns match the slash-separated path relative to the
	// scanned directory. "**" matches any number of directories.
	// Example: []string{"2024/**", "**/raw/*"}
	PathInclude []string
}

// Empty reports whether the config filters nothing.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.PathInclude) == 0
}

// Validate rejects malformed patterns up front, since Match treats them as
// non-matching.
func (c Config) Validate() error {
	for _, group := range [][]string{c.Include, c.Exclude, c.PathInclude} {
		for _, p := range group {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid pattern %q", p)
			}
		}
	}
	return nil
}

// Match reports whether a file with the given relative path passes the
// filter. Name patterns are case-insensitive.
func (c Config) Match(relPath string) bool {
	relPath = strings.Trim(strings.ReplaceAll(relPath, "\\", "/"), "/")
	name := strings.ToLower(path.Base(relPath))

	if matchAny(c.Exclude, name, true) {
		return false
	}
	if len(c.Include) > 0 && !matchAny(c.Include, name, true) {
		return false
	}
	if len(c.PathInclude) > 0 && !matchAny(c.PathInclude, relPath, false) {
		return false
	}
	return true
}

func matchAny(patterns []string, s string, fold bool) bool {
	for _, p := range patterns {
		if fold {
			p = strings.ToLower(p)
		}
		if ok, _ := doublestar.Match(strings.Trim(p, "/"), s); ok {
			return true
		}
	}
	return false
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.png,*.jpg" -> []string{"*.png", "*.jpg"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
