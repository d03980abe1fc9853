// Package tags parses the comma-separated tag filters used by the store's
// list endpoint.
package tags

import (
	"strings"

	"github.com/rescale/photoup/internal/util/sanitize"
)

// Parse splits input on commas, trims each tag and drops empty ones.
// Order and duplicates are preserved, matching how the store parses ?tags=.
func Parse(input string) []string {
	var result []string
	for _, tag := range strings.Split(input, ",") {
		tag = sanitize.Field(tag)
		if tag == "" {
			continue
		}
		result = append(result, tag)
	}
	return result
}

// Normalize removes duplicates from already-parsed tags, keeping first occurrences.
func Normalize(raw []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, tag := range raw {
		tag = sanitize.Field(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}

// Query joins tags into the value of the store's tags query parameter.
// Flags may be repeated or comma-separated; both forms end up here.
func Query(flags []string) string {
	var all []string
	for _, f := range flags {
		all = append(all, Parse(f)...)
	}
	return strings.Join(Normalize(all), ",")
}
