// Package paths resolves clashes between the names items are stored under.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Entry is one local file and the name it will be stored under.
type Entry struct {
	Path       string // Local path
	StoredName string // Sanitized name sent to the store
}

// Collisions groups entry indices by stored name, keeping only names used
// more than once. Groups are ordered by first occurrence.
func Collisions(entries []Entry) [][]int {
	byName := make(map[string][]int)
	var order []string
	for i, e := range entries {
		if _, ok := byName[e.StoredName]; !ok {
			order = append(order, e.StoredName)
		}
		byName[e.StoredName] = append(byName[e.StoredName], i)
	}

	var groups [][]int
	for _, name := range order {
		if len(byName[name]) > 1 {
			groups = append(groups, byName[name])
		}
	}
	return groups
}

// ResolveCollisions makes every StoredName unique. Each clashing entry gets
// its parent directory name inserted before the extension, or its position
// in the group when that still clashes.
//
// Example: trip/IMG_1.jpg and home/IMG_1.jpg become:
//   - IMG_1_trip.jpg
//   - IMG_1_home.jpg
//
// Returns the modified list (same slice, modified in place) and the number
// of entries that were renamed.
func ResolveCollisions(entries []Entry) ([]Entry, int) {
	groups := Collisions(entries)
	if len(groups) == 0 {
		return entries, 0
	}

	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		used[e.StoredName] = true
	}

	renamed := 0
	for _, group := range groups {
		name := entries[group[0]].StoredName
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)

		for k, idx := range group {
			tag := strings.ReplaceAll(filepath.Base(filepath.Dir(entries[idx].Path)), " ", "_")
			candidate := fmt.Sprintf("%s_%s%s", base, tag, ext)
			if tag == "." || tag == string(filepath.Separator) || used[candidate] {
				candidate = fmt.Sprintf("%s_%d%s", base, k+1, ext)
			}
			for n := k + 1; used[candidate]; n += len(group) {
				candidate = fmt.Sprintf("%s_%d%s", base, n+1, ext)
			}
			used[candidate] = true
			entries[idx].StoredName = candidate
			renamed++
		}
	}

	return entries, renamed
}
