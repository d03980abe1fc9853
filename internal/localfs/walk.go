// Package localfs finds the local files that make up an upload batch.
package localfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileEntry is one regular file found by WalkFiles.
type FileEntry struct {
	Path    string // Full path to the file
	RelPath string // Slash-separated path relative to the walk root
	Name    string
	Size    int64
	ModTime time.Time
}

// WalkOptions configures WalkFiles.
type WalkOptions struct {
	// IncludeHidden visits dot files and descends into dot directories.
	IncludeHidden bool

	// Keep decides which files reach the callback. Nil keeps every file.
	Keep func(entry FileEntry) bool

	// OnError receives paths that could not be read. They are skipped.
	OnError func(path string, err error)
}

// IsHidden returns true if the base name of path starts with a dot.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName returns true for dot names other than "." and "..".
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// WalkFiles calls fn for every regular file under root in lexical order.
// Symlinks to regular files are followed; symlinked directories are not.
// The root is always entered, even when its own name is hidden.
// A non-nil error from fn stops the walk and is returned.
func WalkFiles(root string, opts WalkOptions, fn func(FileEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			opts.report(path, err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := resolve(path, d)
		if err != nil {
			opts.report(path, err)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = d.Name()
		}
		entry := FileEntry{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if opts.Keep != nil && !opts.Keep(entry) {
			return nil
		}
		return fn(entry)
	})
}

func resolve(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		return os.Stat(path)
	}
	return d.Info()
}

func (o WalkOptions) report(path string, err error) {
	if o.OnError != nil {
		o.OnError(path, err)
	}
}
