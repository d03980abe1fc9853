package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"visible.png", false},
		{"/path/to/.thumbnails", true},
		{"/path/to/visible.png", false},
		{"../.hidden", true},
		{"..", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsHidden(tt.path); got != tt.expected {
				t.Errorf("IsHidden(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func collect(t *testing.T, root string, opts WalkOptions) []string {
	t.Helper()
	var got []string
	err := WalkFiles(root, opts, func(e FileEntry) error {
		got = append(got, e.RelPath)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkFiles() error = %v", err)
	}
	return got
}

func TestWalkFilesSkipsHidden(t *testing.T) {
	root := makeTree(t, "a.png", ".DS_Store", ".cache/b.png", "trip/c.png", "trip/.d.png")

	got := collect(t, root, WalkOptions{})
	want := "a.png,trip/c.png"
	if strings.Join(got, ",") != want {
		t.Errorf("got %v, want %s", got, want)
	}

	got = collect(t, root, WalkOptions{IncludeHidden: true})
	if len(got) != 5 {
		t.Errorf("with hidden: got %v, want 5 files", got)
	}
}

func TestWalkFilesEntersHiddenRoot(t *testing.T) {
	parent := makeTree(t, ".photos/a.png")
	got := collect(t, filepath.Join(parent, ".photos"), WalkOptions{})
	if len(got) != 1 || got[0] != "a.png" {
		t.Errorf("got %v, want [a.png]", got)
	}
}

func TestWalkFilesKeep(t *testing.T) {
	root := makeTree(t, "a.png", "b.txt", "c.jpg")
	got := collect(t, root, WalkOptions{
		Keep: func(e FileEntry) bool { return filepath.Ext(e.Name) != ".txt" },
	})
	if strings.Join(got, ",") != "a.png,c.jpg" {
		t.Errorf("got %v", got)
	}
}

func TestWalkFilesStopsOnCallbackError(t *testing.T) {
	root := makeTree(t, "a.png", "b.png")
	stop := errors.New("stop")
	calls := 0
	err := WalkFiles(root, WalkOptions{}, func(FileEntry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestWalkFilesFollowsFileSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	root := makeTree(t, "real/a.png")
	if err := os.Symlink(filepath.Join(root, "real", "a.png"), filepath.Join(root, "link.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "missing.png"), filepath.Join(root, "broken.png")); err != nil {
		t.Fatal(err)
	}

	var reported []string
	got := collect(t, root, WalkOptions{
		OnError: func(path string, err error) { reported = append(reported, filepath.Base(path)) },
	})
	if strings.Join(got, ",") != "link.png,real/a.png" {
		t.Errorf("got %v", got)
	}
	if len(reported) != 1 || reported[0] != "broken.png" {
		t.Errorf("reported = %v, want [broken.png]", reported)
	}
}
