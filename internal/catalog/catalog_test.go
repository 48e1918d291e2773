package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	if err := os.WriteFile(name, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func newCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "movie.A", "002.jpg"), "second")
	writeFile(t, filepath.Join(root, "movie.A", "001.jpg"), "first")
	writeFile(t, filepath.Join(root, "movie.A", "003.PNG"), "third")
	writeFile(t, filepath.Join(root, "movie.A", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "movie.A", subtitleFile), "- from: 1\n  to: 2\n  text: hello\n- {from: 3, to: 3, text: bye}\n")
	writeFile(t, filepath.Join(root, "empty", "readme.md"), "no frames")
	writeFile(t, filepath.Join(root, ".hidden", "001.jpg"), "hidden")
	writeFile(t, filepath.Join(root, "stray.jpg"), "not a resource")

	c, err := Open(root, 2)
	if err != nil {
		t.Fatalf("Failed to open catalog: %v", err)
	}
	return c, root
}

func TestCatalogList(t *testing.T) {
	c, _ := newCatalog(t)
	names, err := c.List()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"empty", "movie.A"}) {
		t.Errorf("Expected [empty movie.A], got %q", names)
	}
}

func TestCatalogOpen(t *testing.T) {
	c, root := newCatalog(t)
	source, err := c.Open("movie.A")
	if err != nil {
		t.Fatalf("Failed to open resource: %v", err)
	}
	if source.Len() != 3 {
		t.Fatalf("Expected 3 frames, got %d", source.Len())
	}

	for i, expected := range []string{"first", "second", "third"} {
		n := i + 1
		data, err := source.Frame(n)
		if err != nil {
			t.Fatalf("Failed to load frame %d: %v", n, err)
		}
		if string(data) != expected {
			t.Errorf("Expected frame %d to be %q, got %q", n, expected, data)
		}
	}

	for _, n := range []int{0, 4} {
		if _, err := source.Frame(n); !errors.Is(err, ErrFrameRange) {
			t.Errorf("Expected ErrFrameRange for frame %d, got %v", n, err)
		}
	}

	// frame 3 was read last and is still cached
	if err := os.Remove(filepath.Join(root, "movie.A", "003.PNG")); err != nil {
		t.Fatalf("Failed to remove frame: %v", err)
	}
	if data, err := source.Frame(3); err != nil || string(data) != "third" {
		t.Errorf("Expected cached frame 3, got %q (%v)", data, err)
	}
	if err := os.Remove(filepath.Join(root, "movie.A", "001.jpg")); err != nil {
		t.Fatalf("Failed to remove frame: %v", err)
	}
	if _, err := source.Frame(1); err == nil {
		t.Errorf("Expected evicted frame 1 to be read from disk and fail")
	}
}

func TestCatalogSubtitles(t *testing.T) {
	c, _ := newCatalog(t)
	source, err := c.Open("movie.A")
	if err != nil {
		t.Fatalf("Failed to open resource: %v", err)
	}
	for n, expected := range map[int]string{1: "hello", 2: "hello", 3: "bye", 4: ""} {
		if got := source.Subtitle(n); got != expected {
			t.Errorf("Expected subtitle %q for frame %d, got %q", expected, n, got)
		}
	}
}

func TestCatalogOpenFailures(t *testing.T) {
	c, root := newCatalog(t)
	writeFile(t, filepath.Join(root, "broken", "001.jpg"), "frame")
	writeFile(t, filepath.Join(root, "broken", subtitleFile), "- {from: 3, to: 1, text: backwards}\n")

	tests := []struct {
		name string
		err  error
	}{
		{name: "", err: ErrInvalidName},
		{name: ".", err: ErrInvalidName},
		{name: "..", err: ErrInvalidName},
		{name: "../movie.A", err: ErrInvalidName},
		{name: `movie.A\..`, err: ErrInvalidName},
		{name: "missing", err: ErrNotFound},
		{name: "empty", err: ErrEmptyResource},
	}
	for _, tt := range tests {
		if _, err := c.Open(tt.name); !errors.Is(err, tt.err) {
			t.Errorf("Expected %v opening %q, got %v", tt.err, tt.name, err)
		}
	}

	if _, err := c.Open("broken"); err == nil {
		t.Errorf("Expected invalid cue range to fail")
	}
}

func TestOpenRequiresFolder(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(filepath.Join(root, "missing"), 1); err == nil {
		t.Errorf("Expected missing folder to fail")
	}
	file := filepath.Join(root, "file")
	writeFile(t, file, "x")
	if _, err := Open(file, 1); err == nil {
		t.Errorf("Expected file to be rejected")
	}
}
