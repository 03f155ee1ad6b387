package fsops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRealFS_Exists(t *testing.T) {
	rfs := NewRealFS()
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "book.toml")
	if err := os.WriteFile(testFile, []byte("[book]"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing file", testFile, true},
		{"existing directory", tmpDir, true},
		{"missing file", filepath.Join(tmpDir, "missing.toml"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := rfs.Exists(tt.path)
			if err != nil {
				t.Fatalf("Exists returned error: %v", err)
			}
			if exists != tt.want {
				t.Errorf("Exists(%s) = %v, want %v", tt.path, exists, tt.want)
			}
		})
	}
}

func TestRealFS_AtomicWrite(t *testing.T) {
	rfs := NewRealFS()
	tmpDir := t.TempDir()

	t.Run("write to new file in new directory", func(t *testing.T) {
		path := filepath.Join(tmpDir, "out", "plan.json")
		if err := rfs.AtomicWrite(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read written file: %v", err)
		}
		if string(data) != "{}" {
			t.Errorf("content mismatch: got %q", data)
		}
	})

	t.Run("overwrite existing file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "plan.yaml")
		if err := os.WriteFile(path, []byte("initial"), 0644); err != nil {
			t.Fatalf("failed to create initial file: %v", err)
		}
		if err := rfs.AtomicWrite(path, []byte("overwritten"), 0600); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(data) != "overwritten" {
			t.Errorf("content not updated: got %q", data)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("leaves no temp files", func(t *testing.T) {
		entries, err := os.ReadDir(tmpDir)
		if err != nil {
			t.Fatalf("ReadDir failed: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".mdbook-confluence-tmp-") {
				t.Errorf("unexpected leftover %s", e.Name())
			}
		}
	})
}

func TestRealFS_ReadFile(t *testing.T) {
	rfs := NewRealFS()
	path := filepath.Join(t.TempDir(), "context.json")
	if err := os.WriteFile(path, []byte(`{"version":"0.4.40"}`), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	data, err := rfs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"version":"0.4.40"}` {
		t.Errorf("ReadFile content mismatch: got %q", data)
	}

	if _, err := rfs.ReadFile(path + ".missing"); err == nil {
		t.Error("ReadFile should return error for non-existing file")
	}
}

func TestMemFS(t *testing.T) {
	mfs := NewMemFS()

	if exists, _ := mfs.Exists("book.toml"); exists {
		t.Error("empty MemFS reported a file")
	}
	_, err := mfs.ReadFile("book.toml")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	mfs.SetFile("./book.toml", []byte("[book]"))
	data, err := mfs.ReadFile("book.toml")
	if err != nil || string(data) != "[book]" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	if err := mfs.AtomicWrite("out/plan.txt", []byte("plan"), 0644); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	if exists, _ := mfs.Exists("out/plan.txt"); !exists {
		t.Error("written file not found")
	}
}
