package integration

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/engine"
	"github.com/danieljhkim/treesnap/internal/fsops"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// faultFS is the real filesystem with injectable failures, so that
// permission and I/O errors can be produced without changing ownership.
type faultFS struct {
	*fsops.RealFS

	readDirErrs map[string]error
	lstatErrs   map[string]error

	mu     sync.Mutex
	writes []string
}

func newFaultFS() *faultFS {
	return &faultFS{
		RealFS:      fsops.NewRealFS(),
		readDirErrs: make(map[string]error),
		lstatErrs:   make(map[string]error),
	}
}

// failReadDir makes listing path fail with err.
func (fs *faultFS) failReadDir(path string, err error) {
	fs.readDirErrs[filepath.Clean(path)] = err
}

// failLstat makes inspecting path fail with err.
func (fs *faultFS) failLstat(path string, err error) {
	fs.lstatErrs[filepath.Clean(path)] = err
}

func (fs *faultFS) ReadDir(path string) ([]os.DirEntry, error) {
	if err, ok := fs.readDirErrs[filepath.Clean(path)]; ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return fs.RealFS.ReadDir(path)
}

func (fs *faultFS) Lstat(path string) (os.FileInfo, error) {
	if err, ok := fs.lstatErrs[filepath.Clean(path)]; ok {
		return nil, &os.PathError{Op: "lstat", Path: path, Err: err}
	}
	return fs.RealFS.Lstat(path)
}

func (fs *faultFS) Create(path string, perm os.FileMode) (*fsops.PendingFile, error) {
	fs.mu.Lock()
	fs.writes = append(fs.writes, path)
	fs.mu.Unlock()
	return fs.RealFS.Create(path, perm)
}

// setupTestEngine creates an engine over fs with a fixed clock.
func setupTestEngine(t *testing.T, fs fsops.FS) *engine.Engine {
	t.Helper()
	if fs == nil {
		fs = fsops.NewRealFS()
	}
	return engine.New(fs, clock.NewFakeClock(baseTime), strings.NewReader(""), nil, "2.1.0")
}

// writeTree creates files under a fresh temp dir. Keys ending in "/" are
// empty directories.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(abs, 0755); err != nil {
				t.Fatalf("failed to create dir: %v", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	return root
}

// projectTree is a small source tree used by most tests.
func projectTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"README.md":            "# project\n",
		"go.mod":               "module example.com/p\n",
		"cmd/app/main.go":      "package main\n",
		"internal/x/x.go":      "package x\n",
		"internal/x/x_test.go": "package x\n",
		"build/out.bin":        "\x00\x01\x02",
		"docs/":                "",
	})
}
