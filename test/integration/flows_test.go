package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/engine"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/persist"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

const projectEntries = 12

func takeSnapshot(t *testing.T, eng *engine.Engine, root string, opts engine.ScanOptions) *snapshot.Snapshot {
	t.Helper()
	out := eng.Snapshot(context.Background(), &engine.SnapshotRequest{Root: root, Scan: opts})
	snap, ok := out.Value()
	require.True(t, ok, "snapshot failed: %+v", out.Failure())
	return snap
}

func saveSnapshot(t *testing.T, fs *faultFS, snap *snapshot.Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, persist.Save(fs, path, func(w io.Writer) error { return snapshot.Encode(w, snap) }))
	return path
}

func TestSaveReloadCompare_Identical(t *testing.T) {
	fs := newFaultFS()
	eng := setupTestEngine(t, fs)
	root := projectTree(t)

	snap := takeSnapshot(t, eng, root, engine.ScanOptions{Checksum: "blake3"})
	require.Equal(t, projectEntries, snap.Count)
	saved := saveSnapshot(t, fs, snap)
	assert.Equal(t, []string{saved}, fs.writes)

	// Saved against live: nothing changed in between.
	out := eng.Compare(context.Background(), &engine.CompareRequest{
		Source: saved,
		Target: root,
		Scan:   engine.ScanOptions{Checksum: "blake3"},
	})
	result, ok := out.Value()
	require.True(t, ok, "compare failed: %+v", out.Failure())
	assert.True(t, result.Identical)
	assert.Equal(t, projectEntries, result.Summary.Unchanged)
	assert.False(t, result.Envelope.Meta.Deterministic, "a live side makes the diff non-deterministic")

	// Saved against itself is a pure function of its inputs.
	out = eng.Compare(context.Background(), &engine.CompareRequest{Source: saved, Target: saved})
	result, ok = out.Value()
	require.True(t, ok)
	assert.True(t, result.Identical)
	assert.True(t, result.Envelope.Meta.Deterministic)
}

func TestStreamAndBatchAgree(t *testing.T) {
	eng := setupTestEngine(t, nil)
	root := projectTree(t)

	batch := takeSnapshot(t, eng, root, engine.ScanOptions{Threads: 4})

	var buf bytes.Buffer
	res, err := eng.SnapshotStream(context.Background(), &engine.SnapshotRequest{Root: root, Scan: engine.ScanOptions{Threads: 4}}, &buf)
	require.NoError(t, err)
	require.Nil(t, res.Failure)
	assert.Equal(t, envelope.StatusOK, res.Status)
	assert.Equal(t, projectEntries, res.Summary.Total)

	streamed, err := persist.Decode(buf.Bytes(), snapshot.OriginFile)
	require.NoError(t, err)
	assert.Equal(t, batch.Entries, streamed.Entries)
	assert.Equal(t, batch.Root, streamed.Root)
	assert.Equal(t, batch.ChecksumAlgorithm, streamed.ChecksumAlgorithm)
}

func TestThreadCountDoesNotChangeResult(t *testing.T) {
	eng := setupTestEngine(t, nil)
	root := projectTree(t)

	one := takeSnapshot(t, eng, root, engine.ScanOptions{Threads: 1})
	many := takeSnapshot(t, eng, root, engine.ScanOptions{Threads: 16})
	assert.Equal(t, one.Entries, many.Entries)
}

func TestDriftDetection(t *testing.T) {
	fs := newFaultFS()
	eng := setupTestEngine(t, fs)
	root := projectTree(t)

	before := saveSnapshot(t, fs, takeSnapshot(t, eng, root, engine.ScanOptions{}))

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/q\n"), 0644))
	require.NoError(t, os.Chmod(filepath.Join(root, "README.md"), 0600))
	require.NoError(t, os.Remove(filepath.Join(root, "build", "out.bin")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.md"), []byte("guide"), 0644))

	out := eng.Compare(context.Background(), &engine.CompareRequest{
		Source:     before,
		Target:     root,
		IgnoreTime: true,
	})
	result, ok := out.Value()
	require.True(t, ok, "compare failed: %+v", out.Failure())
	assert.False(t, result.Identical)

	byPath := make(map[string]diff.Difference)
	for _, d := range result.Differences {
		byPath[d.Path] = d
	}

	assert.Equal(t, diff.Modified, byPath["go.mod"].ChangeType)
	assert.Contains(t, byPath["go.mod"].Changes, diff.AttrContent)
	assert.Equal(t, diff.Modified, byPath["README.md"].ChangeType)
	assert.Equal(t, []diff.Attribute{diff.AttrMode}, byPath["README.md"].Changes)
	assert.Equal(t, diff.Removed, byPath["build/out.bin"].ChangeType)
	assert.Nil(t, byPath["build/out.bin"].Target)
	assert.Equal(t, diff.Added, byPath["docs/guide.md"].ChangeType)
	assert.Nil(t, byPath["docs/guide.md"].Source)

	s := result.Summary
	assert.Equal(t, 1, s.Added)
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, projectEntries+1, s.Total(), "every distinct path is counted once")

	// Mode differences vanish when modes are ignored.
	out = eng.Compare(context.Background(), &engine.CompareRequest{
		Source:     before,
		Target:     root,
		IgnoreTime: true,
		IgnoreMode: true,
	})
	result, ok = out.Value()
	require.True(t, ok)
	for _, d := range result.Differences {
		assert.NotEqual(t, "README.md", d.Path)
	}
}

func TestTypeChangeIsModification(t *testing.T) {
	fs := newFaultFS()
	eng := setupTestEngine(t, fs)
	root := writeTree(t, map[string]string{"thing": "file"})

	before := saveSnapshot(t, fs, takeSnapshot(t, eng, root, engine.ScanOptions{}))
	require.NoError(t, os.Remove(filepath.Join(root, "thing")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "thing"), 0755))

	out := eng.Compare(context.Background(), &engine.CompareRequest{Source: before, Target: root, StructureOnly: true})
	result, ok := out.Value()
	require.True(t, ok)
	require.Len(t, result.Differences, 1)
	d := result.Differences[0]
	assert.Equal(t, diff.Modified, d.ChangeType)
	assert.Contains(t, d.Changes, diff.AttrType)
}

func TestPartialScan(t *testing.T) {
	fs := newFaultFS()
	eng := setupTestEngine(t, fs)
	root := projectTree(t)
	fs.failReadDir(filepath.Join(root, "internal", "x"), syscall.EACCES)
	fs.failLstat(filepath.Join(root, "go.mod"), syscall.EIO)

	out := eng.Snapshot(context.Background(), &engine.SnapshotRequest{Root: root})
	snap, ok := out.Value()
	require.True(t, ok, "per-entry failures must not abort the scan")
	assert.Equal(t, envelope.StatusPartial, snap.Status())
	assert.Equal(t, envelope.ExitPartial, out.ExitCode())

	// Generic I/O errors carry no path.
	codes := make(map[string]string)
	for _, e := range snap.Envelope.Errors {
		codes[e.Code] = e.Path
	}
	assert.Equal(t, "internal/x", codes[envelope.CodePermissionDenied])
	assert.Contains(t, codes, envelope.CodeIOError)
	assert.Empty(t, codes[envelope.CodeIOError])

	// The unlistable directory itself is still recorded; its children are not.
	paths := make([]string, 0, snap.Count)
	for _, e := range snap.Entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "internal/x")
	assert.NotContains(t, paths, "internal/x/x.go")
	assert.NotContains(t, paths, "go.mod")

	// Streaming reports the same errors as lines and still exits zero.
	var buf bytes.Buffer
	res, err := eng.SnapshotStream(context.Background(), &engine.SnapshotRequest{Root: root}, &buf)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusPartial, res.Status)
	assert.Equal(t, 2, res.Summary.Errors)
	assert.Equal(t, envelope.ExitOK, res.ExitCode())
	assert.Equal(t, 2, strings.Count(buf.String(), `"errors":[`))

	// A partial input makes the comparison partial too.
	streamed, err := persist.Decode(buf.Bytes(), snapshot.OriginFile)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusPartial, streamed.Status())
}

func TestPartialInputMakesDiffPartial(t *testing.T) {
	fs := newFaultFS()
	eng := setupTestEngine(t, fs)
	root := projectTree(t)
	fs.failReadDir(filepath.Join(root, "cmd", "app"), syscall.EACCES)

	out := eng.Compare(context.Background(), &engine.CompareRequest{Source: root, Target: root})
	result, ok := out.Value()
	require.True(t, ok)
	assert.Equal(t, envelope.StatusPartial, result.Envelope.Status)
	assert.Equal(t, envelope.ExitPartial, out.ExitCode())
	assert.NotEmpty(t, result.Envelope.Errors)
}

func TestSymlinkLoopIsReported(t *testing.T) {
	eng := setupTestEngine(t, nil)
	root := writeTree(t, map[string]string{"a/file.txt": "x"})
	if err := os.Symlink("..", filepath.Join(root, "a", "up")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// Without following, the link is an entry with its target.
	snap := takeSnapshot(t, eng, root, engine.ScanOptions{})
	var link *snapshot.Entry
	for i := range snap.Entries {
		if snap.Entries[i].Path == "a/up" {
			link = &snap.Entries[i]
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, snapshot.TypeSymlink, link.Type)
	assert.Equal(t, "..", link.Target)

	// Following it would revisit an ancestor.
	snap = takeSnapshot(t, eng, root, engine.ScanOptions{FollowSymlinks: true})
	assert.Equal(t, envelope.StatusPartial, snap.Status())
	require.Len(t, snap.Envelope.Errors, 1)
	assert.Equal(t, envelope.CodeSymlinkLoop, snap.Envelope.Errors[0].Code)
	assert.Equal(t, "a/up", snap.Envelope.Errors[0].Path)
}

func TestFailureEnvelopeShape(t *testing.T) {
	eng := setupTestEngine(t, nil)

	out := eng.Snapshot(context.Background(), &engine.SnapshotRequest{Root: filepath.Join(t.TempDir(), "gone")})
	require.False(t, out.OK())

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "error", env["status"])
	assert.NotContains(t, env, "entries")
	meta, ok := env["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "treesnap_snapshot", meta["tool"])
	assert.Equal(t, "2.1.0", meta["tool_version"])
}
