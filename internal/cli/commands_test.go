package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danieljhkim/treesnap/internal/persist"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// makeTree creates a small directory tree for command tests.
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"a.txt":             "alpha",
		"node_modules/m.js": "module",
		"src/main.go":       "package main",
		"src/util.go":       "package main",
	} {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// failureJSON is a bare error envelope.
type failureJSON struct {
	Status string `json:"status"`
	Errors []struct {
		Code string `json:"code"`
	} `json:"errors"`
}

type diffOutputJSON struct {
	Identical bool `json:"identical"`
	Summary   struct {
		Added     int `json:"added"`
		Removed   int `json:"removed"`
		Modified  int `json:"modified"`
		Unchanged int `json:"unchanged"`
	} `json:"summary"`
	Differences []struct {
		Path       string `json:"path"`
		ChangeType string `json:"change_type"`
	} `json:"differences"`
}

func decodeSnapshot(t *testing.T, out string) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Decode(strings.NewReader(out), snapshot.OriginFile)
	if err != nil {
		t.Fatalf("output is not a valid snapshot: %v\n%s", err, out)
	}
	return snap
}

func hasPath(s *snapshot.Snapshot, p string) bool {
	for _, e := range s.Entries {
		if e.Path == p {
			return true
		}
	}
	return false
}

func TestSnapshotCommand_JSON(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "snapshot", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	snap := decodeSnapshot(t, stdout)
	// a.txt, node_modules, node_modules/m.js, src, src/main.go, src/util.go
	if snap.Count != 6 {
		t.Errorf("expected 6 entries, got %d", snap.Count)
	}
	if !strings.HasPrefix(stdout, "{\n  \"$envelope\"") {
		t.Errorf("expected $envelope as the first key, got %.40q", stdout)
	}
	for _, e := range snap.Entries {
		if e.Type == snapshot.TypeFile && !strings.HasPrefix(e.Checksum, "xxh3_64:") {
			t.Errorf("%s: unexpected checksum %q", e.Path, e.Checksum)
		}
	}
}

func TestSnapshotCommand_Exclude(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "snapshot", "--exclude", "node_modules", "--checksum", "sha256", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	snap := decodeSnapshot(t, stdout)
	if hasPath(snap, "node_modules") || hasPath(snap, "node_modules/m.js") {
		t.Error("excluded directory present in snapshot")
	}
	if snap.ChecksumAlgorithm != "sha256" {
		t.Errorf("expected sha256, got %s", snap.ChecksumAlgorithm)
	}
}

func TestSnapshotCommand_Include(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "snapshot", "--include", "*.go", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	snap := decodeSnapshot(t, stdout)
	if hasPath(snap, "a.txt") {
		t.Error("a.txt should not match the include pattern")
	}
	if !hasPath(snap, "src/main.go") {
		t.Error("src/main.go missing")
	}
}

func TestSnapshotCommand_Failures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing root", []string{"snapshot", filepath.Join(t.TempDir(), "missing")}, "PATH_NOT_FOUND"},
		{"unknown checksum", []string{"snapshot", "--checksum", "md5", t.TempDir()}, "INVALID_ARGUMENT"},
		{"bad pattern", []string{"snapshot", "--exclude", "[x", t.TempDir()}, "INVALID_ARGUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, nil, tt.args...)
			if ExitCode(err) != 1 {
				t.Fatalf("expected exit code 1, got %d (%v)", ExitCode(err), err)
			}

			var env failureJSON
			if err := json.Unmarshal([]byte(stdout), &env); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, stdout)
			}
			if env.Status != "error" {
				t.Errorf("expected status error, got %s", env.Status)
			}
			if len(env.Errors) != 1 || env.Errors[0].Code != tt.code {
				t.Errorf("expected %s, got %+v", tt.code, env.Errors)
			}
			if strings.Contains(stdout, `"entries"`) {
				t.Error("failure output should not carry entries")
			}
		})
	}
}

func TestSnapshotCommand_JSONL(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "snapshot", "--jsonl", root)
	if err != nil {
		t.Fatalf("snapshot --jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 6+2 {
		t.Fatalf("expected 8 lines, got %d:\n%s", len(lines), stdout)
	}
	if !strings.Contains(lines[0], `"stream":"head"`) || !strings.Contains(lines[len(lines)-1], `"stream":"tail"`) {
		t.Errorf("stream is not framed by head and tail:\n%s", stdout)
	}

	snap, err := persist.Decode([]byte(stdout), snapshot.OriginFile)
	if err != nil {
		t.Fatalf("stream does not decode: %v", err)
	}
	if snap.Count != 6 {
		t.Errorf("expected 6 decoded entries, got %d", snap.Count)
	}
}

func TestSnapshotCommand_JSONLMissingRoot(t *testing.T) {
	stdout, _, err := execute(t, nil, "snapshot", "--jsonl", filepath.Join(t.TempDir(), "missing"))
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(err))
	}
	if strings.Contains(stdout, `"stream"`) {
		t.Errorf("failed stream should not write a head:\n%s", stdout)
	}
	if !strings.Contains(stdout, "PATH_NOT_FOUND") {
		t.Errorf("expected PATH_NOT_FOUND envelope:\n%s", stdout)
	}
}

func TestSnapshotCommand_OutputFile(t *testing.T) {
	root := makeTree(t)
	outPath := filepath.Join(t.TempDir(), "snap.json")

	stdout, _, err := execute(t, nil, "snapshot", "-o", outPath, root)
	if err != nil {
		t.Fatalf("snapshot -o: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no stdout with -o, got %q", stdout)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if decodeSnapshot(t, string(data)).Count != 6 {
		t.Error("unexpected entry count in output file")
	}
}

func TestSnapshotCommand_Info(t *testing.T) {
	stdout, _, err := execute(t, nil, "snapshot", "--info")
	if err != nil {
		t.Fatalf("snapshot --info: %v", err)
	}

	var env struct {
		Status string `json:"status"`
		Meta   struct {
			Tool          string `json:"tool"`
			Deterministic bool   `json:"deterministic"`
			Mutates       bool   `json:"mutates"`
			Profiles      []struct {
				Name string `json:"name"`
			} `json:"profiles"`
		} `json:"meta"`
	}
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if env.Status != "ok" || env.Meta.Tool != "treesnap_snapshot" || env.Meta.Deterministic || env.Meta.Mutates {
		t.Errorf("unexpected info envelope: %s", stdout)
	}
	if len(env.Meta.Profiles) != 1 || env.Meta.Profiles[0].Name != "_determinism" {
		t.Errorf("expected the determinism profile, got %+v", env.Meta.Profiles)
	}
}

func TestSnapshotCommand_Human(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "snapshot", "--human", root)
	if err != nil {
		t.Fatalf("snapshot --human: %v", err)
	}
	for _, want := range []string{"Snapshot", "entries", "src/main.go", "directory"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("human output missing %q:\n%s", want, stdout)
		}
	}
}

func TestSnapshotCommand_Args(t *testing.T) {
	if _, _, err := execute(t, nil, "snapshot"); err == nil {
		t.Error("expected error without a path")
	}
	if _, _, err := execute(t, nil, "snapshot", "--human", "--jsonl", t.TempDir()); err == nil {
		t.Error("expected error for --human with --jsonl")
	}
}

func TestSnapshotCommand_ConfigDefaults(t *testing.T) {
	root := makeTree(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("snapshot:\n  checksum: blake3\n  exclude: [node_modules]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, nil, "--config", cfgPath, "snapshot", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap := decodeSnapshot(t, stdout)
	if snap.ChecksumAlgorithm != "blake3" {
		t.Errorf("config checksum not applied, got %s", snap.ChecksumAlgorithm)
	}
	if hasPath(snap, "node_modules") {
		t.Error("config exclude not applied")
	}

	// Flags override the config.
	stdout, _, err = execute(t, nil, "--config", cfgPath, "snapshot", "--checksum", "sha256", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := decodeSnapshot(t, stdout).ChecksumAlgorithm; got != "sha256" {
		t.Errorf("flag did not override config, got %s", got)
	}
}

func TestSnapshotCommand_IgnoreFile(t *testing.T) {
	root := makeTree(t)
	if err := os.WriteFile(filepath.Join(root, ".treesnapignore"), []byte("*.txt\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, nil, "snapshot", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if hasPath(decodeSnapshot(t, stdout), "a.txt") {
		t.Error("ignore file not honored")
	}

	stdout, _, err = execute(t, nil, "snapshot", "--no-ignore-file", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !hasPath(decodeSnapshot(t, stdout), "a.txt") {
		t.Error("--no-ignore-file should record a.txt")
	}
}

func TestDiffCommand_Directories(t *testing.T) {
	before := makeTree(t)
	after := makeTree(t)
	if err := os.WriteFile(filepath.Join(after, "src", "main.go"), []byte("package other"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(after, "new.txt"), []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, nil, "diff", "--ignore-time", before, after)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	var res diffOutputJSON
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if res.Identical {
		t.Error("expected differences")
	}
	if res.Summary.Added != 1 || res.Summary.Modified != 1 || res.Summary.Removed != 0 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
	for _, d := range res.Differences {
		if d.Path == "new.txt" && d.ChangeType != "added" {
			t.Errorf("new.txt reported as %s", d.ChangeType)
		}
	}
}

func TestDiffCommand_SavedAndStdin(t *testing.T) {
	root := makeTree(t)
	saved := filepath.Join(t.TempDir(), "before.json")
	if _, _, err := execute(t, nil, "snapshot", "-o", saved, root); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "a.txt")); err != nil {
		t.Fatal(err)
	}
	current, _, err := execute(t, nil, "snapshot", "--jsonl", root)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	stdout, _, err := execute(t, strings.NewReader(current), "diff", "--ignore-time", saved, "-")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	var res diffOutputJSON
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if res.Summary.Removed != 1 || res.Summary.Added != 0 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
}

func TestDiffCommand_Identical(t *testing.T) {
	root := makeTree(t)

	stdout, _, err := execute(t, nil, "diff", "--human", root, root)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(stdout, "No differences") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestDiffCommand_Human(t *testing.T) {
	before := makeTree(t)
	after := makeTree(t)
	if err := os.Remove(filepath.Join(after, "a.txt")); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, nil, "diff", "--human", "--ignore-time", before, after)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(stdout, "D a.txt") {
		t.Errorf("expected removal line:\n%s", stdout)
	}
	if !strings.Contains(stdout, "1 removed") {
		t.Errorf("expected summary line:\n%s", stdout)
	}
}

func TestDiffCommand_PartialInput(t *testing.T) {
	saved := filepath.Join(t.TempDir(), "partial.json")
	partial := `{"$envelope":{"version":"1.0","status":"partial","errors":[` +
		`{"code":"PERMISSION_DENIED","message":"permission denied","path":"secret","recoverable":false}]},` +
		`"version":"1.0","root":"/data","checksum_algorithm":"xxh3_64","count":0,"entries":[]}`
	if err := os.WriteFile(saved, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, nil, "diff", "--human", saved, saved)
	if ExitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d (%v)", ExitCode(err), err)
	}
	for _, want := range []string{"No differences", "partial result", "2 errors", "PERMISSION_DENIED: secret"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestDiffCommand_LoadError(t *testing.T) {
	stdout, _, err := execute(t, nil, "diff", filepath.Join(t.TempDir(), "missing.json"), t.TempDir())
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(err))
	}

	var env failureJSON
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, stdout)
	}
	if len(env.Errors) != 1 || env.Errors[0].Code != "LOAD_ERROR" {
		t.Errorf("expected LOAD_ERROR, got %s", stdout)
	}
}

func TestDiffCommand_Info(t *testing.T) {
	stdout, _, err := execute(t, nil, "diff", "--info")
	if err != nil {
		t.Fatalf("diff --info: %v", err)
	}
	if !strings.Contains(stdout, `"deterministic": true`) || !strings.Contains(stdout, "treesnap_diff") {
		t.Errorf("unexpected info envelope:\n%s", stdout)
	}
}

func TestDiffCommand_Args(t *testing.T) {
	if _, _, err := execute(t, nil, "diff", t.TempDir()); err == nil {
		t.Error("expected error with one argument")
	}
}

func TestWatchCommand_BadDebounce(t *testing.T) {
	_, _, err := execute(t, nil, "watch", "--debounce=-1s", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "debounce") {
		t.Errorf("expected debounce error, got %v", err)
	}
}

func TestWatchCommand_MissingRoot(t *testing.T) {
	stdout, _, err := execute(t, nil, "watch", filepath.Join(t.TempDir(), "missing"))
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(err))
	}
	if !strings.Contains(stdout, "PATH_NOT_FOUND") {
		t.Errorf("expected PATH_NOT_FOUND envelope:\n%s", stdout)
	}
}
