// Package persist resolves snapshot sources and moves snapshots between
// memory and disk.
//
// A source is what a user passes to diff: "-" for stdin, a path ending in
// .json or .jsonl for a saved snapshot or stream, and anything else for a
// directory to scan now. Loading a saved snapshot validates it the same way
// the scanner's own output would be: schema version, checksum algorithm,
// entry invariants and relative entry paths.
package persist

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// SourceKind distinguishes how a snapshot is acquired.
type SourceKind int

const (
	// SourceDir is a directory scanned live.
	SourceDir SourceKind = iota

	// SourceJSON is a serialized snapshot file.
	SourceJSON

	// SourceJSONL is a serialized stream file.
	SourceJSONL

	// SourceStdin is a serialized snapshot or stream on standard input.
	SourceStdin
)

func (k SourceKind) String() string {
	switch k {
	case SourceDir:
		return "directory"
	case SourceJSON:
		return "json"
	case SourceJSONL:
		return "jsonl"
	case SourceStdin:
		return "stdin"
	default:
		return "unknown"
	}
}

// StdinArg selects standard input.
const StdinArg = "-"

// Source is a parsed snapshot source argument.
type Source struct {
	Kind SourceKind
	Path string
}

// ParseSource classifies a source argument. It does not touch the
// filesystem; whether the path exists is found out when it is loaded.
func ParseSource(arg string) (Source, error) {
	if strings.TrimSpace(arg) == "" {
		return Source{}, fmt.Errorf("snapshot source is empty")
	}
	if arg == StdinArg {
		return Source{Kind: SourceStdin}, nil
	}

	switch strings.ToLower(filepath.Ext(arg)) {
	case ".json":
		return Source{Kind: SourceJSON, Path: arg}, nil
	case ".jsonl":
		return Source{Kind: SourceJSONL, Path: arg}, nil
	default:
		return Source{Kind: SourceDir, Path: arg}, nil
	}
}

// String returns the argument form of the source.
func (s Source) String() string {
	if s.Kind == SourceStdin {
		return StdinArg
	}
	return s.Path
}

// Live reports whether loading the source scans the filesystem.
func (s Source) Live() bool {
	return s.Kind == SourceDir
}

// Origin returns the snapshot origin the source yields.
func (s Source) Origin() snapshot.Origin {
	switch s.Kind {
	case SourceJSON, SourceJSONL:
		return snapshot.OriginFile
	case SourceStdin:
		return snapshot.OriginStdin
	default:
		return snapshot.OriginLive
	}
}
