// Package snapshot defines the shared data model: entries, snapshots, and the
// scan error taxonomy.
//
// Entries and snapshots are immutable once produced. A Snapshot may be
// written to disk and reloaded later as a diff input; the Origin records
// where it came from so that callers can tell live scans from reloaded ones.
package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/hash"
)

// SchemaVersion is the structural version of the snapshot format. It is
// independent of the tool version.
const SchemaVersion = "1.0"

// EntryType classifies a filesystem object.
type EntryType string

const (
	// TypeUndefined covers devices, FIFOs, sockets and other special files.
	TypeUndefined EntryType = "undefined"
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
	TypeSymlink   EntryType = "symlink"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case TypeUndefined, TypeFile, TypeDirectory, TypeSymlink:
		return true
	}
	return false
}

// Entry is one filesystem object in a snapshot.
type Entry struct {
	// Path is relative to the snapshot root.
	Path string `json:"path"`

	Type EntryType `json:"type"`

	Size *uint64 `json:"size,omitempty"`

	// Mode is the platform permission string: octal on Unix ("644",
	// "4755"), hex attributes on Windows ("00000020,readonly").
	Mode string `json:"mode,omitempty"`

	MTime time.Time `json:"mtime"`

	// Checksum is "<algorithm>:<hex>" and is set only for files.
	Checksum string `json:"checksum,omitempty"`

	// Target is the symlink target and is set only for symlinks.
	Target string `json:"target,omitempty"`
}

// Validate checks the structural invariants of an entry.
func (e *Entry) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("entry has an empty path")
	}
	if filepath.IsAbs(e.Path) || strings.HasPrefix(e.Path, "/") {
		return fmt.Errorf("entry path %q is absolute", e.Path)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("entry %q has unknown type %q", e.Path, e.Type)
	}
	if (e.Checksum != "") != (e.Type == TypeFile) {
		return fmt.Errorf("entry %q: checksum must be set exactly for files", e.Path)
	}
	if (e.Target != "") != (e.Type == TypeSymlink) {
		return fmt.Errorf("entry %q: target must be set exactly for symlinks", e.Path)
	}
	return nil
}

// SizeValue returns the size, or 0 when unset.
func (e *Entry) SizeValue() uint64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

// Origin records where a snapshot came from.
type Origin string

const (
	// OriginLive is a snapshot produced by scanning the filesystem now.
	OriginLive Origin = "live"

	// OriginFile is a snapshot reloaded from a file.
	OriginFile Origin = "file"

	// OriginStdin is a snapshot reloaded from standard input.
	OriginStdin Origin = "stdin"
)

// Reloaded reports whether the snapshot was read back from serialized form.
func (o Origin) Reloaded() bool {
	return o == OriginFile || o == OriginStdin
}

// Snapshot is a complete inventory of entries under a root.
type Snapshot struct {
	Envelope          *envelope.Envelope `json:"$envelope"`
	Version           string             `json:"version"`
	Root              string             `json:"root"`
	ChecksumAlgorithm hash.Algorithm     `json:"checksum_algorithm"`
	Count             int                `json:"count"`
	Entries           []Entry            `json:"entries"`

	Origin Origin `json:"-"`
}

// New creates a snapshot of entries, keeping Count in step.
func New(env *envelope.Envelope, root string, alg hash.Algorithm, entries []Entry) *Snapshot {
	if entries == nil {
		entries = []Entry{}
	}
	return &Snapshot{
		Envelope:          env,
		Version:           SchemaVersion,
		Root:              root,
		ChecksumAlgorithm: alg,
		Count:             len(entries),
		Entries:           entries,
		Origin:            OriginLive,
	}
}

// Annotation returns the snapshot's envelope.
func (s *Snapshot) Annotation() *envelope.Envelope {
	return s.Envelope
}

// Status returns the envelope status, treating a missing envelope as ok.
func (s *Snapshot) Status() envelope.Status {
	if s.Envelope == nil || s.Envelope.Status == "" {
		return envelope.StatusOK
	}
	return s.Envelope.Status
}

// Index returns a path-keyed lookup of the entries.
func (s *Snapshot) Index() map[string]*Entry {
	idx := make(map[string]*Entry, len(s.Entries))
	for i := range s.Entries {
		idx[s.Entries[i].Path] = &s.Entries[i]
	}
	return idx
}

// Validate checks the snapshot-level invariants and every entry.
func (s *Snapshot) Validate() error {
	if s.Count != len(s.Entries) {
		return fmt.Errorf("count %d does not match %d entries", s.Count, len(s.Entries))
	}
	seen := make(map[string]struct{}, len(s.Entries))
	for i := range s.Entries {
		if err := s.Entries[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Entries[i].Path]; dup {
			return fmt.Errorf("duplicate entry %q", s.Entries[i].Path)
		}
		seen[s.Entries[i].Path] = struct{}{}
	}
	return nil
}
