package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/danieljhkim/treesnap/internal/envelope"
)

// Decode reads a serialized snapshot, checks schema compatibility and
// validates it. The returned snapshot carries the given origin.
func Decode(r io.Reader, origin Origin) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	if snap.Root == "" {
		return nil, fmt.Errorf("input is not a snapshot: missing root")
	}
	if err := envelope.CheckCompatible(SchemaVersion, snap.Version); err != nil {
		return nil, fmt.Errorf("unsupported snapshot version: %w", err)
	}
	if !snap.ChecksumAlgorithm.Valid() {
		return nil, fmt.Errorf("unsupported checksum algorithm %q", snap.ChecksumAlgorithm)
	}
	if snap.Entries == nil {
		snap.Entries = []Entry{}
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	snap.Origin = origin
	return &snap, nil
}

// Encode writes s as indented JSON.
func Encode(w io.Writer, s *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// SortEntries orders entries by path.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}
