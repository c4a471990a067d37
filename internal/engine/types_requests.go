package engine

import "time"

// ScanOptions are the scan settings shared by snapshot and compare requests.
type ScanOptions struct {
	// Patterns are include globs and "!"-prefixed exclude globs
	Patterns []string

	// Checksum is the checksum algorithm name (empty selects the default)
	Checksum string

	// Threads is the worker count (0 selects the CPU count)
	Threads int

	// FollowSymlinks descends into symlinked directories
	FollowSymlinks bool

	// MaxDepth limits recursion (0 is unbounded)
	MaxDepth int

	// NormalizePaths forces "/" separators in entry paths
	NormalizePaths bool

	// IgnoreFile is the per-directory ignore file name (empty disables it)
	IgnoreFile string
}

// SnapshotRequest represents a request to snapshot a directory.
type SnapshotRequest struct {
	// Root is the directory to scan
	Root string

	// Scan holds the scan settings
	Scan ScanOptions

	// Timeout bounds the whole operation (0 means none)
	Timeout time.Duration
}

// CompareRequest represents a request to compare two snapshot sources.
type CompareRequest struct {
	// Source is the "before" source: a directory, a .json or .jsonl file, or "-"
	Source string

	// Target is the "after" source
	Target string

	// Scan holds the scan settings used for directory sources
	Scan ScanOptions

	// IgnoreTime skips modification times
	IgnoreTime bool

	// IgnoreMode skips permissions
	IgnoreMode bool

	// StructureOnly compares only paths and types
	StructureOnly bool

	// Timeout bounds the whole operation (0 means none)
	Timeout time.Duration
}

// WatchRequest represents a request to watch a directory for changes.
type WatchRequest struct {
	// Root is the directory to watch
	Root string

	// Scan holds the scan settings for each snapshot
	Scan ScanOptions

	// IgnoreTime skips modification times
	IgnoreTime bool

	// IgnoreMode skips permissions
	IgnoreMode bool

	// StructureOnly compares only paths and types
	StructureOnly bool

	// Debounce is the quiet period before a rescan (0 selects the default)
	Debounce time.Duration
}
