// Package diff compares two snapshots path by path.
//
// The engine performs no I/O and cannot fail: everything that can go wrong
// happens while acquiring the snapshots, before Diff is called.
package diff

import (
	"sort"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// ChangeType classifies a path-level difference.
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"

	// PermissionDenied is reserved for paths whose comparison could not be
	// made. The engine itself never produces it.
	PermissionDenied ChangeType = "permission_denied"
)

// Attribute names an entry attribute that changed.
type Attribute string

const (
	AttrContent Attribute = "content"
	AttrMode    Attribute = "mode"
	AttrMTime   Attribute = "mtime"
	AttrType    Attribute = "type"
	AttrSize    Attribute = "size"
	AttrTarget  Attribute = "target"
)

// Options selects which attributes are compared. Type is always compared.
type Options struct {
	// IgnoreTime skips modification times.
	IgnoreTime bool

	// IgnoreMode skips permission strings.
	IgnoreMode bool

	// StructureOnly compares only paths and types.
	StructureOnly bool
}

// Summary counts paths by outcome. The counts add up to the number of
// distinct paths across both snapshots.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of paths accounted for.
func (s Summary) Total() int {
	return s.Added + s.Removed + s.Modified + s.Unchanged
}

// Difference is one changed path. Source and Target are null when the path
// is absent on that side.
type Difference struct {
	Path       string          `json:"path"`
	ChangeType ChangeType      `json:"change_type"`
	Changes    []Attribute     `json:"changes,omitempty"`
	Source     *snapshot.Entry `json:"source"`
	Target     *snapshot.Entry `json:"target"`
	Error      string          `json:"error,omitempty"`
}

// Result is the outcome of comparing two snapshots.
type Result struct {
	Envelope    *envelope.Envelope `json:"$envelope"`
	Identical   bool               `json:"identical"`
	Summary     Summary            `json:"summary"`
	Differences []Difference       `json:"differences"`
}

// Annotation returns the result's envelope.
func (r *Result) Annotation() *envelope.Envelope {
	return r.Envelope
}

// Engine compares snapshots.
type Engine struct {
	opts  Options
	clock clock.Clock
	tool  envelope.Tool
}

// New creates an Engine.
func New(opts Options, clk clock.Clock, tool envelope.Tool) *Engine {
	return &Engine{opts: opts, clock: clk, tool: tool}
}

// Diff compares source against target. Paths only in target are added,
// paths only in source are removed, and paths in both are modified when any
// compared attribute differs.
func (e *Engine) Diff(source, target *snapshot.Snapshot) *Result {
	timer := clock.Start(e.clock)

	srcIdx := source.Index()
	tgtIdx := target.Index()

	paths := make([]string, 0, len(srcIdx)+len(tgtIdx))
	for p := range srcIdx {
		paths = append(paths, p)
	}
	for p := range tgtIdx {
		if _, ok := srcIdx[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var summary Summary
	differences := make([]Difference, 0)
	for _, p := range paths {
		src, inSrc := srcIdx[p]
		tgt, inTgt := tgtIdx[p]

		switch {
		case inSrc && inTgt:
			changes := e.compare(src, tgt)
			if len(changes) == 0 {
				summary.Unchanged++
				continue
			}
			summary.Modified++
			differences = append(differences, Difference{
				Path:       p,
				ChangeType: Modified,
				Changes:    changes,
				Source:     src,
				Target:     tgt,
			})
		case inSrc:
			summary.Removed++
			differences = append(differences, Difference{Path: p, ChangeType: Removed, Source: src})
		default:
			summary.Added++
			differences = append(differences, Difference{Path: p, ChangeType: Added, Target: tgt})
		}
	}

	deterministic := source.Origin.Reloaded() && target.Origin.Reloaded()
	status := envelope.Worst(inputStatus(source), inputStatus(target))
	meta := envelope.NewMeta(e.tool, envelope.ReadOnly(deterministic), timer.Now(), timer.Elapsed()).
		WithDefaultProfiles()
	env := envelope.New(status, meta)
	env.WithErrors(inputErrors(source)...)
	env.WithErrors(inputErrors(target)...)

	return &Result{
		Envelope:    env,
		Identical:   len(differences) == 0,
		Summary:     summary,
		Differences: differences,
	}
}

// compare returns the changed attributes in a fixed order.
func (e *Engine) compare(src, tgt *snapshot.Entry) []Attribute {
	var changes []Attribute

	if src.Type != tgt.Type {
		changes = append(changes, AttrType)
	}
	if e.opts.StructureOnly {
		return changes
	}

	if src.Checksum != tgt.Checksum {
		changes = append(changes, AttrContent)
	}
	if !e.opts.IgnoreMode && src.Mode != tgt.Mode {
		changes = append(changes, AttrMode)
	}
	if !e.opts.IgnoreTime && !src.MTime.Equal(tgt.MTime) {
		changes = append(changes, AttrMTime)
	}
	if !sameSize(src.Size, tgt.Size) {
		changes = append(changes, AttrSize)
	}
	if src.Target != tgt.Target {
		changes = append(changes, AttrTarget)
	}
	return changes
}

func sameSize(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// inputStatus maps an input snapshot to the status it contributes. A
// snapshot that lost entries makes the comparison partial.
func inputStatus(s *snapshot.Snapshot) envelope.Status {
	if s.Status() == envelope.StatusPartial {
		return envelope.StatusPartial
	}
	return envelope.StatusOK
}

func inputErrors(s *snapshot.Snapshot) []envelope.Error {
	if s.Envelope == nil {
		return nil
	}
	return s.Envelope.Errors
}
