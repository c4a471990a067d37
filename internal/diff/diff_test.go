package diff

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/hash"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

var (
	testTool = envelope.Tool{Name: "treesnap-diff", Version: "1.0.0"}
	baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
)

func u64(n uint64) *uint64 { return &n }

func file(path, sum string) snapshot.Entry {
	return snapshot.Entry{Path: path, Type: snapshot.TypeFile, Size: u64(10), Mode: "644", MTime: baseTime, Checksum: "sha256:" + sum}
}

func dir(path string) snapshot.Entry {
	return snapshot.Entry{Path: path, Type: snapshot.TypeDirectory, Size: u64(4096), Mode: "755", MTime: baseTime}
}

func snap(origin snapshot.Origin, status envelope.Status, entries ...snapshot.Entry) *snapshot.Snapshot {
	s := snapshot.New(envelope.New(status, nil), "/root", hash.SHA256, entries)
	s.Origin = origin
	return s
}

func newEngine(opts Options) *Engine {
	return New(opts, clock.NewFakeClock(baseTime), testTool)
}

func TestDiff_Basic(t *testing.T) {
	source := snap(snapshot.OriginFile, envelope.StatusOK,
		file("keep.txt", "aaa"), file("change.txt", "bbb"), file("gone.txt", "ccc"), dir("d"))
	target := snap(snapshot.OriginFile, envelope.StatusOK,
		dir("d"), file("new.txt", "ddd"), file("keep.txt", "aaa"), file("change.txt", "xxx"))

	result := newEngine(Options{}).Diff(source, target)

	assert.False(t, result.Identical)
	assert.Equal(t, Summary{Added: 1, Removed: 1, Modified: 1, Unchanged: 2}, result.Summary)
	require.Len(t, result.Differences, 3)

	assert.Equal(t, "change.txt", result.Differences[0].Path)
	assert.Equal(t, Modified, result.Differences[0].ChangeType)
	assert.Equal(t, []Attribute{AttrContent}, result.Differences[0].Changes)
	assert.NotNil(t, result.Differences[0].Source)
	assert.NotNil(t, result.Differences[0].Target)

	assert.Equal(t, "gone.txt", result.Differences[1].Path)
	assert.Equal(t, Removed, result.Differences[1].ChangeType)
	assert.Nil(t, result.Differences[1].Target)

	assert.Equal(t, "new.txt", result.Differences[2].Path)
	assert.Equal(t, Added, result.Differences[2].ChangeType)
	assert.Nil(t, result.Differences[2].Source)

	require.NotNil(t, result.Envelope.Meta)
	assert.True(t, result.Envelope.Meta.Deterministic)
	assert.True(t, result.Envelope.Meta.Idempotent)
	assert.False(t, result.Envelope.Meta.Mutates)
	assert.True(t, result.Envelope.Meta.Safe)
	assert.Equal(t, envelope.StatusOK, result.Envelope.Status)
}

func TestDiff_AttributePolicy(t *testing.T) {
	src := file("f", "aaa")
	tgt := src
	tgt.Checksum = "sha256:bbb"
	tgt.Mode = "600"
	tgt.MTime = baseTime.Add(time.Hour)
	tgt.Size = u64(11)

	link := snapshot.Entry{Path: "l", Type: snapshot.TypeSymlink, Size: u64(1), Mode: "777", MTime: baseTime, Target: "a"}
	relinked := link
	relinked.Target = "b"

	retyped := dir("f")

	tests := []struct {
		name string
		opts Options
		src  snapshot.Entry
		tgt  snapshot.Entry
		want []Attribute
	}{
		{"all attributes", Options{}, src, tgt, []Attribute{AttrContent, AttrMode, AttrMTime, AttrSize}},
		{"ignore time", Options{IgnoreTime: true}, src, tgt, []Attribute{AttrContent, AttrMode, AttrSize}},
		{"ignore mode", Options{IgnoreMode: true}, src, tgt, []Attribute{AttrContent, AttrMTime, AttrSize}},
		{"structure only", Options{StructureOnly: true}, src, tgt, nil},
		{"symlink target", Options{}, link, relinked, []Attribute{AttrTarget}},
		{"symlink target structure only", Options{StructureOnly: true}, link, relinked, nil},
		{"type always compared", Options{StructureOnly: true}, src, retyped, []Attribute{AttrType}},
		{"type and more", Options{IgnoreTime: true, IgnoreMode: true}, src, retyped, []Attribute{AttrType, AttrContent, AttrSize}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newEngine(tt.opts).Diff(
				snap(snapshot.OriginFile, envelope.StatusOK, tt.src),
				snap(snapshot.OriginFile, envelope.StatusOK, tt.tgt))

			if tt.want == nil {
				assert.True(t, result.Identical)
				assert.Equal(t, 1, result.Summary.Unchanged)
				return
			}
			require.Len(t, result.Differences, 1)
			assert.Equal(t, tt.want, result.Differences[0].Changes)
			assert.Equal(t, 1, result.Summary.Modified)
		})
	}
}

func TestDiff_Envelope(t *testing.T) {
	t.Run("live input is not deterministic", func(t *testing.T) {
		result := newEngine(Options{}).Diff(
			snap(snapshot.OriginLive, envelope.StatusOK),
			snap(snapshot.OriginStdin, envelope.StatusOK))
		assert.False(t, result.Envelope.Meta.Deterministic)
	})

	t.Run("partial input makes partial result", func(t *testing.T) {
		partial := snap(snapshot.OriginLive, envelope.StatusPartial, file("a", "1"))
		partial.Envelope.Errors = []envelope.Error{envelope.NewError(envelope.CodePermissionDenied, "denied").WithPath("secret")}

		result := newEngine(Options{}).Diff(partial, snap(snapshot.OriginLive, envelope.StatusOK, file("a", "1")))
		assert.Equal(t, envelope.StatusPartial, result.Envelope.Status)
		assert.True(t, result.Identical)
		require.Len(t, result.Envelope.Errors, 1)
		assert.Equal(t, "secret", result.Envelope.Errors[0].Path)
	})

	t.Run("execution time is measured on the clock", func(t *testing.T) {
		e := New(Options{}, clock.NewFakeClock(baseTime).WithStep(3*time.Millisecond), testTool)
		s := snap(snapshot.OriginFile, envelope.StatusOK, file("a", "1"))
		result := e.Diff(s, s)
		assert.Positive(t, result.Envelope.Meta.ExecutionTimeMS)
	})

	t.Run("missing envelope treated as ok", func(t *testing.T) {
		s := snap(snapshot.OriginFile, envelope.StatusOK)
		s.Envelope = nil
		result := newEngine(Options{}).Diff(s, s)
		assert.Equal(t, envelope.StatusOK, result.Envelope.Status)
	})
}

func TestDiff_JSONShape(t *testing.T) {
	result := newEngine(Options{}).Diff(
		snap(snapshot.OriginFile, envelope.StatusOK, file("a", "1")),
		snap(snapshot.OriginFile, envelope.StatusOK, file("b", "2")))

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded struct {
		Envelope    map[string]any   `json:"$envelope"`
		Identical   bool             `json:"identical"`
		Summary     map[string]int   `json:"summary"`
		Differences []map[string]any `json:"differences"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotEmpty(t, decoded.Envelope)
	assert.Equal(t, map[string]int{"added": 1, "removed": 1, "modified": 0, "unchanged": 0}, decoded.Summary)
	require.Len(t, decoded.Differences, 2)

	added := decoded.Differences[1]
	assert.Equal(t, "added", added["change_type"])
	assert.Contains(t, added, "source")
	assert.Nil(t, added["source"])
	assert.NotContains(t, added, "changes")
	assert.NotContains(t, added, "error")

	// Identical results serialize an empty list, not null.
	same := newEngine(Options{}).Diff(snap(snapshot.OriginFile, envelope.StatusOK), snap(snapshot.OriginFile, envelope.StatusOK))
	data, err = json.Marshal(same)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"differences":[]`)
}

// genSnapshot builds a snapshot over a fixed path universe. Each slot is 0
// for absent or selects one of three contents.
func genSnapshot(slots []uint8) *snapshot.Snapshot {
	var entries []snapshot.Entry
	for i, v := range slots {
		if v == 0 {
			continue
		}
		entries = append(entries, file(fmt.Sprintf("p%02d", i), fmt.Sprintf("c%d", v)))
	}
	return snap(snapshot.OriginFile, envelope.StatusOK, entries...)
}

func unionSize(a, b *snapshot.Snapshot) int {
	seen := map[string]struct{}{}
	for _, e := range a.Entries {
		seen[e.Path] = struct{}{}
	}
	for _, e := range b.Entries {
		seen[e.Path] = struct{}{}
	}
	return len(seen)
}

func TestDiff_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	slots := gen.SliceOfN(12, gen.UInt8Range(0, 3))
	engine := newEngine(Options{})

	properties.Property("diff is reflexive", prop.ForAll(
		func(a []uint8) bool {
			s := genSnapshot(a)
			r := engine.Diff(s, s)
			return r.Identical && r.Summary.Unchanged == len(s.Entries) && r.Summary.Total() == len(s.Entries)
		},
		slots,
	))

	properties.Property("summary covers the path union", prop.ForAll(
		func(a, b []uint8) bool {
			src, tgt := genSnapshot(a), genSnapshot(b)
			r := engine.Diff(src, tgt)
			return r.Summary.Total() == unionSize(src, tgt) &&
				r.Identical == (len(r.Differences) == 0) &&
				len(r.Differences) == r.Summary.Added+r.Summary.Removed+r.Summary.Modified
		},
		slots, slots,
	))

	properties.Property("diff is symmetric", prop.ForAll(
		func(a, b []uint8) bool {
			src, tgt := genSnapshot(a), genSnapshot(b)
			ab := engine.Diff(src, tgt).Summary
			ba := engine.Diff(tgt, src).Summary
			return ab.Added == ba.Removed && ab.Removed == ba.Added &&
				ab.Modified == ba.Modified && ab.Unchanged == ba.Unchanged
		},
		slots, slots,
	))

	properties.Property("differences are sorted", prop.ForAll(
		func(a, b []uint8) bool {
			r := engine.Diff(genSnapshot(a), genSnapshot(b))
			for i := 1; i < len(r.Differences); i++ {
				if r.Differences[i-1].Path >= r.Differences[i].Path {
					return false
				}
			}
			return true
		},
		slots, slots,
	))

	properties.Property("empty versus populated is all added", prop.ForAll(
		func(b []uint8) bool {
			tgt := genSnapshot(b)
			r := engine.Diff(genSnapshot(nil), tgt)
			return r.Summary == Summary{Added: len(tgt.Entries)}
		},
		slots,
	))

	properties.TestingRun(t)
}
