package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

// maxLine bounds a single stream line.
const maxLine = 4 * 1024 * 1024

// Decode reads a stream back into a snapshot sorted by path. Error lines
// become envelope errors and the status comes from the tail. A stream
// without a tail is rejected as truncated.
func Decode(r io.Reader, origin snapshot.Origin) (*snapshot.Snapshot, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		hd      *head
		tail    *envelope.Envelope
		entries []snapshot.Entry
		errs    []envelope.Error
		lineNo  int
	)

	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if tail != nil {
			return nil, fmt.Errorf("line %d: data after stream tail", lineNo)
		}

		var probe struct {
			Envelope *envelope.Envelope `json:"$envelope"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case hd == nil:
			if probe.Envelope == nil || probe.Envelope.Stream != envelope.StreamHead {
				return nil, fmt.Errorf("line %d: expected stream head", lineNo)
			}
			var h head
			if err := json.Unmarshal(line, &h); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			hd = &h
		case probe.Envelope == nil:
			var e snapshot.Entry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			entries = append(entries, e)
		case probe.Envelope.Stream == envelope.StreamTail:
			tail = probe.Envelope
		case probe.Envelope.Stream == envelope.StreamHead:
			return nil, fmt.Errorf("line %d: duplicate stream head", lineNo)
		default:
			errs = append(errs, probe.Envelope.Errors...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	if hd == nil {
		return nil, fmt.Errorf("empty stream")
	}
	if tail == nil {
		return nil, fmt.Errorf("stream is truncated: missing tail")
	}
	if tail.Summary != nil && tail.Summary.Total != len(entries) {
		return nil, fmt.Errorf("stream tail reports %d entries, found %d", tail.Summary.Total, len(entries))
	}

	snapshot.SortEntries(entries)

	env := envelope.New(tail.Status, hd.Envelope.Meta)
	env.Errors = errs

	snap := snapshot.New(env, hd.Root, hd.ChecksumAlgorithm, entries)
	snap.Version = hd.Version

	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, snap); err != nil {
		return nil, err
	}
	return snapshot.Decode(&buf, origin)
}
