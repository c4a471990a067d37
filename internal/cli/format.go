package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/snapshot"
)

var (
	// fatih/color disables these when stdout is not a TTY
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintSection prints a section header
func PrintSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
	fmt.Fprintln(w)
}

// PrintSuccess prints a success message with a checkmark
func PrintSuccess(w io.Writer, msg string) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", msg)
}

// PrintWarning prints a warning message with a warning symbol
func PrintWarning(w io.Writer, msg string) {
	_, _ = warningColor.Fprintf(w, "⚠ %s\n", msg)
}

// PrintError prints an error message
func PrintError(w io.Writer, msg string) {
	_, _ = errorColor.Fprintf(w, "✗ %s\n", msg)
}

// PrintLabelValue prints a label-value pair with proper formatting
func PrintLabelValue(w io.Writer, label, value string) {
	_, _ = labelColor.Fprintf(w, "  %s: ", label)
	_, _ = valueColor.Fprintln(w, value)
}

// PrintLabelValueWithColor prints a label-value pair with a custom value color
func PrintLabelValueWithColor(w io.Writer, label, value string, valueClr *color.Color) {
	_, _ = labelColor.Fprintf(w, "  %s: ", label)
	_, _ = valueClr.Fprintln(w, value)
}

// PrintTable prints a simple column table
func PrintTable(w io.Writer, headers []string, rows [][]string) {
	if len(headers) == 0 || len(rows) == 0 {
		return
	}

	colWidths := make([]int, len(headers))
	for i, header := range headers {
		colWidths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(colWidths) && len(cell) > colWidths[i] {
				colWidths[i] = len(cell)
			}
		}
	}

	// Header
	fmt.Fprint(w, "  ")
	for i, header := range headers {
		if i > 0 {
			fmt.Fprint(w, "  ")
		}
		_, _ = headerColor.Fprintf(w, "%-*s", colWidths[i], header)
	}
	fmt.Fprintln(w)

	// Separator
	fmt.Fprint(w, "  ")
	for i, width := range colWidths {
		if i > 0 {
			fmt.Fprint(w, "  ")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		fmt.Fprint(w, "  ")
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			if i > 0 {
				fmt.Fprint(w, "  ")
			}
			_, _ = valueColor.Fprintf(w, "%-*s", colWidths[i], cell)
		}
		fmt.Fprintln(w)
	}
}

// PrintEmptyState prints a message when there's no data to show
func PrintEmptyState(w io.Writer, msg string) {
	_, _ = dimColor.Fprintf(w, "  %s\n", msg)
}

// PrintCount prints a count with proper formatting
func PrintCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

func statusColor(s envelope.Status) *color.Color {
	switch s {
	case envelope.StatusOK:
		return successColor
	case envelope.StatusPartial:
		return warningColor
	default:
		return errorColor
	}
}

// renderEnvelopeErrors lists the coded errors of env.
func renderEnvelopeErrors(w io.Writer, env *envelope.Envelope) {
	for _, e := range env.Errors {
		msg := e.Code + ": " + e.Message
		if e.Path != "" {
			msg = e.Code + ": " + e.Path + ": " + e.Message
		}
		PrintError(w, msg)
	}
}

// renderFailure prints an error envelope for humans.
func renderFailure(w io.Writer, env *envelope.Envelope) error {
	PrintLabelValueWithColor(w, "status", string(env.Status), statusColor(env.Status))
	renderEnvelopeErrors(w, env)
	return nil
}

// renderSnapshot prints a snapshot as a table of entries.
func renderSnapshot(w io.Writer, s *snapshot.Snapshot) error {
	PrintSection(w, "Snapshot "+s.Root)
	status := s.Status()
	PrintLabelValueWithColor(w, "status", string(status), statusColor(status))
	PrintLabelValue(w, "entries", strconv.Itoa(s.Count))
	PrintLabelValue(w, "checksum", s.ChecksumAlgorithm.String())
	fmt.Fprintln(w)

	if s.Count == 0 {
		PrintEmptyState(w, "No entries")
	} else {
		rows := make([][]string, 0, len(s.Entries))
		for _, e := range s.Entries {
			size := ""
			if e.Size != nil {
				size = strconv.FormatUint(*e.Size, 10)
			}
			path := e.Path
			if e.Target != "" {
				path += " -> " + e.Target
			}
			rows = append(rows, []string{string(e.Type), size, e.Mode, e.MTime.Format("2006-01-02 15:04:05"), path})
		}
		PrintTable(w, []string{"TYPE", "SIZE", "MODE", "MODIFIED", "PATH"}, rows)
	}

	renderPartial(w, s.Envelope, "some entries could not be read")
	return nil
}

// renderDiff prints a diff result with one line per changed path.
func renderDiff(w io.Writer, r *diff.Result) error {
	if r.Identical {
		PrintSuccess(w, "No differences")
		renderDiffErrors(w, r)
		return nil
	}

	for _, d := range r.Differences {
		printDifference(w, d)
	}

	fmt.Fprintln(w)
	_, _ = dimColor.Fprint(w, "  ")
	fmt.Fprint(w, PrintCount(r.Summary.Total()-r.Summary.Unchanged, "path", "paths")+" changed")
	if r.Summary.Added > 0 {
		_, _ = successColor.Fprintf(w, ", %d added", r.Summary.Added)
	}
	if r.Summary.Removed > 0 {
		_, _ = errorColor.Fprintf(w, ", %d removed", r.Summary.Removed)
	}
	if r.Summary.Modified > 0 {
		_, _ = warningColor.Fprintf(w, ", %d modified", r.Summary.Modified)
	}
	_, _ = dimColor.Fprintf(w, ", %d unchanged\n", r.Summary.Unchanged)

	renderDiffErrors(w, r)
	return nil
}

func renderDiffErrors(w io.Writer, r *diff.Result) {
	renderPartial(w, r.Envelope, "an input snapshot was incomplete")
}

// renderPartial warns about a partial result and lists its errors.
func renderPartial(w io.Writer, env *envelope.Envelope, reason string) {
	if env == nil || len(env.Errors) == 0 {
		return
	}
	fmt.Fprintln(w)
	PrintWarning(w, fmt.Sprintf("partial result, %s (%s)", reason, PrintCount(len(env.Errors), "error", "errors")))
	renderEnvelopeErrors(w, env)
}

func printDifference(w io.Writer, d diff.Difference) {
	statusClr := dimColor
	switch d.ChangeType {
	case diff.Added:
		statusClr = successColor
	case diff.Removed:
		statusClr = errorColor
	case diff.Modified:
		statusClr = warningColor
	}

	_, _ = statusClr.Fprintf(w, "  %s ", changeChar(d.ChangeType))
	fmt.Fprint(w, d.Path)
	if len(d.Changes) > 0 {
		attrs := make([]string, len(d.Changes))
		for i, a := range d.Changes {
			attrs[i] = string(a)
		}
		_, _ = dimColor.Fprintf(w, "  (%s)", strings.Join(attrs, ", "))
	}
	fmt.Fprintln(w)
}

// changeChar returns the single-character status indicator.
func changeChar(t diff.ChangeType) string {
	switch t {
	case diff.Added:
		return "A"
	case diff.Removed:
		return "D"
	case diff.Modified:
		return "M"
	case diff.PermissionDenied:
		return "!"
	default:
		return "?"
	}
}
