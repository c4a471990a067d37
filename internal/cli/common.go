package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/clock"
	"github.com/danieljhkim/treesnap/internal/config"
	"github.com/danieljhkim/treesnap/internal/engine"
	"github.com/danieljhkim/treesnap/internal/envelope"
	"github.com/danieljhkim/treesnap/internal/fsops"
	"github.com/danieljhkim/treesnap/internal/persist"
)

// ExitError carries a non-zero process exit code. The command has already
// written its output, so there is nothing further to print.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return envelope.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return envelope.ExitError
}

// exitWith turns an envelope exit code into a command result.
func exitWith(code int) error {
	if code == envelope.ExitOK {
		return nil
	}
	return &ExitError{Code: code}
}

// newEngine creates a new engine with real implementations of all dependencies.
func newEngine(cmd *cobra.Command) *engine.Engine {
	return engine.New(fsops.NewRealFS(), &clock.RealClock{}, cmd.InOrStdin(), logger, rootCmd.Version)
}

// newLogger builds the stderr logger for a level name.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "", "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// writeJSON writes a value as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonRenderer renders v as indented JSON.
func jsonRenderer(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		return writeJSON(w, v)
	}
}

// emit sends rendered output to the file named by output, or to the
// command's stdout when output is empty. Files are replaced atomically.
func emit(cmd *cobra.Command, output string, render func(io.Writer) error) error {
	if output == "" {
		return render(cmd.OutOrStdout())
	}
	if err := persist.Save(fsops.NewRealFS(), output, render); err != nil {
		return err
	}
	logger.Info("output written", "path", output)
	return nil
}

// scanFlags are the scan options shared by snapshot, diff and watch.
type scanFlags struct {
	exclude        []string
	include        []string
	checksum       string
	threads        int
	followSymlinks bool
	maxDepth       int
	normalizePaths bool
	ignoreFile     string
	noIgnoreFile   bool
	timeout        time.Duration
}

func (f *scanFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.exclude, "exclude", nil, "Exclude paths matching a glob (repeatable, gitignore syntax)")
	flags.StringArrayVar(&f.include, "include", nil, "Only record files matching a glob (repeatable)")
	flags.StringVar(&f.checksum, "checksum", "", "Checksum algorithm: xxh3_64, sha256 or blake3 (default xxh3_64)")
	flags.IntVar(&f.threads, "threads", 0, "Scanner worker count (default: number of CPUs)")
	flags.BoolVar(&f.followSymlinks, "follow-symlinks", false, "Follow symbolic links")
	flags.IntVar(&f.maxDepth, "max-depth", 0, "Maximum recursion depth (0 is unlimited)")
	flags.BoolVar(&f.normalizePaths, "normalize-paths", false, "Use '/' as the path separator in entries")
	flags.StringVar(&f.ignoreFile, "ignore-file", "", "Per-directory ignore file name (default "+config.Default().Snapshot.IgnoreFile+")")
	flags.BoolVar(&f.noIgnoreFile, "no-ignore-file", false, "Do not read ignore files")
}

func (f *scanFlags) registerTimeout(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Abort after this long, e.g. 30s (0 is no limit)")
}

// options merges the config defaults with the flags the user set.
func (f *scanFlags) options(cmd *cobra.Command, c *config.Config) engine.ScanOptions {
	opts := scanDefaults(c)
	flags := cmd.Flags()

	if flags.Changed("checksum") {
		opts.Checksum = f.checksum
	}
	if flags.Changed("threads") {
		opts.Threads = f.threads
	}
	if flags.Changed("follow-symlinks") {
		opts.FollowSymlinks = f.followSymlinks
	}
	if flags.Changed("max-depth") {
		opts.MaxDepth = f.maxDepth
	}
	if flags.Changed("normalize-paths") {
		opts.NormalizePaths = f.normalizePaths
	}
	if flags.Changed("ignore-file") {
		opts.IgnoreFile = f.ignoreFile
	}
	if f.noIgnoreFile {
		opts.IgnoreFile = ""
	}
	for _, p := range f.exclude {
		opts.Patterns = append(opts.Patterns, excludePattern(p))
	}
	opts.Patterns = append(opts.Patterns, f.include...)
	return opts
}

func (f *scanFlags) timeoutFor(cmd *cobra.Command, c *config.Config) time.Duration {
	if cmd.Flags().Changed("timeout") {
		return f.timeout
	}
	return c.Snapshot.Timeout
}

// scanDefaults returns the scan options configured in c.
func scanDefaults(c *config.Config) engine.ScanOptions {
	sc := c.Snapshot
	opts := engine.ScanOptions{
		Checksum:       sc.Checksum,
		Threads:        sc.Threads,
		FollowSymlinks: sc.FollowSymlinks,
		MaxDepth:       sc.MaxDepth,
		NormalizePaths: sc.NormalizePaths,
		IgnoreFile:     c.IgnoreFileName(),
	}
	for _, p := range sc.Exclude {
		opts.Patterns = append(opts.Patterns, excludePattern(p))
	}
	return opts
}

func excludePattern(p string) string {
	return "!" + strings.TrimPrefix(p, "!")
}

// diffFlags are the comparison options shared by diff and watch.
type diffFlags struct {
	ignoreTime    bool
	ignoreMode    bool
	structureOnly bool
}

func (f *diffFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.ignoreTime, "ignore-time", false, "Ignore modification time differences")
	flags.BoolVar(&f.ignoreMode, "ignore-mode", false, "Ignore permission differences")
	flags.BoolVar(&f.structureOnly, "structure-only", false, "Compare only paths and entry types")
}

// resolve returns ignore-time, ignore-mode and structure-only, with flags
// taking precedence over the config.
func (f *diffFlags) resolve(cmd *cobra.Command, c *config.Config) (bool, bool, bool) {
	pick := func(name string, flag, configured bool) bool {
		if cmd.Flags().Changed(name) {
			return flag
		}
		return configured
	}
	return pick("ignore-time", f.ignoreTime, c.Diff.IgnoreTime),
		pick("ignore-mode", f.ignoreMode, c.Diff.IgnoreMode),
		pick("structure-only", f.structureOnly, c.Diff.StructureOnly)
}
