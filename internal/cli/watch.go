package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/diff"
	"github.com/danieljhkim/treesnap/internal/engine"
)

var (
	watchHuman    bool
	watchDebounce time.Duration
	watchScan     scanFlags
	watchOpts     diffFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Report changes to a directory as they happen",
	Long: `Take a snapshot of a directory, then watch it for changes. After each burst of
filesystem activity the directory is scanned again and the difference from the
previous scan is printed: one JSON object per line, or a change list with --human.

Stop with Ctrl-C.`,
	Annotations: map[string]string{
		exitStatusKey: `  0  the watch was interrupted
  1  the watch could not start or a rescan could not be reported`,
	},
	Example: `  treesnap watch --ignore-time --exclude .git .
  treesnap watch --debounce 1s --human ./config`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce := cfg.Watch.Debounce
		if cmd.Flags().Changed("debounce") {
			if watchDebounce <= 0 {
				return fmt.Errorf("--debounce must be positive, got %s", watchDebounce)
			}
			debounce = watchDebounce
		}

		ignoreTime, ignoreMode, structureOnly := watchOpts.resolve(cmd, cfg)
		req := &engine.WatchRequest{
			Root:          args[0],
			Scan:          watchScan.options(cmd, cfg),
			IgnoreTime:    ignoreTime,
			IgnoreMode:    ignoreMode,
			StructureOnly: structureOnly,
			Debounce:      debounce,
		}

		out := cmd.OutOrStdout()
		emitResult := func(r *diff.Result) error {
			if watchHuman {
				fmt.Fprintln(out)
				return renderDiff(out, r)
			}
			line, err := json.Marshal(r)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", line)
			return err
		}

		if failure := newEngine(cmd).Watch(cmd.Context(), req, emitResult); failure != nil {
			if watchHuman {
				_ = renderFailure(out, failure)
			} else if err := writeJSON(out, failure); err != nil {
				return err
			}
			return exitWith(failure.ExitCode())
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchHuman, "human", false, "Print change lists instead of JSON lines")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before rescanning, e.g. 500ms (default 250ms)")
	watchOpts.register(watchCmd)
	watchScan.register(watchCmd)
}
