package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/engine"
)

var (
	diffOutput string
	diffHuman  bool
	diffInfo   bool
	diffScan   scanFlags
	diffOpts   diffFlags
)

var diffCmd = &cobra.Command{
	Use:   "diff <source> <target>",
	Short: "Compare two snapshots or directories",
	Long: `Compare two filesystem states and report added, removed and modified paths.

Each side can be a live directory (scanned with the scan flags), a saved snapshot
(.json), a saved stream (.jsonl), or "-" to read a snapshot from standard input.`,
	Annotations: map[string]string{
		exitStatusKey: `  0  the comparison is complete, whether or not anything changed
  1  an input could not be loaded
  2  an input snapshot was partial`,
	},
	Example: `  treesnap diff before.json after.json
  treesnap snapshot . | treesnap diff before.json -
  treesnap diff --ignore-time --human ./build-a ./build-b`,
	Args: func(cmd *cobra.Command, args []string) error {
		if diffInfo {
			return cobra.MaximumNArgs(2)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine(cmd)

		if diffInfo {
			env, err := eng.Info(engine.OpDiff)
			if err != nil {
				return err
			}
			return emit(cmd, diffOutput, jsonRenderer(env))
		}

		ignoreTime, ignoreMode, structureOnly := diffOpts.resolve(cmd, cfg)
		out := eng.Compare(cmd.Context(), &engine.CompareRequest{
			Source:        args[0],
			Target:        args[1],
			Scan:          diffScan.options(cmd, cfg),
			IgnoreTime:    ignoreTime,
			IgnoreMode:    ignoreMode,
			StructureOnly: structureOnly,
			Timeout:       diffScan.timeoutFor(cmd, cfg),
		})

		render := jsonRenderer(out)
		if diffHuman {
			render = func(w io.Writer) error {
				if result, ok := out.Value(); ok {
					return renderDiff(w, result)
				}
				return renderFailure(w, out.Failure())
			}
		}
		if err := emit(cmd, diffOutput, render); err != nil {
			return err
		}
		return exitWith(out.ExitCode())
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "Write the result to a file instead of stdout")
	diffCmd.Flags().BoolVar(&diffHuman, "human", false, "Print one line per changed path instead of JSON")
	diffCmd.Flags().BoolVar(&diffInfo, "info", false, "Print only the envelope with declared semantics, without comparing")
	diffOpts.register(diffCmd)
	diffScan.register(diffCmd)
	diffScan.registerTimeout(diffCmd)
}
