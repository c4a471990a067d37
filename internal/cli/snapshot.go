package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/engine"
)

var (
	snapshotOutput string
	snapshotHuman  bool
	snapshotJSONL  bool
	snapshotInfo   bool
	snapshotScan   scanFlags
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <path>",
	Short: "Record the state of a directory tree",
	Long: `Scan a directory and print every file, directory and symlink below it with size,
permissions, modification time, checksum and link target.

With --jsonl the snapshot is streamed as one JSON object per line: a head line with
metadata, one line per entry or error, and a tail line with the summary.`,
	Annotations: map[string]string{
		exitStatusKey: `  0  the scan is complete; a stream that has started always exits 0
  1  the scan failed and an error envelope was printed
  2  some entries could not be read and the snapshot is partial`,
	},
	Example: `  treesnap snapshot . > before.json
  treesnap snapshot --exclude node_modules --checksum sha256 ./src
  treesnap snapshot --jsonl -o big.jsonl /data`,
	Args: func(cmd *cobra.Command, args []string) error {
		if snapshotInfo {
			return cobra.MaximumNArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine(cmd)

		if snapshotInfo {
			env, err := eng.Info(engine.OpSnapshot)
			if err != nil {
				return err
			}
			return emit(cmd, snapshotOutput, jsonRenderer(env))
		}

		req := &engine.SnapshotRequest{
			Root:    args[0],
			Scan:    snapshotScan.options(cmd, cfg),
			Timeout: snapshotScan.timeoutFor(cmd, cfg),
		}

		if snapshotJSONL {
			return runSnapshotStream(cmd, eng, req)
		}

		out := eng.Snapshot(cmd.Context(), req)
		render := jsonRenderer(out)
		if snapshotHuman {
			render = func(w io.Writer) error {
				if snap, ok := out.Value(); ok {
					return renderSnapshot(w, snap)
				}
				return renderFailure(w, out.Failure())
			}
		}
		if err := emit(cmd, snapshotOutput, render); err != nil {
			return err
		}
		return exitWith(out.ExitCode())
	},
}

// runSnapshotStream writes the snapshot as JSON lines. A scan that cannot
// start produces a single error envelope instead of a stream.
func runSnapshotStream(cmd *cobra.Command, eng *engine.Engine, req *engine.SnapshotRequest) error {
	var result *engine.StreamResult
	err := emit(cmd, snapshotOutput, func(w io.Writer) error {
		res, err := eng.SnapshotStream(cmd.Context(), req, w)
		if err != nil {
			return err
		}
		result = res
		if res.Failure != nil {
			return writeJSON(w, res.Failure)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return exitWith(result.ExitCode())
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "Write the snapshot to a file instead of stdout")
	snapshotCmd.Flags().BoolVar(&snapshotHuman, "human", false, "Print a table instead of JSON")
	snapshotCmd.Flags().BoolVar(&snapshotJSONL, "jsonl", false, "Stream the snapshot as JSON lines")
	snapshotCmd.Flags().BoolVar(&snapshotInfo, "info", false, "Print only the envelope with declared semantics, without scanning")
	snapshotScan.register(snapshotCmd)
	snapshotScan.registerTimeout(snapshotCmd)
	snapshotCmd.MarkFlagsMutuallyExclusive("human", "jsonl")
}
