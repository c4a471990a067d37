package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded by the root PersistentPreRunE
	cfg    = config.Default()
	logger = slog.New(slog.DiscardHandler)

	// Colors for help output sections
	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

// rootCmd is the root command for treesnap.
var rootCmd = &cobra.Command{
	Use:     "treesnap",
	Version: "dev",
	Short:   "Filesystem snapshot and diff tool",
	Long: `treesnap records point-in-time inventories of a directory tree and compares them.

Snapshots list every file, directory and symlink with size, permissions, modification
time and a content checksum. Every JSON result carries a $envelope describing its status,
semantics and any errors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		level := loaded.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		l, err := newLogger(cmd.ErrOrStderr(), level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = l
		logger.Debug("config loaded", "path", cfg.Path, "log_level", level)
		return nil
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// exitStatusKey is the command annotation holding the exit status legend
// printed at the end of its help.
const exitStatusKey = "treesnap/exit-status"

// customHelpFunc renders help with colored section titles, commands listed
// under their group, and the exit status legend of commands that have one.
func customHelpFunc(cmd *cobra.Command, args []string) {
	var help strings.Builder
	section := func(title string) {
		help.WriteString(sectionTitleColor.Sprint(title))
		help.WriteString("\n")
	}

	if desc := cmd.Long; desc != "" || cmd.Short != "" {
		if desc == "" {
			desc = cmd.Short
		}
		help.WriteString(desc)
		help.WriteString("\n\n")
	}

	section("Usage:")
	fmt.Fprintf(&help, "  %s\n\n", cmd.UseLine())

	if cmd.Example != "" {
		section("Examples:")
		help.WriteString(cmd.Example)
		help.WriteString("\n\n")
	}

	listed := make(map[string]bool)
	for _, group := range cmd.Groups() {
		help.WriteString(groupTitleColor.Sprint(group.Title))
		help.WriteString("\n")
		for _, c := range cmd.Commands() {
			if c.GroupID == group.ID && !c.Hidden {
				fmt.Fprintf(&help, "  %-11s %s\n", c.Name(), c.Short)
				listed[c.Name()] = true
			}
		}
		help.WriteString("\n")
	}

	var rest []*cobra.Command
	for _, c := range cmd.Commands() {
		if !listed[c.Name()] && !c.Hidden {
			rest = append(rest, c)
		}
	}
	if len(rest) > 0 {
		section("Additional Commands:")
		for _, c := range rest {
			fmt.Fprintf(&help, "  %-11s %s\n", c.Name(), c.Short)
		}
		help.WriteString("\n")
	}

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailablePersistentFlags() {
		section("Flags:")
		help.WriteString(cmd.LocalFlags().FlagUsages())
		help.WriteString(cmd.InheritedFlags().FlagUsages())
		help.WriteString("\n")
	}

	if legend, ok := cmd.Annotations[exitStatusKey]; ok {
		section("Exit Status:")
		help.WriteString(legend)
		help.WriteString("\n\n")
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(&help, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	fmt.Fprint(cmd.OutOrStdout(), help.String())
}

// skipConfig is set on commands that must work with a broken config file.
func skipConfig(cmd *cobra.Command, args []string) error {
	return nil
}

func init() {
	rootCmd.SetHelpFunc(customHelpFunc)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $"+config.EnvConfig+" or ~/.config/treesnap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level on stderr: debug, info, warn or error")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "snapshots",
		Title: "Snapshots:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "integration",
		Title: "Integration:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cli-tooling",
		Title: "CLI & Tooling:",
	})

	// CLI & Tooling commands
	versionCmd := &cobra.Command{
		Use:               "version",
		Short:             "Print the treesnap CLI version",
		Args:              cobra.NoArgs,
		GroupID:           "cli-tooling",
		PersistentPreRunE: skipConfig,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	helpCmd := &cobra.Command{
		Use:               "help [command]",
		Short:             "Help about any command",
		GroupID:           "cli-tooling",
		PersistentPreRunE: skipConfig,
		Run: func(cmd *cobra.Command, args []string) {
			target, _, err := rootCmd.Find(args)
			if err != nil || target == nil {
				target = rootCmd
			}
			_ = target.Help()
		},
	}
	rootCmd.SetHelpCommand(helpCmd)

	completionCmd := &cobra.Command{
		Use:               "completion",
		Short:             "Generate the autocompletion script for the specified shell",
		GroupID:           "cli-tooling",
		PersistentPreRunE: skipConfig,
		Long: `Generate the autocompletion script for treesnap for the specified shell.
See each sub-command's help for details on how to use the generated script.`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "bash",
		Short:                 "Generate the autocompletion script for bash",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "zsh",
		Short:                 "Generate the autocompletion script for zsh",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "fish",
		Short:                 "Generate the autocompletion script for fish",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:                   "powershell",
		Short:                 "Generate the autocompletion script for powershell",
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(completionCmd)

	// Snapshots commands
	snapshotCmd.GroupID = "snapshots"
	diffCmd.GroupID = "snapshots"
	watchCmd.GroupID = "snapshots"
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(watchCmd)

	// Integration commands
	serveCmd.GroupID = "integration"
	rootCmd.AddCommand(serveCmd)
}

// Execute executes the root command. SIGINT and SIGTERM cancel the
// command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
