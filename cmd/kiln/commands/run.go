package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run tasks and everything they depend on",
		Long: "Run the named tasks and their dependencies, skipping tasks whose inputs are unchanged.\n" +
			"The target \"all\" selects every task.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			return c.app.Run(cmd.Context(), args, runOptions(cmd))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [targets...]",
		Short: "Run tasks again whenever their inputs change",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return nil
			}
			return c.app.Watch(cmd.Context(), args, runOptions(cmd))
		},
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("keep-going", "k", false, "Keep running tasks that do not depend on a failed task")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum number of tasks running at once (default: number of CPUs)")
	cmd.Flags().BoolP("force", "f", false, "Run every task even when it is up to date")
	cmd.Flags().StringP("output-mode", "o", "auto", "Output mode: auto, tui, or linear")
	cmd.Flags().Bool("ci", false, "Use linear output mode (shorthand for --output-mode=linear)")
	addFilterFlags(cmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("kind", "", "Only select tasks of this kind: build, test, or run")
	cmd.Flags().String("platform", "", "Only select tasks for this platform")
	cmd.Flags().String("module", "", "Only select tasks of this module")
}

func runOptions(cmd *cobra.Command) app.RunOptions {
	keepGoing, _ := cmd.Flags().GetBool("keep-going")
	jobs, _ := cmd.Flags().GetInt("jobs")
	force, _ := cmd.Flags().GetBool("force")
	outputMode, _ := cmd.Flags().GetString("output-mode")
	ci, _ := cmd.Flags().GetBool("ci")

	// If --ci is set, override output-mode to "linear"
	if ci {
		outputMode = "linear"
	}

	return app.RunOptions{
		Filter:     filter(cmd),
		KeepGoing:  keepGoing,
		Jobs:       jobs,
		Force:      force,
		OutputMode: outputMode,
	}
}

func filter(cmd *cobra.Command) app.Filter {
	kind, _ := cmd.Flags().GetString("kind")
	platform, _ := cmd.Flags().GetString("platform")
	module, _ := cmd.Flags().GetString("module")
	return app.Filter{Kind: kind, Platform: platform, Module: module}
}
