package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the incremental cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logs, _ := cmd.Flags().GetBool("logs")
			all, _ := cmd.Flags().GetBool("all")

			return c.app.Clean(cmd.Context(), app.CleanOptions{
				State: true,
				Logs:  logs,
				All:   all,
			})
		},
	}

	cmd.Flags().BoolP("logs", "l", false, "Also remove the debug log")
	cmd.Flags().BoolP("all", "a", false, "Remove the whole .kiln directory")

	return cmd
}
