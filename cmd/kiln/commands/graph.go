package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [targets...]",
		Short: "Print tasks in execution order with their dependencies",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Graph(cmd.Context(), args, filter(cmd), cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd)
	return cmd
}
