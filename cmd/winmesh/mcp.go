package main

import (
	"github.com/spf13/cobra"
)

func newMCPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Model Context Protocol server",
	}

	opts := &runOptions{mcp: true}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Track a window and serve its topology as MCP tools on stdio",
		Long: `Run a window instance and expose it to an MCP client over stdio with the
get_topology and get_frame tools. Designed to be launched by the MCP client,
for example:

  winmesh mcp serve --title "My Window"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInstance(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	addRunFlags(serve, opts)
	cmd.AddCommand(serve)
	return cmd
}
