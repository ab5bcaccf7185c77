package cli

import (
	"github.com/spf13/cobra"

	"github.com/engram-memory/engram/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tool protocol over stdio",
		Long: `Serve the Engram tools (remember, recall, forget, capabilities, and
context_hydrate when enabled) over the Model Context Protocol on stdio, for
agent harnesses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return mcp.NewServer(a.svc, a.hyd).Serve()
		},
	}
}
