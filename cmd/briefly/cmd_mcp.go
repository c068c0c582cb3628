package main

import (
	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/cmd/briefly/internal"
	"github.com/DreamCats/briefly/internal/mcpserver"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve briefly_ask, briefly_extract and briefly_status over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(false)
			if err != nil {
				return err
			}
			defer eng.Close()

			a.log.Info("mcp server starting", "collection", a.cfg.Store.Collection)
			return mcpserver.New(eng, internal.Version, a.log).Run(cmd.Context())
		},
	}
}
