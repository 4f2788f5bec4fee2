package main

import (
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/mcpserver"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the contact directory as MCP tools over stdio",
		Long:  "mcp exposes list_contacts, lookup_contact, add_contact and remove_contact to an MCP client. Logs go to stderr; stdout carries the protocol.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd.Context(), flags, func(dir *directory.Directory) error {
				return mcpserver.ServeStdio(cmd.Context(), dir, version)
			})
		},
	}
}
