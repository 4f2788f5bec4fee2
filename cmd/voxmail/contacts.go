package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxmail/internal/app"
	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/internal/phonetic"
)

func newContactsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact directory",
	}
	cmd.AddCommand(
		newContactsListCmd(flags),
		newContactsAddCmd(flags),
		newContactsRemoveCmd(flags),
	)
	return cmd
}

func newContactsListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDirectory(cmd.Context(), flags, func(dir *directory.Directory) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, c := range dir.List() {
					_, _ = fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Address)
				}
				return tw.Flush()
			})
		},
	}
}

func newContactsAddCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <address>",
		Short: "Add a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), flags, func(dir *directory.Directory) error {
				c, err := dir.Add(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s <%s>\n", c.Name, c.Address)
				return nil
			})
		},
	}
}

func newContactsRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a contact",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDirectory(cmd.Context(), flags, func(dir *directory.Directory) error {
				if err := dir.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", directory.Normalize(args[0]))
				return nil
			})
		},
	}
}

// withDirectory opens only the configured contact storage; no provider is
// needed to manage contacts.
func withDirectory(ctx context.Context, flags *rootFlags, fn func(*directory.Directory) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	store, closeFn, err := app.OpenStorage(ctx, cfg.Directory)
	if err != nil {
		return err
	}
	defer closeFn()

	dir, err := directory.Load(ctx, store, directory.WithMatcher(phonetic.New()))
	if err != nil {
		// The next add or remove replaces the unreadable records.
		slog.Warn("contact storage could not be read, starting empty", "err", err)
	}
	return fn(dir)
}
