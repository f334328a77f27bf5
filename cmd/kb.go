package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/kb-engine/internal/catalog"
	"github.com/JakeFAU/kb-engine/internal/kb"
)

// newKBCmd creates the 'kb' command tree for knowledge base management.
func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage knowledge bases",
	}
	cmd.AddCommand(newKBCreateCmd())
	cmd.AddCommand(newKBListCmd())
	cmd.AddCommand(newKBGetCmd())
	cmd.AddCommand(newKBDeleteCmd())
	return cmd
}

func newKBCreateCmd() *cobra.Command {
	var description, kind, dataSource string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			base, err := appInstance.Catalog.Create(cmd.Context(), catalog.CreateRequest{
				Name:        args[0],
				Description: description,
				SourceKind:  kb.SourceKind(kind),
				DataSource:  dataSource,
			})
			if err != nil {
				return err
			}
			return printJSON(base)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	cmd.Flags().StringVar(&kind, "kind", string(kb.SourceKindNotes), "source kind: docs, notes, or import")
	cmd.Flags().StringVar(&dataSource, "source", "", "origin of the content (defaults to the name)")
	return cmd
}

func newKBListCmd() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge bases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			bases, err := appInstance.Catalog.List(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			return printJSON(bases)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "glob filter on knowledge base names")
	return cmd
}

func newKBGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			base, err := appInstance.Catalog.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(base)
		},
	}
}

func newKBDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a knowledge base and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Catalog.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
