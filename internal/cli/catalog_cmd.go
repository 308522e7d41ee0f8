package cli

import (
	"fmt"

	"github.com/example/langfocus/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and convert technique catalogs",
	}

	cmd.AddCommand(
		newCatalogCheckCmd(env),
		newCatalogExportCmd(env),
	)
	return cmd
}

// catalogPath returns the --file flag or the configured catalog path
func catalogPath(env *Env, file string) (string, error) {
	if file != "" {
		return file, nil
	}
	cfg, err := env.LoadConfig()
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return cfg.CatalogPath, nil
}

func newCatalogCheckCmd(env *Env) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load a catalog (.json or .xlsx) and report problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogPath(env, file)
			if err != nil {
				return err
			}
			c, err := catalog.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d techniques, %d statements\n", path, len(c.GetTechniques()), len(c.GetStatements(nil)))
			for _, t := range c.GetTechniques() {
				id := t.ID
				fmt.Fprintf(out, "  %3d %-30s %d statements\n", t.ID, t.Name, len(c.GetStatements(&id)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Catalog file (defaults to CATALOG_PATH)")
	return cmd
}

func newCatalogExportCmd(env *Env) *cobra.Command {
	var file, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a catalog as an Excel workbook in the import layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogPath(env, file)
			if err != nil {
				return err
			}
			c, err := catalog.Load(path)
			if err != nil {
				return err
			}
			if err := catalog.WriteExcel(c, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Catalog file (defaults to CATALOG_PATH)")
	cmd.Flags().StringVar(&out, "out", "", "Destination .xlsx file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
