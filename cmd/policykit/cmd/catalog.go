package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/policykit/internal/catalog"
	"github.com/solatis/policykit/internal/core/db"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage locally stored reference data",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Replace the local catalogs with a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		snap, err := catalog.LoadSeed(args[0])
		if err != nil {
			return err
		}

		database, queries, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := requireMigrated(ctx, database); err != nil {
			return err
		}

		if err := db.NewCatalogStore(queries).ImportSeed(ctx, snap); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"imported %d operators, %d resource types, %d conditions, %d roles, %d departments\n",
			len(snap.Operators), len(snap.ResourceTypes), len(snap.Conditions), len(snap.Roles), len(snap.Departments))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
}
