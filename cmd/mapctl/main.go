// Package main provides mapctl, the operator CLI for the MAP monitoring service.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GTDGit/gtd_map/internal/app"
	"github.com/GTDGit/gtd_map/internal/config"
)

var (
	migrate bool

	svc *app.App
)

var rootCmd = &cobra.Command{
	Use:   "mapctl",
	Short: "Operator CLI for MAP violation monitoring",
	Long: `mapctl runs the maintenance operations of the MAP monitoring service
against the same database and Redis as the API:

- run the matching pipeline
- backfill product embeddings
- repair competitor vendor names
- sync catalogs from their configured feeds

Results are printed as JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		app.SetupLogger(cfg.Env)

		migrationsURL := ""
		if migrate {
			migrationsURL = "file://migrations"
		}
		svc, err = app.New(cfg, migrationsURL)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svc != nil {
			svc.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&migrate, "migrate", false, "apply pending migrations before running")

	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newEmbeddingsCmd())
	rootCmd.AddCommand(newVendorsCmd())
	rootCmd.AddCommand(newCatalogCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
