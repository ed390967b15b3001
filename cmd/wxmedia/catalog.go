package main

import (
	"fmt"

	"github.com/gftdcojp/wxmedia/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the imported schema rows",
	}
	cmd.AddCommand(newCatalogImportCmd(g))
	cmd.AddCommand(newCatalogStatsCmd(g))
	return cmd
}

func newCatalogImportCmd(g *globals) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import emoji, avatar and image rows from a decrypted message database",
		RunE: func(c *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--db is required")
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Observability.Logging)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			cat, err := catalog.OpenBolt(cfg.Catalog.Path, cfg.Catalog.NoSync, logger.Named("catalog"))
			if err != nil {
				return err
			}
			defer cat.Close()

			if _, err := catalog.ImportSQLite(c.Context(), dsn, cat, logger.Named("catalog")); err != nil {
				return err
			}
			stats, err := cat.Stats()
			if err != nil {
				return err
			}
			return writeJSON(c.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "path or DSN of the decrypted message database")
	return cmd
}

func newCatalogStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts of the catalog",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Observability.Logging)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			cat, err := catalog.OpenBolt(cfg.Catalog.Path, cfg.Catalog.NoSync, logger.Named("catalog"))
			if err != nil {
				return err
			}
			defer cat.Close()

			stats, err := cat.Stats()
			if err != nil {
				return err
			}
			return writeJSON(c.OutOrStdout(), stats)
		},
	}
}
