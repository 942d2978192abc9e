package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the sqlite database and schema",
	Long: `Create the fixer database with the fix_items and app_users tables.
Safe to run on an existing database; the schema uses IF NOT EXISTS.`,
	RunE: runInitDB,
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Database); err != nil {
		if err := checkCreatable(cfg.Database); err != nil {
			return fmt.Errorf("can't create %s: %w", cfg.Database, err)
		}
	}

	m, err := openManager(cfg, true)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.HealthCheck(cmd.Context()); err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓"), "database ready:", cfg.Database)
	return nil
}
