package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
)

var (
	cfgFile      string
	databasePath string
	jwtFile      string
	verbose      bool

	rootCmd = &cobra.Command{
		Use:   "fixer",
		Short: "Repair Box file ownership after a bulk migration",
		Long: `fixer re-copies files that a bulk migration restored into the wrong
account: for every imported record it grants a pooled app user access to
the restored file, copies it into a per-uploader/per-owner folder under
the service account, revokes the temporary access and records the outcome.

Typical workflow:
  fixer init-db
  fixer import report.csv
  fixer appuser create --count 5
  fixer init-directory
  fixer fix --root-folder <folder-id> --workers 4
  fixer put-result-csv --root-folder <folder-id>`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.box-fixer/fixer.yaml)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "database", "",
		"sqlite database file")
	rootCmd.PersistentFlags().StringVar(&jwtFile, "jwt-settings", "",
		"Box JWT app settings JSON file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(appUserCmd)
	rootCmd.AddCommand(initDirCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(putResultCSVCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(emergencyCmd)
	rootCmd.AddCommand(resetCmd)
}

// loadConfig resolves the effective configuration: file, FIXER_* env vars,
// then the global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if databasePath != "" {
		cfg.Database = databasePath
	}
	if jwtFile != "" {
		cfg.JWTSettingsFile = jwtFile
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Format == "pretty",
	}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logCfg.Output = f
	}
	return logger.New(logCfg), nil
}
