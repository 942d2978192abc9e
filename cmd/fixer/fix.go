package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/fix"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Run the ownership-repair worker pool",
	Long: `Load every fix item whose status is not COMPLETE and process them with
a pool of workers: grant a pooled app user access to the restored file,
copy it into the per-uploader/per-owner folder, revoke the access and
record the outcome.

SIGINT/SIGTERM triggers a graceful shutdown: in-flight items finish their
full protocol, queued items are left for the next run.`,
	RunE: runFix,
}

var (
	fixRootFolder string
	fixWorkers    int
)

func init() {
	fixCmd.Flags().StringVar(&fixRootFolder, "root-folder", "",
		"service-account root folder id (from 'fixer init-directory')")
	fixCmd.Flags().IntVar(&fixWorkers, "workers", 0,
		"number of parallel workers (default from config)")
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fixRootFolder != "" {
		cfg.RootFolderID = fixRootFolder
	}
	if cfg.RootFolderID == "" {
		return fmt.Errorf("root folder id is required (--root-folder or root_folder_id)")
	}
	if fixWorkers > 0 {
		cfg.Fix.Workers = fixWorkers
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := fix.NewEngine(cfg.Fix, cfg.RootFolderID, m, client, log)
	return engine.Run(ctx)
}
