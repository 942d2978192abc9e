package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/report"
)

var putResultCSVCmd = &cobra.Command{
	Use:   "put-result-csv",
	Short: "Deliver result CSVs and share the uploader folders",
	Long: `Run after 'fixer fix' to hand the results back: for every uploader folder
under the root, upload a CSV listing the copied files (name, original
location, web URL) and add the uploader as a viewer collaborator on the
folder. A list left by an earlier delivery is updated in place.`,
	RunE: runPutResultCSV,
}

var (
	putCSVRootFolder string
	putCSVFileURL    string
	skipCollab       bool
	skipPutCSV       bool
)

func init() {
	putResultCSVCmd.Flags().StringVar(&putCSVRootFolder, "root-folder", "",
		"service-account root folder id (from 'fixer init-directory')")
	putResultCSVCmd.Flags().StringVar(&putCSVFileURL, "box-file-url",
		"https://app.box.com/file/", "base web URL for file links in the CSV")
	putResultCSVCmd.Flags().BoolVar(&skipCollab, "skip-collaboration", false,
		"do not add uploaders as viewer collaborators")
	putResultCSVCmd.Flags().BoolVar(&skipPutCSV, "skip-put-csv", false,
		"do not upload the result CSVs")
}

func runPutResultCSV(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if putCSVRootFolder != "" {
		cfg.RootFolderID = putCSVRootFolder
	}
	if cfg.RootFolderID == "" {
		return fmt.Errorf("root folder id is required (--root-folder or root_folder_id)")
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

	deliverer := report.New(m.FixItems(), client,
		errors.RetryPolicy{
			MaxAttempts: cfg.Fix.RetryAttempts,
			BaseDelay:   cfg.Fix.RetryBaseDelay,
		},
		log,
		report.Options{
			FileURLBase:       putCSVFileURL,
			SkipCSV:           skipPutCSV,
			SkipCollaboration: skipCollab,
		})

	result, err := deliverer.Run(cmd.Context(), cfg.RootFolderID)
	if err != nil {
		return err
	}

	fmt.Printf("Folders: %d  CSVs delivered: %d  Uploaders shared: %d\n",
		result.Folders, result.Uploaded, result.Collaborated)
	if result.FailedFolders > 0 {
		fmt.Println(color.RedString("✗"), result.FailedFolders, "folders failed; see the log")
		return fmt.Errorf("%d folders were not delivered", result.FailedFolders)
	}
	fmt.Println(color.GreenString("✓"), "delivery complete")
	return nil
}
