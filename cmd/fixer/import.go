package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import the migration report CSV as fix items",
	Long: `Validate the report CSV header and insert one fix item per row with
status BEFORE_PROCESS. Rows whose (restored_file_id, upload_user_id) pair
is already in the database are flagged as duplicates but still inserted.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	csvPath := args[0]
	if _, err := os.Stat(csvPath); err != nil {
		return fmt.Errorf("csv file %s does not exist", csvPath)
	}

	m, err := openManager(cfg, false)
	if err != nil {
		return err
	}
	defer m.Close()

	imp := importer.New(m.FixItems(), log)
	imp.Progress = true

	result, err := imp.ImportFile(cmd.Context(), csvPath)
	if err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓"), "imported", result.Inserted, "items")
	if result.Duplicates > 0 {
		fmt.Println(color.YellowString("!"), result.Duplicates, "duplicate rows (see log)")
	}
	return nil
}
