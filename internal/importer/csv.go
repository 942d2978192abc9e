/**
 * CSV import
 *
 * Reads the migration report CSV and inserts one fix item per row with
 * status BEFORE_PROCESS, all inside one transaction. The header must carry
 * every required column; rows whose (restored_file_id, upload_user_id)
 * pair already exists in the store are flagged as duplicates but still
 * inserted, matching how the report was produced (the same file can
 * legitimately appear under two uploaders).
 *
 * Author: box-fixer team
 */

package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// requiredColumns is the minimal header set. The report carries more
// columns; extras are ignored.
var requiredColumns = []string{
	"restored_file_id",
	"login",
	"file_name",
	"user_id",
	"upload_user_id",
	"uploader_email",
	"file_id",
	"path_names",
	"folder_name",
}

// Importer loads migration report rows into the store.
type Importer struct {
	items *state.FixItemStore
	log   *logger.Logger

	// Progress, when true, renders a progress bar on stderr.
	Progress bool
}

// New builds an importer over the fix item store.
func New(items *state.FixItemStore, log *logger.Logger) *Importer {
	return &Importer{items: items, log: log}
}

// Result summarizes one import.
type Result struct {
	Inserted   int
	Duplicates int
}

// ImportFile imports every row of the CSV at path.
func (imp *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open csv %s", path)
	}
	defer f.Close()
	return imp.Import(ctx, f)
}

// Import reads all rows, validates the header, then inserts the whole batch
// in one transaction.
func (imp *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read csv row")
		}
		rows = append(rows, row)
	}

	result := &Result{}
	items := make([]*state.FixItem, 0, len(rows))
	bar := imp.newBar(len(rows))
	for i, row := range rows {
		item, err := rowToItem(cols, row)
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", i+2)
		}

		dup, err := imp.items.Exists(ctx, item.RestoredFileID, item.UploaderUserID)
		if err != nil {
			return nil, err
		}
		if dup {
			result.Duplicates++
			imp.log.Warn("row already exists in store",
				"line", i+2,
				"restored_file_id", item.RestoredFileID,
				"upload_user_id", item.UploaderUserID)
		}

		items = append(items, item)
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if err := imp.items.CreateBatch(ctx, items); err != nil {
		return nil, errors.Wrap(err, "failed to insert fix items")
	}
	result.Inserted = len(items)

	imp.log.Info("csv import finished",
		"inserted", result.Inserted, "duplicates", result.Duplicates)
	return result, nil
}

func (imp *Importer) newBar(total int) *progressbar.ProgressBar {
	if !imp.Progress || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// columnIndex maps required column names to their position in the header.
func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("csv header is missing column %q", name)
		}
	}
	return cols, nil
}

func rowToItem(cols map[string]int, row []string) (*state.FixItem, error) {
	get := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	item := &state.FixItem{
		RestoredFileID:     get("restored_file_id"),
		FileName:           get("file_name"),
		OriginalFileID:     get("file_id"),
		OriginalPathNames:  get("path_names"),
		OriginalFolderName: get("folder_name"),
		OwnerUserID:        get("user_id"),
		OwnerLogin:         get("login"),
		UploaderUserID:     get("upload_user_id"),
		UploaderEmail:      get("uploader_email"),
		WorkingStatus:      state.StatusBeforeProcess,
	}
	if item.RestoredFileID == "" || item.UploaderUserID == "" {
		return nil, errors.NewSimple("restored_file_id and upload_user_id must not be empty")
	}
	return item, nil
}
