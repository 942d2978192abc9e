/**
 * Result-CSV delivery
 *
 * The epilogue of a fix run: for every per-uploader folder under the root,
 * build a CSV listing the copied files (with their web URLs), upload it
 * into the folder, and add the uploader as a viewer collaborator so they
 * can pick the files up. A name conflict on the upload means a previous
 * delivery already left a list there; its contents are replaced in place,
 * keeping the file id stable for anyone who bookmarked it.
 *
 * Author: box-fixer team
 */

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// CSVFileName is what uploaders see in their folder.
const CSVFileName = "ファイルリスト.csv"

// csvHeader is the column order of the delivered list.
var csvHeader = []string{
	"file_id",
	"original_file_id",
	"original_folder_name",
	"original_folder_path",
	"folder_name",
	"file_name",
	"file_url",
}

// Remote is the slice of the API the deliverer needs.
type Remote interface {
	ListFolderItems(ctx context.Context, folderID string) ([]api.ItemInfo, error)
	UploadFile(ctx context.Context, folderID, name string, content []byte) (string, error)
	UpdateFileContents(ctx context.Context, fileID string, content []byte) error
	AddFolderCollaborationByLogin(ctx context.Context, folderID, login, role string) (string, error)
}

// Options control which delivery steps run.
type Options struct {
	// FileURLBase prefixes copy file ids to form the web URL column.
	FileURLBase string
	// SkipCSV skips the upload step (collaboration only).
	SkipCSV bool
	// SkipCollaboration skips the sharing step (upload only).
	SkipCollaboration bool
}

// Deliverer writes result CSVs into the destination tree and shares each
// uploader folder with its uploader.
type Deliverer struct {
	items  *state.FixItemStore
	remote Remote
	policy errors.RetryPolicy
	log    *logger.Logger
	opts   Options
}

// New builds a deliverer.
func New(items *state.FixItemStore, remote Remote, policy errors.RetryPolicy, log *logger.Logger, opts Options) *Deliverer {
	return &Deliverer{items: items, remote: remote, policy: policy, log: log, opts: opts}
}

// Result summarizes one delivery run.
type Result struct {
	Folders       int // uploader folders seen under the root
	Uploaded      int // CSVs uploaded or updated
	Collaborated  int // uploaders granted viewer access
	FailedFolders int // folders where a step exhausted its retries
}

// Run delivers into every uploader folder directly under rootFolderID.
// Folder names are uploader emails (the layout init-directory and the fix
// run produce). A failing folder is logged and skipped; the rest of the
// run continues.
func (d *Deliverer) Run(ctx context.Context, rootFolderID string) (*Result, error) {
	children, err := d.remote.ListFolderItems(ctx, rootFolderID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list root folder")
	}

	result := &Result{}
	for _, child := range children {
		if !child.IsFolder() {
			continue
		}
		result.Folders++
		uploaderEmail := child.Name

		if !d.opts.SkipCSV {
			if err := d.putCSV(ctx, child.ID, uploaderEmail); err != nil {
				d.log.Error(err, "result csv delivery failed",
					"uploader", uploaderEmail, "folder_id", child.ID)
				result.FailedFolders++
				continue
			}
			result.Uploaded++
		}

		if !d.opts.SkipCollaboration {
			if err := d.share(ctx, child.ID, uploaderEmail); err != nil {
				d.log.Error(err, "uploader collaboration failed",
					"uploader", uploaderEmail, "folder_id", child.ID)
				result.FailedFolders++
				continue
			}
			result.Collaborated++
		}
	}

	d.log.Info("result delivery finished",
		"folders", result.Folders,
		"uploaded", result.Uploaded,
		"collaborated", result.Collaborated,
		"failed", result.FailedFolders)
	return result, nil
}

// putCSV builds the uploader's list and uploads it, replacing the contents
// of an existing list on a name conflict.
func (d *Deliverer) putCSV(ctx context.Context, folderID, uploaderEmail string) error {
	content, err := d.buildCSV(ctx, uploaderEmail)
	if err != nil {
		return err
	}

	return errors.RetryLinear(ctx, d.policy, func(int) error {
		_, err := d.remote.UploadFile(ctx, folderID, CSVFileName, content)
		if err == nil {
			return nil
		}
		if existing := api.ConflictID(err); existing != "" {
			return d.remote.UpdateFileContents(ctx, existing, content)
		}
		return err
	}, func(attempt int, err error) {
		d.log.Warn("result csv upload failed, retrying",
			"uploader", uploaderEmail, "attempt", attempt, "error", err.Error())
	})
}

// share grants the uploader viewer access to their folder. An uploader who
// already collaborates on it counts as success.
func (d *Deliverer) share(ctx context.Context, folderID, uploaderEmail string) error {
	return errors.RetryLinear(ctx, d.policy, func(int) error {
		_, err := d.remote.AddFolderCollaborationByLogin(ctx, folderID, uploaderEmail, api.RoleViewer)
		if err != nil && api.IsAlreadyCollaborator(err) {
			return nil
		}
		return err
	}, func(attempt int, err error) {
		d.log.Warn("uploader collaboration failed, retrying",
			"uploader", uploaderEmail, "attempt", attempt, "error", err.Error())
	})
}

// buildCSV renders the uploader's item list. Items that never completed
// appear with empty copy fields, which is itself useful to the uploader as
// a gap list.
func (d *Deliverer) buildCSV(ctx context.Context, uploaderEmail string) ([]byte, error) {
	items, err := d.items.ByUploaderEmail(ctx, uploaderEmail)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "failed to write csv header")
	}
	for _, item := range items {
		row := []string{
			item.CopyFileID.String,
			item.OriginalFileID,
			item.OriginalFolderName,
			item.OriginalPathNames,
			item.CopyFolderName.String,
			item.FileName,
			d.fileURL(item.CopyFileID.String),
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, "failed to write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to render csv")
	}
	return buf.Bytes(), nil
}

func (d *Deliverer) fileURL(copyFileID string) string {
	if copyFileID == "" {
		return ""
	}
	return strings.TrimSuffix(d.opts.FileURLBase, "/") + "/" + copyFileID
}
