/**
 * Data models for the Box fixer state database
 *
 * Author: box-fixer team
 */

package state

import (
	"database/sql"
	"time"
)

// WorkingStatus tracks where a fix item is in its lifecycle. The progression
// is monotonic: BeforeProcess moves to exactly one terminal value per run.
// Every non-Complete terminal marks a step the run gave up on; only Complete
// is success.
type WorkingStatus int

const (
	StatusBeforeProcess               WorkingStatus = 0
	StatusCannotResolveUploadFolder   WorkingStatus = 1
	StatusCannotResolveOwnerSubfolder WorkingStatus = 2
	StatusCannotAddCollaboration      WorkingStatus = 3
	StatusCannotCopy                  WorkingStatus = 4
	StatusCannotRemoveCollaboration   WorkingStatus = 5
	StatusComplete                    WorkingStatus = 100
)

// String returns the status name.
func (s WorkingStatus) String() string {
	switch s {
	case StatusBeforeProcess:
		return "BEFORE_PROCESS"
	case StatusCannotResolveUploadFolder:
		return "CAN_NOT_RESOLVE_UPLOAD_FOLDER"
	case StatusCannotResolveOwnerSubfolder:
		return "CAN_NOT_RESOLVE_OWNER_SUBFOLDER"
	case StatusCannotAddCollaboration:
		return "CAN_NOT_ADD_COLLABORATION"
	case StatusCannotCopy:
		return "CAN_NOT_COPY"
	case StatusCannotRemoveCollaboration:
		return "CAN_NOT_REMOVE_COLLABORATION"
	case StatusComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// IsTerminalFailure reports whether the status marks a gave-up step.
func (s WorkingStatus) IsTerminalFailure() bool {
	return s != StatusBeforeProcess && s != StatusComplete
}

// AllStatuses lists every status in display order.
var AllStatuses = []WorkingStatus{
	StatusBeforeProcess,
	StatusCannotResolveUploadFolder,
	StatusCannotResolveOwnerSubfolder,
	StatusCannotAddCollaboration,
	StatusCannotCopy,
	StatusCannotRemoveCollaboration,
	StatusComplete,
}

// FixItem is one unit of work: a restored file that landed in the wrong
// account and must be copied into the uploader's per-owner folder.
type FixItem struct {
	ID                 int64          `db:"id" json:"id"`
	RestoredFileID     string         `db:"restored_file_id" json:"restored_file_id"`
	FileName           string         `db:"file_name" json:"file_name"`
	OriginalFileID     string         `db:"original_file_id" json:"original_file_id"`
	OriginalPathNames  string         `db:"original_path_names" json:"original_path_names"`
	OriginalFolderName string         `db:"original_folder_name" json:"original_folder_name"`
	OwnerUserID        string         `db:"owner_user_id" json:"owner_user_id"`
	OwnerLogin         string         `db:"owner_login" json:"owner_login"`
	UploaderUserID     string         `db:"uploader_user_id" json:"uploader_user_id"`
	UploaderEmail      string         `db:"uploader_email" json:"uploader_email"`
	WorkingStatus      WorkingStatus  `db:"working_status" json:"working_status"`
	CopyFileID         sql.NullString `db:"copy_file_id" json:"copy_file_id"`
	CopyFolderID       sql.NullString `db:"copy_folder_id" json:"copy_folder_id"`
	CopyFolderName     sql.NullString `db:"copy_folder_name" json:"copy_folder_name"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// IsComplete reports whether the item reached the success terminal.
func (f *FixItem) IsComplete() bool {
	return f.WorkingStatus == StatusComplete
}

// AppUser is a delegated identity the fixer impersonates. The pool is loaded
// once at startup and shared read-only across workers.
type AppUser struct {
	BoxUserID string    `db:"box_user_id" json:"box_user_id"`
	Login     string    `db:"login" json:"login"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StatusCount is one row of the per-status summary.
type StatusCount struct {
	WorkingStatus WorkingStatus `db:"working_status" json:"working_status"`
	Count         int64         `db:"count" json:"count"`
}
