/**
 * Fix item CRUD operations
 *
 * Features:
 * - Batch import with duplicate detection
 * - Pending-work query for run startup
 * - Status updates (plain and completion with copy-result fields)
 * - Per-status counting for the status command and admin API
 *
 * Mutations during a fix run go through the single persistence writer; the
 * Tx variants exist so the writer can apply one command per transaction.
 *
 * Author: box-fixer team
 */

package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// FixItemStore handles fix-item database operations.
type FixItemStore struct {
	db *DB
}

// NewFixItemStore creates a new fix item store.
func NewFixItemStore(db *DB) *FixItemStore {
	return &FixItemStore{db: db}
}

// Create inserts a new fix item.
func (s *FixItemStore) Create(ctx context.Context, item *FixItem) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.createTx(ctx, tx, item)
	})
}

// CreateBatch inserts multiple fix items in a single transaction.
func (s *FixItemStore) CreateBatch(ctx context.Context, items []*FixItem) error {
	if len(items) == 0 {
		return nil
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if err := s.createTx(ctx, tx, item); err != nil {
				return fmt.Errorf("failed to create item for file %s: %w", item.RestoredFileID, err)
			}
		}
		return nil
	})
}

func (s *FixItemStore) createTx(ctx context.Context, tx *sqlx.Tx, item *FixItem) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
    INSERT INTO fix_items (
      restored_file_id, file_name, original_file_id, original_path_names,
      original_folder_name, owner_user_id, owner_login, uploader_user_id,
      uploader_email, working_status, created_at, updated_at
    ) VALUES (
      :restored_file_id, :file_name, :original_file_id, :original_path_names,
      :original_folder_name, :owner_user_id, :owner_login, :uploader_user_id,
      :uploader_email, :working_status, :created_at, :updated_at
    )`

	result, err := tx.NamedExecContext(ctx, query, item)
	if err != nil {
		return err
	}

	item.ID, err = result.LastInsertId()
	return err
}

// Get retrieves a fix item by ID.
func (s *FixItemStore) Get(ctx context.Context, id int64) (*FixItem, error) {
	var item FixItem
	err := s.db.GetContext(ctx, &item, `SELECT * FROM fix_items WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("fix item not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get fix item: %w", err)
	}
	return &item, nil
}

// Pending returns every item whose status is not COMPLETE, oldest first.
// This is the startup work-queue query: unfinished and terminally-failed
// items from previous runs are both picked up again.
func (s *FixItemStore) Pending(ctx context.Context) ([]*FixItem, error) {
	var items []*FixItem
	query := `SELECT * FROM fix_items WHERE working_status != $1 ORDER BY id`

	if err := s.db.SelectContext(ctx, &items, query, StatusComplete); err != nil {
		return nil, fmt.Errorf("failed to load pending fix items: %w", err)
	}
	return items, nil
}

// ByStatus returns items with the given status, oldest first.
func (s *FixItemStore) ByStatus(ctx context.Context, status WorkingStatus) ([]*FixItem, error) {
	var items []*FixItem
	query := `SELECT * FROM fix_items WHERE working_status = $1 ORDER BY id`

	if err := s.db.SelectContext(ctx, &items, query, status); err != nil {
		return nil, fmt.Errorf("failed to load fix items by status: %w", err)
	}
	return items, nil
}

// ByUploaderEmail returns items for the given uploader, oldest first. The
// result-CSV delivery builds each uploader folder's report from this.
func (s *FixItemStore) ByUploaderEmail(ctx context.Context, email string) ([]*FixItem, error) {
	var items []*FixItem
	query := `SELECT * FROM fix_items WHERE uploader_email = $1 ORDER BY id`

	if err := s.db.SelectContext(ctx, &items, query, email); err != nil {
		return nil, fmt.Errorf("failed to load fix items by uploader: %w", err)
	}
	return items, nil
}

// All returns every item, oldest first.
func (s *FixItemStore) All(ctx context.Context) ([]*FixItem, error) {
	var items []*FixItem
	if err := s.db.SelectContext(ctx, &items, `SELECT * FROM fix_items ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load fix items: %w", err)
	}
	return items, nil
}

// Exists reports whether an item for the restored file + uploader pair is
// already recorded. Used by the CSV import to warn on duplicate rows.
func (s *FixItemStore) Exists(ctx context.Context, restoredFileID, uploaderUserID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM fix_items WHERE restored_file_id = $1 AND uploader_user_id = $2`

	if err := s.db.GetContext(ctx, &count, query, restoredFileID, uploaderUserID); err != nil {
		return false, fmt.Errorf("failed to check fix item existence: %w", err)
	}
	return count > 0, nil
}

// CountByStatus returns per-status item counts.
func (s *FixItemStore) CountByStatus(ctx context.Context) ([]*StatusCount, error) {
	var counts []*StatusCount
	query := `
    SELECT working_status, COUNT(*) AS count
    FROM fix_items
    GROUP BY working_status
    ORDER BY working_status`

	if err := s.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count fix items: %w", err)
	}
	return counts, nil
}

// Uploader is one distinct uploader identity referenced by fix items.
type Uploader struct {
	UserID string `db:"uploader_user_id" json:"uploader_user_id"`
	Email  string `db:"uploader_email" json:"uploader_email"`
}

// DistinctUploaders returns each (uploader id, email) pair once.
func (s *FixItemStore) DistinctUploaders(ctx context.Context) ([]*Uploader, error) {
	var rows []*Uploader
	query := `SELECT DISTINCT uploader_user_id, uploader_email FROM fix_items ORDER BY uploader_email`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load distinct uploaders: %w", err)
	}
	return rows, nil
}

// UpdateStatusTx sets the working status of one item inside the caller's
// transaction.
func (s *FixItemStore) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id int64, status WorkingStatus, at time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE fix_items SET working_status = $1, updated_at = $2 WHERE id = $3`,
		status, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update fix item status: %w", err)
	}
	return requireOneRow(result, id)
}

// MarkCompleteTx records a successful copy: status COMPLETE plus the
// destination file/folder identifiers, inside the caller's transaction.
func (s *FixItemStore) MarkCompleteTx(
	ctx context.Context,
	tx *sqlx.Tx,
	id int64,
	copyFileID, copyFolderID, copyFolderName string,
	at time.Time,
) error {

	result, err := tx.ExecContext(ctx, `
    UPDATE fix_items
    SET working_status = $1, copy_file_id = $2, copy_folder_id = $3,
        copy_folder_name = $4, updated_at = $5
    WHERE id = $6`,
		StatusComplete, copyFileID, copyFolderID, copyFolderName, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark fix item complete: %w", err)
	}
	return requireOneRow(result, id)
}

// ResetFailed flips every terminally-failed item back to BEFORE_PROCESS so
// the next run retries it. Returns the number of items reset.
func (s *FixItemStore) ResetFailed(ctx context.Context) (int64, error) {
	var affected int64
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
      UPDATE fix_items
      SET working_status = $1, updated_at = $2
      WHERE working_status NOT IN ($3, $4)`,
			StatusBeforeProcess, time.Now().UTC(), StatusBeforeProcess, StatusComplete)
		if err != nil {
			return fmt.Errorf("failed to reset failed fix items: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func requireOneRow(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("fix item not found: %d", id)
	}
	return nil
}
