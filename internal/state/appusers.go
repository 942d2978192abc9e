/**
 * App user pool operations
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

// AppUserStore handles delegated-identity pool operations.
type AppUserStore struct {
	db *DB
}

// NewAppUserStore creates a new app user store.
func NewAppUserStore(db *DB) *AppUserStore {
	return &AppUserStore{db: db}
}

// Create records a newly provisioned app user.
func (s *AppUserStore) Create(ctx context.Context, user *AppUser) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
      INSERT INTO app_users (box_user_id, login, name, created_at)
      VALUES (:box_user_id, :login, :name, :created_at)`, user)
		if err != nil {
			return fmt.Errorf("failed to create app user: %w", err)
		}
		return nil
	})
}

// Get retrieves an app user by Box user ID.
func (s *AppUserStore) Get(ctx context.Context, boxUserID string) (*AppUser, error) {
	var user AppUser
	err := s.db.GetContext(ctx, &user, `SELECT * FROM app_users WHERE box_user_id = $1`, boxUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("app user not found: %s", boxUserID)
		}
		return nil, fmt.Errorf("failed to get app user: %w", err)
	}
	return &user, nil
}

// List returns the whole pool, oldest first.
func (s *AppUserStore) List(ctx context.Context) ([]*AppUser, error) {
	var users []*AppUser
	if err := s.db.SelectContext(ctx, &users, `SELECT * FROM app_users ORDER BY created_at, box_user_id`); err != nil {
		return nil, fmt.Errorf("failed to list app users: %w", err)
	}
	return users, nil
}

// Delete removes an app user record. Returns an error when the user does
// not exist so the CLI can distinguish "not found" from success.
func (s *AppUserStore) Delete(ctx context.Context, boxUserID string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM app_users WHERE box_user_id = $1`, boxUserID)
		if err != nil {
			return fmt.Errorf("failed to delete app user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("app user not found: %s", boxUserID)
		}
		return nil
	})
}
