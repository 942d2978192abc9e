/**
 * State manager for the Box fixer
 *
 * Bundles the database connection and the per-table stores behind one
 * handle that the CLI, the admin web server and the fix engine share.
 *
 * Author: box-fixer team
 */

package state

import (
	"context"
)

// Manager owns the database connection and the table stores.
type Manager struct {
	db       *DB
	fixItems *FixItemStore
	appUsers *AppUserStore
}

// NewManager opens the database and wires the stores.
func NewManager(cfg DBConfig) (*Manager, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		fixItems: NewFixItemStore(db),
		appUsers: NewAppUserStore(db),
	}, nil
}

// FixItems returns the fix item store.
func (m *Manager) FixItems() *FixItemStore {
	return m.fixItems
}

// AppUsers returns the app user store.
func (m *Manager) AppUsers() *AppUserStore {
	return m.appUsers
}

// DB exposes the underlying connection for transaction-scoped writes.
func (m *Manager) DB() *DB {
	return m.db
}

// HealthCheck verifies the store is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.HealthCheck(ctx)
}

// Close closes the database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
