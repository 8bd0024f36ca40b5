// Package store provides the SQLite database shared by netwatch plugins.
// Each plugin owns its tables and evolves them through numbered migrations
// tracked per plugin in the _migrations table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/HerbHall/netwatch/pkg/plugin"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Compile-time interface guard.
var _ plugin.Store = (*SQLiteStore)(nil)

// pragmas run on every new database. modernc.org/sqlite takes them as
// statements rather than DSN parameters. foreign_keys is load-bearing:
// deleting a device cascades to its monitors, results and alerts.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// ErrMigrationOrder is returned when a plugin's migrations are not in
// strictly ascending version order.
var ErrMigrationOrder = errors.New("migrations out of order")

// SQLiteStore implements plugin.Store on a single SQLite connection.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes Migrate
}

// New opens or creates the database at path. ":memory:" gives a private
// in-memory database, which stays alive because only one connection is used.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %s: %w", path, p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureMigrationsTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx runs fn in a transaction, committing when fn returns nil.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AppliedVersion returns the highest migration version applied for
// pluginName, or 0 when none has run.
func (s *SQLiteStore) AppliedVersion(ctx context.Context, pluginName string) (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM _migrations WHERE plugin_name = ?`, pluginName,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("applied version %s: %w", pluginName, err)
	}
	return int(v.Int64), nil
}

// Migrate applies every migration newer than the plugin's applied version,
// each in its own transaction.
func (s *SQLiteStore) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version <= migrations[i-1].Version {
			return fmt.Errorf("migrate %s: version %d after %d: %w",
				pluginName, migrations[i].Version, migrations[i-1].Version, ErrMigrationOrder)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.AppliedVersion(ctx, pluginName)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)`,
				pluginName, m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			plugin_name TEXT     NOT NULL,
			version     INTEGER  NOT NULL,
			description TEXT     NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (plugin_name, version)
		)`)
	if err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	return nil
}
