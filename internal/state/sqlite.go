package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/feedsync/internal/common"
	"github.com/dmitrijs2005/feedsync/internal/dbx"
	"github.com/dmitrijs2005/feedsync/internal/filex"
	"github.com/dmitrijs2005/feedsync/internal/state/migrations"
)

// Open opens (creating if needed) the sqlite state database at path.
func Open(path string) (*sql.DB, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	// modernc sqlite serializes writes; one connection avoids busy errors
	db.SetMaxOpenConns(1)
	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or fully replaces the row for s.Address.
func (r *SQLiteRepository) Upsert(ctx context.Context, s *DocumentState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (address, local, edition, time, fingerprint, follow_time, mute_notifications, rescue_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			local = excluded.local,
			edition = excluded.edition,
			time = excluded.time,
			fingerprint = excluded.fingerprint,
			follow_time = excluded.follow_time,
			mute_notifications = excluded.mute_notifications,
			rescue_error = excluded.rescue_error
	`, s.Address, boolToInt(s.Local), s.Edition, s.Time, s.Fingerprint, s.FollowTime, boolToInt(s.MuteNotifications), s.RescueError)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", s.Address, err)
	}
	return nil
}

// Get loads the row for an address.
func (r *SQLiteRepository) Get(ctx context.Context, address string) (*DocumentState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT address, local, edition, time, fingerprint, follow_time, mute_notifications, rescue_error
		FROM documents WHERE address = ?
	`, address)
	s, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", address, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", address, err)
	}
	return s, nil
}

// List returns every stored document state.
func (r *SQLiteRepository) List(ctx context.Context) ([]*DocumentState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address, local, edition, time, fingerprint, follow_time, mute_notifications, rescue_error
		FROM documents ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*DocumentState
	for rows.Next() {
		s, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}
	return out, nil
}

// Delete removes the row for an address.
func (r *SQLiteRepository) Delete(ctx context.Context, address string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", address, err)
	}
	return nil
}

// SetBaseline records the post-publish baseline.
func (r *SQLiteRepository) SetBaseline(ctx context.Context, address, fingerprint string, edition, time int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents SET fingerprint = ?, edition = ?, time = ? WHERE address = ?
	`, fingerprint, edition, time, address)
	if err != nil {
		return fmt.Errorf("failed to set baseline for %s: %w", address, err)
	}
	return nil
}

// SetVersion records the post-merge edition and logical time.
func (r *SQLiteRepository) SetVersion(ctx context.Context, address string, edition, time int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents SET edition = ?, time = ? WHERE address = ?
	`, edition, time, address)
	if err != nil {
		return fmt.Errorf("failed to set version for %s: %w", address, err)
	}
	return nil
}

// SetRescueError stores the sticky rescue status.
func (r *SQLiteRepository) SetRescueError(ctx context.Context, address, message string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE documents SET rescue_error = ? WHERE address = ?`, message, address)
	if err != nil {
		return fmt.Errorf("failed to set rescue error for %s: %w", address, err)
	}
	return nil
}

func scanDocument(scan func(dest ...any) error) (*DocumentState, error) {
	var s DocumentState
	var local, mute int
	if err := scan(&s.Address, &local, &s.Edition, &s.Time, &s.Fingerprint, &s.FollowTime, &mute, &s.RescueError); err != nil {
		return nil, err
	}
	s.Local = local != 0
	s.MuteNotifications = mute != 0
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
