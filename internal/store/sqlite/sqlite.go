// Package sqlite backs the store with an embedded database, for
// single-host deployments and the command line client.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"

	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/store"
)

// SQLite result codes for constraint failures. The driver reports either
// the primary code or the extended one depending on the statement.
const (
	codeConstraint           = 19
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
	codeConstraintForeignKey = 787
)

// Open opens (creating if necessary) the database at path and returns the
// assembled store. The caller owns the returned handle and must close it.
func Open(ctx context.Context, path string) (*store.Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection avoids
	// lock contention and keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	// WAL enables one writer + many readers; busy_timeout helps avoid
	// "database is locked" flakiness.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return &store.Store{
		Identities: &identityRepo{db: db},
		Marks:      &markRepo{db: db},
		Admin:      &adminRepo{db: db},
		Health:     db.PingContext,
	}, db, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL COLLATE NOCASE UNIQUE,
			color TEXT NOT NULL,
			secret_hash TEXT NOT NULL DEFAULT '',
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS marks (
			identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE RESTRICT,
			day TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (identity_id, day)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_marks_day ON marks(day);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// identityRepo implements store.IdentityRepository.
type identityRepo struct {
	db *sql.DB
}

func (r *identityRepo) Create(ctx context.Context, identity store.Identity) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_create")()

	created := identity
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO identities (id, label, color, secret_hash, created_at_unixms) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, created.ID, created.Label, created.Color, created.SecretHash, created.CreatedAt.UnixMilli())
	if err != nil {
		// The only constraint that can fire here is the NOCASE unique
		// label; the UUID primary key does not collide.
		if hasResultCode(err, codeConstraint, codeConstraintPrimaryKey, codeConstraintUnique) {
			return nil, store.ErrDuplicateLabel
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	return &created, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_get")()

	const q = `SELECT id, label, color, secret_hash, created_at_unixms FROM identities WHERE id = ?`
	return scanIdentity(r.db.QueryRowContext(ctx, q, id))
}

func (r *identityRepo) GetByLabel(ctx context.Context, label string) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_get_by_label")()

	// The label column carries COLLATE NOCASE, so = matches case-insensitively.
	const q = `SELECT id, label, color, secret_hash, created_at_unixms FROM identities WHERE label = ?`
	return scanIdentity(r.db.QueryRowContext(ctx, q, label))
}

func scanIdentity(row *sql.Row) (*store.Identity, error) {
	var identity store.Identity
	var createdMs int64
	err := row.Scan(&identity.ID, &identity.Label, &identity.Color, &identity.SecretHash, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	identity.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &identity, nil
}

func (r *identityRepo) List(ctx context.Context) ([]store.Identity, error) {
	defer observeDB(ctx, "db.identity_list")()

	const q = `SELECT id, label, color, secret_hash, created_at_unixms FROM identities ORDER BY created_at_unixms, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []store.Identity
	for rows.Next() {
		var identity store.Identity
		var createdMs int64
		if err := rows.Scan(&identity.ID, &identity.Label, &identity.Color, &identity.SecretHash, &createdMs); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identity.CreatedAt = time.UnixMilli(createdMs).UTC()
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

func (r *identityRepo) Count(ctx context.Context) (int, error) {
	defer observeDB(ctx, "db.identity_count")()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func (r *identityRepo) SetSecretHash(ctx context.Context, id, hash string) error {
	defer observeDB(ctx, "db.identity_set_secret")()

	const q = `UPDATE identities SET secret_hash = ? WHERE id = ? AND secret_hash = ''`
	res, err := r.db.ExecContext(ctx, q, hash, id)
	if err != nil {
		return fmt.Errorf("set secret hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set secret hash: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check identity %s: %w", id, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

// markRepo implements store.MarkRepository.
type markRepo struct {
	db *sql.DB
}

func (r *markRepo) SetUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	defer observeDB(ctx, "db.mark_set")()

	// OR IGNORE swallows the duplicate-key conflict but still reports
	// foreign key violations, so a mark for a removed identity errors.
	const q = `INSERT OR IGNORE INTO marks (identity_id, day, created_at_unixms) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, identityID, string(day), time.Now().UTC().UnixMilli()); err != nil {
		if hasResultCode(err, codeConstraint, codeConstraintForeignKey) {
			return store.ErrNotFound
		}
		return fmt.Errorf("set unavailable: %w", err)
	}
	return nil
}

func (r *markRepo) ClearUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	defer observeDB(ctx, "db.mark_clear")()

	const q = `DELETE FROM marks WHERE identity_id = ? AND day = ?`
	if _, err := r.db.ExecContext(ctx, q, identityID, string(day)); err != nil {
		return fmt.Errorf("clear unavailable: %w", err)
	}
	return nil
}

func (r *markRepo) ListByIdentity(ctx context.Context, identityID string) ([]availability.Day, error) {
	defer observeDB(ctx, "db.mark_list")()

	const q = `SELECT day FROM marks WHERE identity_id = ? ORDER BY day`
	rows, err := r.db.QueryContext(ctx, q, identityID)
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()

	var days []availability.Day
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		days = append(days, availability.Day(day))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	return days, nil
}

func (r *markRepo) Snapshot(ctx context.Context) (availability.Snapshot, error) {
	defer observeDB(ctx, "db.mark_snapshot")()

	// LEFT JOIN so identities without marks still appear; the all
	// classification mode needs them.
	const q = `SELECT i.id, m.day
FROM identities i
LEFT JOIN marks m ON m.identity_id = i.id
ORDER BY i.id, m.day`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("snapshot marks: %w", err)
	}
	defer rows.Close()

	snap := availability.Snapshot{}
	for rows.Next() {
		var id string
		var day sql.NullString
		if err := rows.Scan(&id, &day); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if _, ok := snap[id]; !ok {
			snap[id] = nil
		}
		if day.Valid {
			snap[id] = append(snap[id], availability.Day(day.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot marks: %w", err)
	}
	return snap, nil
}

// adminRepo implements store.AdminRepository.
type adminRepo struct {
	db *sql.DB
}

func (r *adminRepo) RemoveIdentity(ctx context.Context, id string) error {
	defer observeDB(ctx, "db.identity_remove")()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin identity remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Marks first. The RESTRICT foreign key makes the reverse order fail,
	// so a partial removal can never leave orphaned marks behind.
	if _, err := tx.ExecContext(ctx, `DELETE FROM marks WHERE identity_id = ?`, id); err != nil {
		return fmt.Errorf("delete marks for %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity remove: %w", err)
	}
	return nil
}

func hasResultCode(err error, codes ...int) bool {
	var se *sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, code := range codes {
		if se.Code() == code {
			return true
		}
	}
	return false
}
