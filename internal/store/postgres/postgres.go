package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jw6ventures/openday/internal/availability"
	"github.com/jw6ventures/openday/internal/store"
)

// PgxPool represents the subset of pgxpool.Pool used by this backend.
//
// This allows tests to supply a lightweight mock implementation without
// changing the public interface of the package.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// New wires concrete repository implementations with a shared connection pool.
func New(pool PgxPool) *store.Store {
	return &store.Store{
		Identities: &identityRepo{pool: pool},
		Marks:      &markRepo{pool: pool},
		Admin:      &adminRepo{pool: pool},
		Health:     pool.Ping,
	}
}

// Connect opens a pool for the given URL, applies pending migrations and
// returns the assembled store.
func Connect(ctx context.Context, databaseURL string) (*store.Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := ApplyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return New(pool), pool, nil
}

// identityRepo implements store.IdentityRepository.
type identityRepo struct {
	pool PgxPool
}

func (r *identityRepo) Create(ctx context.Context, identity store.Identity) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_create")()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin identity create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize same-label creates so two first-time logins cannot both
	// insert. The unique index on lower(label) remains as a backstop.
	const lockQ = `SELECT pg_advisory_xact_lock(hashtextextended(lower($1), 0))`
	if _, err := tx.Exec(ctx, lockQ, identity.Label); err != nil {
		return nil, fmt.Errorf("lock label: %w", err)
	}

	const existsQ = `SELECT EXISTS (SELECT 1 FROM identities WHERE lower(label) = lower($1))`
	var taken bool
	if err := tx.QueryRow(ctx, existsQ, identity.Label).Scan(&taken); err != nil {
		return nil, fmt.Errorf("check label: %w", err)
	}
	if taken {
		return nil, store.ErrDuplicateLabel
	}

	const insertQ = `INSERT INTO identities (id, label, color, secret_hash)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	created := identity
	if err := tx.QueryRow(ctx, insertQ, identity.ID, identity.Label, identity.Color, identity.SecretHash).Scan(&created.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateLabel
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit identity create: %w", err)
	}
	return &created, nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_get")()

	const q = `SELECT id, label, color, secret_hash, created_at FROM identities WHERE id = $1`
	var identity store.Identity
	err := r.pool.QueryRow(ctx, q, id).Scan(&identity.ID, &identity.Label, &identity.Color, &identity.SecretHash, &identity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %s: %w", id, err)
	}
	return &identity, nil
}

func (r *identityRepo) GetByLabel(ctx context.Context, label string) (*store.Identity, error) {
	defer observeDB(ctx, "db.identity_get_by_label")()

	const q = `SELECT id, label, color, secret_hash, created_at FROM identities WHERE lower(label) = lower($1)`
	var identity store.Identity
	err := r.pool.QueryRow(ctx, q, label).Scan(&identity.ID, &identity.Label, &identity.Color, &identity.SecretHash, &identity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity by label: %w", err)
	}
	return &identity, nil
}

func (r *identityRepo) List(ctx context.Context) ([]store.Identity, error) {
	defer observeDB(ctx, "db.identity_list")()

	const q = `SELECT id, label, color, secret_hash, created_at FROM identities ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []store.Identity
	for rows.Next() {
		var identity store.Identity
		if err := rows.Scan(&identity.ID, &identity.Label, &identity.Color, &identity.SecretHash, &identity.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

func (r *identityRepo) Count(ctx context.Context) (int, error) {
	defer observeDB(ctx, "db.identity_count")()

	const q = `SELECT COUNT(*) FROM identities`
	var count int
	if err := r.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func (r *identityRepo) SetSecretHash(ctx context.Context, id, hash string) error {
	defer observeDB(ctx, "db.identity_set_secret")()

	// The empty-hash guard keeps a concurrent adoption from being
	// overwritten; the first writer wins.
	const q = `UPDATE identities SET secret_hash = $2 WHERE id = $1 AND secret_hash = ''`
	tag, err := r.pool.Exec(ctx, q, id, hash)
	if err != nil {
		return fmt.Errorf("set secret hash: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	const existsQ = `SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, existsQ, id).Scan(&exists); err != nil {
		return fmt.Errorf("check identity %s: %w", id, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

// markRepo implements store.MarkRepository.
type markRepo struct {
	pool PgxPool
}

func (r *markRepo) SetUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	defer observeDB(ctx, "db.mark_set")()

	const q = `INSERT INTO marks (identity_id, day) VALUES ($1, $2)
ON CONFLICT (identity_id, day) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, identityID, string(day)); err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("set unavailable: %w", err)
	}
	return nil
}

func (r *markRepo) ClearUnavailable(ctx context.Context, identityID string, day availability.Day) error {
	defer observeDB(ctx, "db.mark_clear")()

	const q = `DELETE FROM marks WHERE identity_id = $1 AND day = $2`
	if _, err := r.pool.Exec(ctx, q, identityID, string(day)); err != nil {
		return fmt.Errorf("clear unavailable: %w", err)
	}
	return nil
}

func (r *markRepo) ListByIdentity(ctx context.Context, identityID string) ([]availability.Day, error) {
	defer observeDB(ctx, "db.mark_list")()

	const q = `SELECT day FROM marks WHERE identity_id = $1 ORDER BY day`
	rows, err := r.pool.Query(ctx, q, identityID)
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
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("snapshot marks: %w", err)
	}
	defer rows.Close()

	snap := availability.Snapshot{}
	for rows.Next() {
		var id string
		var day *string
		if err := rows.Scan(&id, &day); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if _, ok := snap[id]; !ok {
			snap[id] = nil
		}
		if day != nil {
			snap[id] = append(snap[id], availability.Day(*day))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot marks: %w", err)
	}
	return snap, nil
}

// adminRepo implements store.AdminRepository.
type adminRepo struct {
	pool PgxPool
}

func (r *adminRepo) RemoveIdentity(ctx context.Context, id string) error {
	defer observeDB(ctx, "db.identity_remove")()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin identity remove: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Marks first. The RESTRICT foreign key makes the reverse order fail,
	// so a partial removal can never leave orphaned marks behind.
	if _, err := tx.Exec(ctx, `DELETE FROM marks WHERE identity_id = $1`, id); err != nil {
		return fmt.Errorf("delete marks for %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit identity remove: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
