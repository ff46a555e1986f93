package store

import (
	"context"

	"github.com/jw6ventures/openday/internal/availability"
)

// IdentityRepository defines persistence operations for group members.
type IdentityRepository interface {
	// Create inserts a new identity. Returns ErrDuplicateLabel when another
	// identity already holds the label (compared case-insensitively).
	Create(ctx context.Context, identity Identity) (*Identity, error)
	GetByID(ctx context.Context, id string) (*Identity, error)
	// GetByLabel matches case-insensitively.
	GetByLabel(ctx context.Context, label string) (*Identity, error)
	// List returns all identities in creation order.
	List(ctx context.Context) ([]Identity, error)
	Count(ctx context.Context) (int, error)
	// SetSecretHash records a secret for an identity created before secrets
	// existed. It only writes when the stored hash is still empty, so a
	// concurrent adoption cannot be overwritten.
	SetSecretHash(ctx context.Context, id, hash string) error
}

// MarkRepository handles unavailable-day storage.
type MarkRepository interface {
	// SetUnavailable is idempotent: marking an already-marked day succeeds
	// without error.
	SetUnavailable(ctx context.Context, identityID string, day availability.Day) error
	// ClearUnavailable is idempotent: clearing an unmarked day succeeds
	// without error.
	ClearUnavailable(ctx context.Context, identityID string, day availability.Day) error
	// ListByIdentity returns the identity's marked days in ascending order.
	ListByIdentity(ctx context.Context, identityID string) ([]availability.Day, error)
	// Snapshot returns every identity's marked days keyed by identity ID.
	// Identities with no marks appear with an empty slice; the all
	// classification mode depends on that.
	Snapshot(ctx context.Context) (availability.Snapshot, error)
}

// AdminRepository carries privileged operations.
type AdminRepository interface {
	// RemoveIdentity deletes an identity's marks and then the identity
	// itself in one transaction. The marks go first; the schema forbids
	// deleting an identity that still has marks.
	RemoveIdentity(ctx context.Context, id string) error
}
