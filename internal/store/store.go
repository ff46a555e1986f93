package store

import "context"

// HealthFunc reports whether the backing database is reachable.
type HealthFunc func(ctx context.Context) error

// Store aggregates repositories backed by a single database. Backend
// packages (postgres, sqlite) assemble it with their own implementations.
type Store struct {
	Identities IdentityRepository
	Marks      MarkRepository
	Admin      AdminRepository

	Health HealthFunc
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	if s.Health == nil {
		return nil
	}
	return s.Health(ctx)
}
