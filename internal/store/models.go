package store

import (
	"time"

	"github.com/jw6ventures/openday/internal/availability"
)

// Identity is a member of the coordination group.
type Identity struct {
	ID         string
	Label      string
	Color      string
	SecretHash string // bcrypt hash; empty for identities created before secrets existed
	CreatedAt  time.Time
}

// Mark records one day an identity cannot attend.
type Mark struct {
	IdentityID string
	Day        availability.Day
	CreatedAt  time.Time
}
