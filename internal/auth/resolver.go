// Package auth resolves presented name+secret pairs to principals: either
// the configured privileged viewer or a stored group identity, created on
// first use.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jw6ventures/openday/internal/config"
	"github.com/jw6ventures/openday/internal/metrics"
	"github.com/jw6ventures/openday/internal/store"
)

// ErrMissingField indicates an empty name or secret.
var ErrMissingField = errors.New("name and secret are required")

// ErrInvalidCredential indicates a name/secret pair that does not match.
var ErrInvalidCredential = errors.New("invalid credentials")

// Principal identifies an authenticated caller.
type Principal struct {
	// Viewer marks the privileged principal. It is configured, not stored;
	// Identity is nil when set.
	Viewer   bool
	Identity *store.Identity

	// FromSession is set by the middleware when the principal came from a
	// session cookie rather than explicit credentials. CSRF checks apply
	// only then.
	FromSession bool
}

// ID returns the participant ID, or "" for the viewer.
func (p *Principal) ID() string {
	if p == nil || p.Identity == nil {
		return ""
	}
	return p.Identity.ID
}

// Resolver authenticates name+secret pairs against the identity store,
// creating identities on first use.
type Resolver struct {
	store        *store.Store
	viewerName   string
	viewerSecret string
	cost         int
}

func NewResolver(cfg *config.Config, st *store.Store) *Resolver {
	return &Resolver{
		store:        st,
		viewerName:   cfg.Viewer.Name,
		viewerSecret: cfg.Viewer.Secret,
		cost:         bcrypt.DefaultCost,
	}
}

// Authenticate resolves the pair to a principal. It returns
// ErrMissingField for empty input, ErrInvalidCredential for a bad secret,
// and an error wrapping store.ErrUnavailable when the store cannot be
// reached (the one failure a caller should retry).
func (r *Resolver) Authenticate(ctx context.Context, name, secret string) (*Principal, error) {
	name = strings.TrimSpace(name)
	if name == "" || secret == "" {
		return nil, ErrMissingField
	}

	if strings.EqualFold(name, r.viewerName) {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(r.viewerSecret)) == 1 {
			metrics.CountLogin(metrics.LoginViewer)
			return &Principal{Viewer: true}, nil
		}
		metrics.CountLogin(metrics.LoginRejected)
		return nil, ErrInvalidCredential
	}

	identity, err := r.store.Identities.GetByLabel(ctx, name)
	switch {
	case err == nil:
		return r.verify(ctx, identity, secret)
	case errors.Is(err, store.ErrNotFound):
		return r.create(ctx, name, secret)
	default:
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

func (r *Resolver) verify(ctx context.Context, identity *store.Identity, secret string) (*Principal, error) {
	if identity.SecretHash == "" {
		return r.adopt(ctx, identity, secret)
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.SecretHash), []byte(secret)) != nil {
		metrics.CountLogin(metrics.LoginRejected)
		return nil, ErrInvalidCredential
	}
	metrics.CountLogin(metrics.LoginReturning)
	return &Principal{Identity: identity}, nil
}

// adopt stores the first secret presented for an identity that predates
// per-identity secrets.
func (r *Resolver) adopt(ctx context.Context, identity *store.Identity, secret string) (*Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), r.cost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	if err := r.store.Identities.SetSecretHash(ctx, identity.ID, string(hash)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Removed between lookup and adoption.
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	// Re-read: a concurrent first login may have adopted a different
	// secret; whatever hash is stored now is authoritative.
	fresh, err := r.store.Identities.GetByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(fresh.SecretHash), []byte(secret)) != nil {
		metrics.CountLogin(metrics.LoginRejected)
		return nil, ErrInvalidCredential
	}
	metrics.CountLogin(metrics.LoginAdopted)
	return &Principal{Identity: fresh}, nil
}

func (r *Resolver) create(ctx context.Context, label, secret string) (*Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), r.cost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	count, err := r.store.Identities.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	created, err := r.store.Identities.Create(ctx, store.Identity{
		ID:         uuid.NewString(),
		Label:      label,
		Color:      colorAt(count),
		SecretHash: string(hash),
	})
	switch {
	case err == nil:
		metrics.CountLogin(metrics.LoginCreated)
		return &Principal{Identity: created}, nil
	case errors.Is(err, store.ErrDuplicateLabel):
		// Lost a first-login race; authenticate against the winner.
		existing, err := r.store.Identities.GetByLabel(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return r.verify(ctx, existing, secret)
	default:
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}
