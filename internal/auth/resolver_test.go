package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/jw6ventures/openday/internal/store"
)

// fakeIdentities is an in-memory IdentityRepository. The hooks let tests
// interleave a concurrent writer between the resolver's store calls.
type fakeIdentities struct {
	identities []store.Identity
	err        error

	beforeCreate    func()
	beforeSetSecret func()
}

func (f *fakeIdentities) Create(ctx context.Context, identity store.Identity) (*store.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	for _, existing := range f.identities {
		if strings.EqualFold(existing.Label, identity.Label) {
			return nil, store.ErrDuplicateLabel
		}
	}
	f.identities = append(f.identities, identity)
	return &identity, nil
}

func (f *fakeIdentities) GetByID(ctx context.Context, id string) (*store.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, identity := range f.identities {
		if identity.ID == id {
			copied := identity
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeIdentities) GetByLabel(ctx context.Context, label string) (*store.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, identity := range f.identities {
		if strings.EqualFold(identity.Label, label) {
			copied := identity
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeIdentities) List(ctx context.Context) ([]store.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]store.Identity(nil), f.identities...), nil
}

func (f *fakeIdentities) Count(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.identities), nil
}

func (f *fakeIdentities) SetSecretHash(ctx context.Context, id, hash string) error {
	if f.err != nil {
		return f.err
	}
	if f.beforeSetSecret != nil {
		f.beforeSetSecret()
	}
	for i := range f.identities {
		if f.identities[i].ID == id {
			if f.identities[i].SecretHash == "" {
				f.identities[i].SecretHash = hash
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeIdentities) put(identity store.Identity) {
	f.identities = append(f.identities, identity)
}

var _ store.IdentityRepository = (*fakeIdentities)(nil)

func newTestResolver(fake *fakeIdentities) *Resolver {
	return &Resolver{
		store:        &store.Store{Identities: fake},
		viewerName:   "planner",
		viewerSecret: "viewer-secret",
		cost:         bcrypt.MinCost,
	}
}

func mustHash(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestAuthenticateMissingFields(t *testing.T) {
	r := newTestResolver(&fakeIdentities{})

	cases := []struct {
		name   string
		secret string
	}{
		{"", "secret"},
		{"   ", "secret"},
		{"alice", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if _, err := r.Authenticate(context.Background(), tc.name, tc.secret); !errors.Is(err, ErrMissingField) {
			t.Errorf("Authenticate(%q, %q) = %v, want ErrMissingField", tc.name, tc.secret, err)
		}
	}
}

func TestAuthenticateViewer(t *testing.T) {
	fake := &fakeIdentities{}
	r := newTestResolver(fake)

	p, err := r.Authenticate(context.Background(), "Planner", "viewer-secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !p.Viewer || p.Identity != nil {
		t.Fatalf("got %+v, want viewer principal", p)
	}
	if p.ID() != "" {
		t.Fatalf("viewer ID = %q, want empty", p.ID())
	}

	if _, err := r.Authenticate(context.Background(), "planner", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong viewer secret: err = %v, want ErrInvalidCredential", err)
	}
	if len(fake.identities) != 0 {
		t.Fatalf("viewer login created %d identities", len(fake.identities))
	}
}

func TestAuthenticateFirstLoginCreates(t *testing.T) {
	fake := &fakeIdentities{}
	r := newTestResolver(fake)

	p, err := r.Authenticate(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Viewer {
		t.Fatal("first login produced a viewer principal")
	}
	if p.Identity.Label != "alice" {
		t.Fatalf("label = %q, want alice", p.Identity.Label)
	}
	if p.Identity.Color != colorAt(0) {
		t.Fatalf("color = %q, want %q", p.Identity.Color, colorAt(0))
	}
	if p.Identity.ID == "" {
		t.Fatal("identity created without an ID")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.Identity.SecretHash), []byte("s3cret")); err != nil {
		t.Fatalf("stored hash does not match secret: %v", err)
	}

	// Next member in creation order gets the next palette color.
	p2, err := r.Authenticate(context.Background(), "bob", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate bob: %v", err)
	}
	if p2.Identity.Color != colorAt(1) {
		t.Fatalf("second color = %q, want %q", p2.Identity.Color, colorAt(1))
	}
}

func TestAuthenticateReturning(t *testing.T) {
	fake := &fakeIdentities{}
	fake.put(store.Identity{ID: "id-1", Label: "alice", Color: "#e6194b", SecretHash: mustHash(t, "s3cret")})
	r := newTestResolver(fake)

	p, err := r.Authenticate(context.Background(), "ALICE", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Identity.ID != "id-1" {
		t.Fatalf("ID = %q, want id-1", p.Identity.ID)
	}

	if _, err := r.Authenticate(context.Background(), "alice", "guess"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong secret: err = %v, want ErrInvalidCredential", err)
	}
	if len(fake.identities) != 1 {
		t.Fatalf("returning login created %d extra identities", len(fake.identities)-1)
	}
}

func TestAuthenticateAdoptsLegacySecret(t *testing.T) {
	fake := &fakeIdentities{}
	fake.put(store.Identity{ID: "id-1", Label: "alice", Color: "#e6194b"})
	r := newTestResolver(fake)

	p, err := r.Authenticate(context.Background(), "alice", "first-secret")
	if err != nil {
		t.Fatalf("adopting login: %v", err)
	}
	if p.Identity.SecretHash == "" {
		t.Fatal("principal carries empty hash after adoption")
	}
	if fake.identities[0].SecretHash == "" {
		t.Fatal("adoption did not persist a hash")
	}

	// The adopted secret is now the only one accepted.
	if _, err := r.Authenticate(context.Background(), "alice", "other-secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("post-adoption wrong secret: err = %v, want ErrInvalidCredential", err)
	}
	if _, err := r.Authenticate(context.Background(), "alice", "first-secret"); err != nil {
		t.Fatalf("post-adoption correct secret: %v", err)
	}
}

func TestAuthenticateAdoptionRaceLoses(t *testing.T) {
	fake := &fakeIdentities{}
	fake.put(store.Identity{ID: "id-1", Label: "alice", Color: "#e6194b"})
	fake.beforeSetSecret = func() {
		// A concurrent first login lands its secret before ours.
		fake.identities[0].SecretHash = mustHash(t, "winner-secret")
	}
	r := newTestResolver(fake)

	if _, err := r.Authenticate(context.Background(), "alice", "loser-secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("losing adoption race: err = %v, want ErrInvalidCredential", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(fake.identities[0].SecretHash), []byte("winner-secret")); err != nil {
		t.Fatalf("winner's hash was overwritten: %v", err)
	}
}

func TestAuthenticateCreateRace(t *testing.T) {
	fake := &fakeIdentities{}
	fake.beforeCreate = func() {
		fake.beforeCreate = nil
		fake.put(store.Identity{ID: "winner", Label: "alice", Color: "#e6194b", SecretHash: mustHash(t, "shared-secret")})
	}
	r := newTestResolver(fake)

	// Same secret as the winner: the loser authenticates as the winner.
	p, err := r.Authenticate(context.Background(), "alice", "shared-secret")
	if err != nil {
		t.Fatalf("losing create race with matching secret: %v", err)
	}
	if p.Identity.ID != "winner" {
		t.Fatalf("ID = %q, want winner", p.Identity.ID)
	}
	if len(fake.identities) != 1 {
		t.Fatalf("race left %d identities, want 1", len(fake.identities))
	}
}

func TestAuthenticateCreateRaceWrongSecret(t *testing.T) {
	fake := &fakeIdentities{}
	fake.beforeCreate = func() {
		fake.beforeCreate = nil
		fake.put(store.Identity{ID: "winner", Label: "alice", Color: "#e6194b", SecretHash: mustHash(t, "winner-secret")})
	}
	r := newTestResolver(fake)

	if _, err := r.Authenticate(context.Background(), "alice", "loser-secret"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("losing create race with different secret: err = %v, want ErrInvalidCredential", err)
	}
}

func TestAuthenticateStoreDown(t *testing.T) {
	fake := &fakeIdentities{err: errors.New("connection refused")}
	r := newTestResolver(fake)

	_, err := r.Authenticate(context.Background(), "alice", "s3cret")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want wrapped store.ErrUnavailable", err)
	}
	if errors.Is(err, ErrInvalidCredential) {
		t.Fatal("store outage must not read as a credential failure")
	}
}

func TestPrincipalID(t *testing.T) {
	var nilPrincipal *Principal
	if got := nilPrincipal.ID(); got != "" {
		t.Fatalf("nil principal ID = %q", got)
	}
	p := &Principal{Identity: &store.Identity{ID: "id-9"}}
	if got := p.ID(); got != "id-9" {
		t.Fatalf("ID = %q, want id-9", got)
	}
}
