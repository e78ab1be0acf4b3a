package authz

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Identity is the authenticated caller as supplied by the identity provider:
// a stable opaque user id plus a verified email.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Sentinel identity that owns operator-issued slot blocks. Not a real user;
// nobody can authenticate as it.
const (
	BlockOwnerID    = "ADMIN_BLOCK"
	BlockOwnerName  = "Bloqueo manual"
	BlockOwnerEmail = "admin"
)

type identityContextKey struct{}

func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the Identity stored in ctx. It returns nil
// if ctx is nil, if no identity is stored, or if the stored value has a
// different type.
func IdentityFromContext(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}

	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok {
		return nil
	}

	return identity
}

// Policy decides privileged operations. The admin email comes from
// configuration; matching is case-insensitive because email providers are.
type Policy struct {
	adminEmail string
}

func NewPolicy(adminEmail string) *Policy {
	return &Policy{adminEmail: strings.TrimSpace(adminEmail)}
}

// IsAdmin reports whether the caller is the facility operator.
func (p *Policy) IsAdmin(caller *Identity) bool {
	if p == nil || caller == nil || p.adminEmail == "" {
		return false
	}
	return strings.EqualFold(caller.Email, p.adminEmail)
}

// CanModifyReservation is the single owner-or-admin decision point for
// privileged operations against an existing reservation.
func (p *Policy) CanModifyReservation(caller *Identity, ownerID string) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if caller.ID == ownerID || p.IsAdmin(caller) {
		return nil
	}
	return ErrForbidden
}

// RequireAdmin returns ErrUnauthenticated for anonymous callers and
// ErrForbidden for authenticated non-operators.
func (p *Policy) RequireAdmin(caller *Identity) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !p.IsAdmin(caller) {
		return ErrForbidden
	}
	return nil
}
