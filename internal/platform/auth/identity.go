package auth

import (
	"context"
	"slices"
	"strings"
)

// Roles carried by identities. Admin implies staff.
const (
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Identity is whoever the request acts for: a staff member signed in through Firebase,
// or a customer holding a portal link for exactly one order.
type Identity struct {
	UID     string
	Email   string
	Roles   []string
	OrderID string
}

// HasRole reports whether the identity carries role, counting admin as staff.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	return slices.ContainsFunc(i.Roles, func(held string) bool {
		held = normaliseRole(held)
		return held == role || (role == RoleStaff && held == RoleAdmin)
	})
}

// CanAccessOrder reports whether the identity may read or act on orderID.
func (i *Identity) CanAccessOrder(orderID string) bool {
	switch {
	case i == nil || orderID == "":
		return false
	case i.HasRole(RoleStaff):
		return true
	default:
		return i.OrderID == orderID
	}
}

// ActorID names the identity in order changelogs and events.
func (i *Identity) ActorID() string {
	if i == nil {
		return ""
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UID
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
