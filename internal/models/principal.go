package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role of an authenticated caller
type Role int

const (
	RoleCustomer Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "CUSTOMER"
	case RoleAdmin:
		return "ADMIN"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps the upstream role header onto a Role. Empty means customer.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "CUSTOMER":
		return RoleCustomer, nil
	case "ADMIN":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Principal is the caller of a request. UserID is nil for guests.
type Principal struct {
	UserID     *uuid.UUID
	Role       Role
	SessionKey string
}

// Authenticated reports whether the caller is a known user.
func (p Principal) Authenticated() bool {
	return p.UserID != nil
}

// IsAdmin reports whether the caller may use admin overrides.
func (p Principal) IsAdmin() bool {
	switch p.Role {
	case RoleAdmin:
		return p.Authenticated()
	case RoleCustomer:
		return false
	}
	return false
}

// CartOwner resolves which cart the caller is working with.
func (p Principal) CartOwner() (CartOwner, error) {
	if p.UserID != nil {
		return UserOwner(*p.UserID), nil
	}
	if p.SessionKey != "" {
		return SessionOwner(p.SessionKey), nil
	}
	return CartOwner{}, ErrInvalidOwner
}

// CanAccessOrder reports whether the caller may read or act on the order.
func (p Principal) CanAccessOrder(o *Order) bool {
	switch p.Role {
	case RoleAdmin:
		return p.Authenticated()
	case RoleCustomer:
		if p.UserID != nil {
			return o.OwnedBy(*p.UserID)
		}
		return o.PlacedInSession(p.SessionKey)
	}
	return false
}

// ActorRole is the audit label for the caller.
func (p Principal) ActorRole() string {
	if !p.Authenticated() {
		return "GUEST"
	}
	return p.Role.String()
}
