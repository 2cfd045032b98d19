package session

import (
	"errors"
	"fmt"
)

// Role is the closed set of console roles. Screens are gated by capability,
// not by comparing role strings inline.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOperations Role = "operations"
	RoleSales      Role = "sales"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleOperations, RoleSales:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Capability is a permission the console checks before serving a view or
// accepting a command.
type Capability int

const (
	// CapViewOrders allows reading the live order board.
	CapViewOrders Capability = iota
	// CapTransitionOrders allows driving order status changes.
	CapTransitionOrders
	// CapViewReference allows reading the reference tables.
	CapViewReference
)

var grants = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapViewOrders:       true,
		CapTransitionOrders: true,
		CapViewReference:    true,
	},
	RoleOperations: {
		CapViewOrders:       true,
		CapTransitionOrders: true,
		CapViewReference:    true,
	},
	RoleSales: {
		CapViewOrders:    true,
		CapViewReference: true,
	},
}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	return grants[r][c]
}

// Session carries the authenticated identity for upstream calls and guard
// checks. It is passed explicitly to every component that needs it; nothing
// reads credentials from ambient state.
type Session struct {
	Token string
	Actor string
	Role  Role
}

func New(token, actor string, role Role) *Session {
	return &Session{Token: token, Actor: actor, Role: role}
}
