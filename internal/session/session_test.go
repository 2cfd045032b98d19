package session

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	for _, name := range []string{"admin", "operations", "sales"} {
		role, err := ParseRole(name)
		if err != nil {
			t.Errorf("ParseRole(%q) failed: %v", name, err)
		}
		if string(role) != name {
			t.Errorf("ParseRole(%q) = %q", name, role)
		}
	}

	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapViewOrders, true},
		{RoleAdmin, CapTransitionOrders, true},
		{RoleOperations, CapViewOrders, true},
		{RoleOperations, CapTransitionOrders, true},
		{RoleSales, CapViewOrders, true},
		{RoleSales, CapTransitionOrders, false},
		{RoleSales, CapViewReference, true},
	}

	for _, tt := range tests {
		if got := tt.role.Can(tt.cap); got != tt.want {
			t.Errorf("%s.Can(%d) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestUnknownRoleHasNoCapabilities(t *testing.T) {
	if Role("superuser").Can(CapViewOrders) {
		t.Error("unknown role must hold no capabilities")
	}
}
