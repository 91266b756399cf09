package domain

import "testing"

func TestSessionState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to SessionState
		want     bool
	}{
		{StateUninitialized, StateLoading, true},
		{StateLoading, StateAuthenticated, true},
		{StateLoading, StateAnonymous, true},
		{StateAuthenticated, StateAnonymous, true},
		{StateAnonymous, StateLoading, true},
		{StateLoading, StateUninitialized, false},
		{StateAnonymous, StateUninitialized, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestRole_IsAdmin(t *testing.T) {
	for _, r := range []Role{"admin", "ADMIN", "Admin", " admin "} {
		if !NormalizeRole(string(r)).IsAdmin() {
			t.Fatalf("%q should be admin", r)
		}
	}
	for _, r := range []Role{"", "RESIDENT", "administrator"} {
		if r.IsAdmin() {
			t.Fatalf("%q should not be admin", r)
		}
	}
}

func TestSnapshot_Authenticated(t *testing.T) {
	if (Snapshot{State: StateAuthenticated}).Authenticated() {
		t.Fatalf("authenticated state without a user must not count")
	}
	s := Snapshot{State: StateAuthenticated, User: &User{ID: "1", Role: RoleResident}}
	if !s.Authenticated() || s.Role() != RoleResident {
		t.Fatalf("unexpected snapshot view: %+v", s)
	}
	if (Snapshot{}).Role() != "" {
		t.Fatalf("anonymous snapshot has no role")
	}
}
