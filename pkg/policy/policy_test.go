package policy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type fakeGrants struct {
	role string
	ok   bool
	err  error
}

func (f fakeGrants) RoleFor(context.Context, uuid.UUID, uuid.UUID) (string, bool, error) {
	return f.role, f.ok, f.err
}

func TestResolveRoleOwner(t *testing.T) {
	gate := NewGate(fakeGrants{})
	owner := uuid.New()
	role, err := gate.ResolveRole(context.Background(), uuid.New(), owner, owner)
	if err != nil || role != RoleOwner {
		t.Fatalf("ResolveRole = %v, %v, want RoleOwner, nil", role, err)
	}
}

func TestResolveRoleFromGrant(t *testing.T) {
	gate := NewGate(fakeGrants{role: "editor", ok: true})
	role, err := gate.ResolveRole(context.Background(), uuid.New(), uuid.New(), uuid.New())
	if err != nil || role != RoleEditor {
		t.Fatalf("ResolveRole = %v, %v, want RoleEditor, nil", role, err)
	}
}

func TestResolveRoleNone(t *testing.T) {
	gate := NewGate(fakeGrants{})
	role, err := gate.ResolveRole(context.Background(), uuid.New(), uuid.New(), uuid.New())
	if err != nil || role != RoleNone {
		t.Fatalf("ResolveRole = %v, %v, want RoleNone, nil", role, err)
	}
}

func TestAllowCapabilityTable(t *testing.T) {
	cases := []struct {
		role Role
		op   Operation
		want bool
	}{
		{RoleViewer, OpRead, true},
		{RoleViewer, OpAdvanceStage, false},
		{RoleEditor, OpAdvanceStage, true},
		{RoleEditor, OpInviteCollaborator, false},
		{RoleAdmin, OpInviteCollaborator, true},
		{RoleAdmin, OpDeleteProduction, false},
		{RoleOwner, OpDeleteProduction, true},
		{RoleNone, OpRead, false},
	}
	for _, c := range cases {
		if got := Allow(c.role, c.op); got != c.want {
			t.Errorf("Allow(%s, %s) = %v, want %v", c.role, c.op, got, c.want)
		}
	}
}
