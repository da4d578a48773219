package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/motorworks/invoicegen/internal/gate"
)

var (
	owner = &gate.Role{Name: "owner", Grant: []gate.Permission{gate.PermissionAll}}
	staff = &gate.Role{
		Name:  "staff",
		Grant: []gate.Permission{"*:*"},
		Deny:  []gate.Permission{"client:delete", "invoice:delete", "settings:*"},
	}
)

func staticRoles(m map[uint]*gate.Role) gate.ResolverFunc[uint] {
	return func(_ context.Context, uid uint) (*gate.Role, error) {
		return m[uid], nil
	}
}

func TestPermissionMatches(t *testing.T) {
	tests := []struct {
		have, want gate.Permission
		ok         bool
	}{
		{"*:*", "invoice:delete", true},
		{"invoice:delete", "invoice:delete", true},
		{"invoice:*", "invoice:view", true},
		{"*:view", "client:view", true},
		{"*:view", "client:delete", false},
		{"invoice:view", "client:view", false},
		{"garbage", "invoice:view", false},
	}
	for _, tt := range tests {
		if got := tt.have.Matches(tt.want); got != tt.ok {
			t.Errorf("%s.Matches(%s) = %v, want %v", tt.have, tt.want, got, tt.ok)
		}
	}
}

func TestRoleDenyWins(t *testing.T) {
	if !staff.Allows("invoice:create") {
		t.Error("staff should create invoices")
	}
	if staff.Allows("invoice:delete") {
		t.Error("staff must not delete invoices")
	}
	if staff.Allows("settings:manage") {
		t.Error("staff must not manage settings")
	}
	var none *gate.Role
	if none.Allows("invoice:view") {
		t.Error("nil role allows nothing")
	}
}

func TestGateAuthorize(t *testing.T) {
	g := gate.New[uint](staticRoles(map[uint]*gate.Role{1: owner, 2: staff}))
	ctx := context.Background()

	if err := g.Authorize(ctx, 0, gate.ActionView, "invoice", nil); !errors.Is(err, gate.ErrUnauthorized) {
		t.Errorf("anonymous: got %v", err)
	}
	if err := g.Authorize(ctx, 3, gate.ActionView, "invoice", nil); !errors.Is(err, gate.ErrUnauthorized) {
		t.Errorf("unknown user: got %v", err)
	}
	if !g.Can(ctx, 1, gate.ActionDelete, "invoice", nil) {
		t.Error("owner may delete")
	}
	if g.Can(ctx, 2, gate.ActionDelete, "invoice", nil) {
		t.Error("staff may not delete")
	}
}

func TestGatePolicy(t *testing.T) {
	g := gate.New[uint](staticRoles(map[uint]*gate.Role{1: owner}))
	g.Register("invoice", gate.PolicyFunc[uint](func(_ context.Context, _ uint, _ gate.Action, res any) bool {
		return res.(string) == "mine"
	}))
	ctx := context.Background()
	if !g.Can(ctx, 1, gate.ActionUpdate, "invoice", "mine") {
		t.Error("policy should allow")
	}
	if g.Can(ctx, 1, gate.ActionUpdate, "invoice", "theirs") {
		t.Error("policy should deny")
	}
	if !g.Allows(ctx, 1, gate.ActionUpdate, "invoice") {
		t.Error("role check ignores policies")
	}
}

func TestCachedResolver(t *testing.T) {
	calls := 0
	roles := map[uint]*gate.Role{1: staff}
	inner := gate.ResolverFunc[uint](func(_ context.Context, uid uint) (*gate.Role, error) {
		calls++
		return roles[uid], nil
	})
	c := gate.NewCachedResolver[uint](inner, time.Minute)
	ctx := context.Background()

	r, _ := c.Resolve(ctx, 1)
	roles[1] = owner
	r2, _ := c.Resolve(ctx, 1)
	if r != staff || r2 != staff || calls != 1 {
		t.Fatalf("expected cached staff role, calls=%d", calls)
	}
}

func TestCachedResolverExpires(t *testing.T) {
	calls := 0
	roles := map[uint]*gate.Role{1: staff}
	inner := gate.ResolverFunc[uint](func(_ context.Context, uid uint) (*gate.Role, error) {
		calls++
		return roles[uid], nil
	})
	c := gate.NewCachedResolver[uint](inner, 0)
	ctx := context.Background()

	_, _ = c.Resolve(ctx, 1)
	roles[1] = owner
	r, _ := c.Resolve(ctx, 1)
	if r != owner || calls != 2 {
		t.Fatalf("expected fresh owner role after expiry, calls=%d", calls)
	}
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	fail := true
	inner := gate.ResolverFunc[uint](func(context.Context, uint) (*gate.Role, error) {
		if fail {
			return nil, errors.New("db down")
		}
		return owner, nil
	})
	c := gate.NewCachedResolver[uint](inner, time.Minute)
	if _, err := c.Resolve(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if r, err := c.Resolve(context.Background(), 1); err != nil || r != owner {
		t.Fatalf("got %v, %v", r, err)
	}
}
