// Package gate is a small role and policy authorization layer.
//
// A user is first checked against the permissions of their role
// ("invoice:delete"). When a resource is given and a policy is registered for
// its type, the policy gets the final say.
package gate

import "context"

// Policy holds resource-specific rules, e.g. ownership.
type Policy[U any] interface {
	Can(ctx context.Context, user U, action Action, resource any) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc[U any] func(ctx context.Context, user U, action Action, resource any) bool

func (f PolicyFunc[U]) Can(ctx context.Context, user U, action Action, resource any) bool {
	return f(ctx, user, action, resource)
}

// Gate is the authorization checkpoint. U is the subject type; its zero value
// means anonymous.
type Gate[U comparable] struct {
	roles    RoleResolver[U]
	policies map[string]Policy[U]
}

// New creates a gate backed by roles.
func New[U comparable](roles RoleResolver[U]) *Gate[U] {
	return &Gate[U]{roles: roles, policies: make(map[string]Policy[U])}
}

// Register sets the policy of a resource type, replacing any previous one.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize returns nil when user may perform action on resourceType.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	if !g.Allows(ctx, user, action, resourceType) {
		return ErrUnauthorized
	}
	if resource == nil {
		return nil
	}
	if p, ok := g.policies[resourceType]; ok && !p.Can(ctx, user, action, resource) {
		return ErrUnauthorized
	}
	return nil
}

// Can is Authorize as a bool.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}

// Allows checks the role only. Templates use it to hide buttons.
func (g *Gate[U]) Allows(ctx context.Context, user U, action Action, resourceType string) bool {
	var zero U
	if user == zero || g.roles == nil {
		return false
	}
	role, err := g.roles.Resolve(ctx, user)
	if err != nil || role == nil {
		return false
	}
	return role.Allows(NewPermission(resourceType, action))
}
