package gate

import "context"

// Role is a named set of permissions.
type Role struct {
	Name  string
	Grant []Permission
	Deny  []Permission
}

// Allows reports whether the role grants p. Deny entries win over grants.
func (r *Role) Allows(p Permission) bool {
	if r == nil {
		return false
	}
	for _, d := range r.Deny {
		if d.Matches(p) {
			return false
		}
	}
	for _, g := range r.Grant {
		if g.Matches(p) {
			return true
		}
	}
	return false
}

// RoleResolver finds the role of a user. A nil role with a nil error means
// the user has no access.
type RoleResolver[U any] interface {
	Resolve(ctx context.Context, user U) (*Role, error)
}

// ResolverFunc adapts a function to RoleResolver.
type ResolverFunc[U any] func(ctx context.Context, user U) (*Role, error)

func (f ResolverFunc[U]) Resolve(ctx context.Context, user U) (*Role, error) {
	return f(ctx, user)
}
