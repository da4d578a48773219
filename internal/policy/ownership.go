package policy

import (
	"context"

	"github.com/motorworks/invoicegen/internal/gate"
)

// Ownable is a resource that belongs to a single user.
type Ownable interface {
	OwnerID() uint
}

// OwnershipPolicy allows access only to the owner of the resource.
type OwnershipPolicy struct{}

func NewOwnershipPolicy() *OwnershipPolicy {
	return &OwnershipPolicy{}
}

// Can denies resources that do not implement Ownable.
func (p *OwnershipPolicy) Can(_ context.Context, userID uint, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	o, ok := resource.(Ownable)
	if !ok {
		return false
	}
	return o.OwnerID() == userID
}
