package policy

import (
	"context"
	"net/http"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/gate"
	"gorm.io/gorm"
)

// AuthGate binds the gate to the session user.
type AuthGate struct {
	Gate *gate.Gate[uint]
}

// NewAuthGate resolves roles from the users table and caches them for cacheTTL.
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration) *AuthGate {
	g := gate.New[uint](gate.NewCachedResolver[uint](NewDBRoleResolver(db), cacheTTL))
	g.Register(ResourceGoogle, NewOwnershipPolicy())
	return &AuthGate{Gate: g}
}

// Authorize checks the current user against action on resourceType.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return gate.ErrUnauthorized
	}
	return ag.Gate.Authorize(ctx, userID, action, resourceType, resource)
}

func (ag *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return ag.Authorize(ctx, action, resourceType, resource) == nil
}

// Allows checks the role only, for showing or hiding controls.
func (ag *AuthGate) Allows(ctx context.Context, action gate.Action, resourceType string) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return false
	}
	return ag.Gate.Allows(ctx, userID, action, resourceType)
}

// RequirePermission blocks requests whose user lacks resourceType:action.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ag.Allows(r.Context(), action, resourceType) {
				msg := i18n.T(i18n.DetectLanguage(r.Header.Get("Accept-Language")), "forbidden")
				if httpx.WantsJSON(r) {
					httpx.JSONError(w, http.StatusForbidden, msg, nil)
					return
				}
				http.Error(w, msg, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
