package policy

import (
	"context"
	"errors"

	"github.com/motorworks/invoicegen/internal/gate"
	"github.com/motorworks/invoicegen/internal/models"
	"gorm.io/gorm"
)

// Resource types checked by the gate.
const (
	ResourceClient   = "client"
	ResourceInvoice  = "invoice"
	ResourceFollowUp = "followup"
	ResourceSettings = "settings"
	ResourceGoogle   = "google_account"
)

// Roles maps a user role to its permissions. Owners may do everything; staff
// run the day-to-day work but cannot delete records or change business settings.
var Roles = map[string]*gate.Role{
	models.RoleOwner: {
		Name:  models.RoleOwner,
		Grant: []gate.Permission{gate.PermissionAll},
	},
	models.RoleStaff: {
		Name:  models.RoleStaff,
		Grant: []gate.Permission{gate.PermissionAll},
		Deny: []gate.Permission{
			gate.NewPermission(ResourceClient, gate.ActionDelete),
			gate.NewPermission(ResourceInvoice, gate.ActionDelete),
			gate.NewPermission(ResourceSettings, gate.Wildcard),
		},
	},
}

// DBRoleResolver looks up the role column of the user.
type DBRoleResolver struct {
	DB *gorm.DB
}

func NewDBRoleResolver(db *gorm.DB) *DBRoleResolver {
	return &DBRoleResolver{DB: db}
}

// Resolve returns nil for unknown users and unknown role names.
func (r *DBRoleResolver) Resolve(ctx context.Context, userID uint) (*gate.Role, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Select("id", "role").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Roles[user.Role], nil
}
