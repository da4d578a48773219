package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles understood by the authorization policy.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// User represents an authenticated staff member.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string         `gorm:"size:255" json:"name,omitempty"`
	Password  string         `gorm:"size:255;not null" json:"-"` // Hashed, never exposed in JSON
	Role      string         `gorm:"size:20;not null;default:'staff'" json:"role"`

	GoogleAccount *GoogleAccount `gorm:"foreignKey:UserID" json:"google_account,omitempty"`
}

// IsOwner reports whether the user has full access.
func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}

// GoogleAccount links a user to Google Drive and Gmail. Credentials is an opaque
// token blob handed to the Google adapter as-is.
type GoogleAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID          uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	Email           string         `gorm:"size:255" json:"email,omitempty"`
	Credentials     datatypes.JSON `json:"-"`
	DriveFolderID   string         `gorm:"size:255" json:"drive_folder_id,omitempty"`
	DriveFolderName string         `gorm:"size:255" json:"drive_folder_name,omitempty"`
}

// IsConnected reports whether credentials are stored.
func (g *GoogleAccount) IsConnected() bool {
	return g != nil && len(g.Credentials) > 0
}

// FolderDisplay is the folder label shown to users.
func (g *GoogleAccount) FolderDisplay() string {
	if g == nil {
		return ""
	}
	if g.DriveFolderName != "" {
		return g.DriveFolderName
	}
	if g.DriveFolderID != "" {
		return g.DriveFolderID
	}
	return "My Drive"
}

// OwnerID is the user the account belongs to.
func (g *GoogleAccount) OwnerID() uint {
	return g.UserID
}

// Disconnect drops the stored credentials and the account identity.
func (g *GoogleAccount) Disconnect() {
	g.Credentials = nil
	g.Email = ""
}

// EnsureGoogleAccount returns the user's account row, creating an empty one if needed.
func EnsureGoogleAccount(db *gorm.DB, userID uint) (*GoogleAccount, error) {
	acct := GoogleAccount{UserID: userID}
	if err := db.Where(GoogleAccount{UserID: userID}).FirstOrCreate(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}
