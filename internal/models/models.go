// Package models holds the gorm records of the application.
package models

// All returns every model in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&GoogleAccount{},
		&Client{},
		&Invoice{},
		&InvoiceItem{},
		&FollowUpSettings{},
		&FollowUp{},
		&MessageLog{},
	}
}
