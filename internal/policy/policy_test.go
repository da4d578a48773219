package policy_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/internal/gate"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/policy"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email, role string) models.User {
	t.Helper()
	u := models.User{Email: email, Password: "x", Role: role}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestRoles(t *testing.T) {
	owner := policy.Roles[models.RoleOwner]
	staff := policy.Roles[models.RoleStaff]
	tests := []struct {
		perm  gate.Permission
		owner bool
		staff bool
	}{
		{gate.NewPermission(policy.ResourceClient, gate.ActionCreate), true, true},
		{gate.NewPermission(policy.ResourceClient, gate.ActionDelete), true, false},
		{gate.NewPermission(policy.ResourceInvoice, gate.ActionDelete), true, false},
		{gate.NewPermission(policy.ResourceInvoice, gate.ActionSend), true, true},
		{gate.NewPermission(policy.ResourceFollowUp, gate.ActionSend), true, true},
		{gate.NewPermission(policy.ResourceSettings, gate.ActionManage), true, false},
	}
	for _, tt := range tests {
		if got := owner.Allows(tt.perm); got != tt.owner {
			t.Errorf("owner %s = %v, want %v", tt.perm, got, tt.owner)
		}
		if got := staff.Allows(tt.perm); got != tt.staff {
			t.Errorf("staff %s = %v, want %v", tt.perm, got, tt.staff)
		}
	}
}

func TestOwnershipPolicy(t *testing.T) {
	p := policy.NewOwnershipPolicy()
	ctx := context.Background()
	acct := &models.GoogleAccount{UserID: 42}

	if !p.Can(ctx, 42, gate.ActionUpdate, acct) {
		t.Error("owner should have access")
	}
	if p.Can(ctx, 99, gate.ActionUpdate, acct) {
		t.Error("non-owner should be denied")
	}
	if p.Can(ctx, 42, gate.ActionView, struct{}{}) {
		t.Error("resources without an owner should be denied")
	}
	if !p.Can(ctx, 42, gate.ActionList, nil) {
		t.Error("nil resource should be allowed")
	}
}

func TestAuthGate(t *testing.T) {
	db := setupDB(t)
	owner := createUser(t, db, "owner@example.com", models.RoleOwner)
	staff := createUser(t, db, "staff@example.com", models.RoleStaff)
	ag := policy.NewAuthGate(db, time.Minute)

	ownerCtx := auth.WithUserID(context.Background(), owner.ID)
	staffCtx := auth.WithUserID(context.Background(), staff.ID)

	if !ag.Allows(ownerCtx, gate.ActionDelete, policy.ResourceInvoice) {
		t.Error("owner should delete invoices")
	}
	if ag.Allows(staffCtx, gate.ActionDelete, policy.ResourceInvoice) {
		t.Error("staff should not delete invoices")
	}
	if ag.Allows(context.Background(), gate.ActionList, policy.ResourceClient) {
		t.Error("anonymous should be denied")
	}

	acct := &models.GoogleAccount{UserID: owner.ID}
	if err := ag.Authorize(ownerCtx, gate.ActionUpdate, policy.ResourceGoogle, acct); err != nil {
		t.Errorf("owner should manage their account: %v", err)
	}
	if err := ag.Authorize(staffCtx, gate.ActionUpdate, policy.ResourceGoogle, acct); err != gate.ErrUnauthorized {
		t.Errorf("staff should not manage another account, got %v", err)
	}

	// Role changes apply once the cached entry expires.
	if err := db.Model(&staff).Update("role", models.RoleOwner).Error; err != nil {
		t.Fatal(err)
	}
	if ag.Allows(staffCtx, gate.ActionDelete, policy.ResourceInvoice) {
		t.Error("cached role should still apply")
	}
}

func TestRequirePermission(t *testing.T) {
	db := setupDB(t)
	staff := createUser(t, db, "staff@example.com", models.RoleStaff)
	ag := policy.NewAuthGate(db, time.Minute)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		action gate.Action
		json   bool
		want   int
	}{
		{"allowed", gate.ActionUpdate, false, http.StatusNoContent},
		{"denied html", gate.ActionDelete, false, http.StatusForbidden},
		{"denied json", gate.ActionDelete, true, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ag.RequirePermission(policy.ResourceClient, tt.action)(ok)
			req := httptest.NewRequest(http.MethodPost, "/clients/1", nil)
			req = req.WithContext(auth.WithUserID(req.Context(), staff.ID))
			if tt.json {
				req.Header.Set("Accept", "application/json")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.json && rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}
