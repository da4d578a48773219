package models

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(All()...))
	return db
}

func TestInvoice_PDFFilename(t *testing.T) {
	tests := []struct {
		name string
		inv  Invoice
		want string
	}{
		{"general", Invoice{ID: 12, Type: InvoiceTypeGeneral}, "invoice-12-general.pdf"},
		{"proforma", Invoice{ID: 3, Type: InvoiceTypeProforma}, "invoice-3-proforma.pdf"},
		{"unknown type falls back", Invoice{ID: 7}, "invoice-7-general.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inv.PDFFilename())
		})
	}
}

func TestInvoice_ArtifactReferenceIsExclusive(t *testing.T) {
	inv := Invoice{ID: 1}
	inv.SetLocalArtifact("invoices/invoice-1-general.pdf")
	assert.True(t, inv.HasArtifact())

	inv.SetDriveArtifact("abc", "https://view", "https://dl")
	assert.Empty(t, inv.PDFPath)
	assert.Equal(t, "abc", inv.DriveFileID)

	inv.SetLocalArtifact("invoices/invoice-1-general.pdf")
	assert.Empty(t, inv.DriveFileID)
	assert.Empty(t, inv.DriveWebViewLink)
	assert.Empty(t, inv.DriveDownloadLink)
}

func TestInvoice_Totals(t *testing.T) {
	inv := Invoice{Items: []InvoiceItem{
		{LabourCost: decimal.RequireFromString("50"), PartsCost: decimal.RequireFromString("100")},
		{PartsCost: decimal.RequireFromString("33.335")},
	}}
	got := inv.Totals()
	assert.Equal(t, "203.34", got.Total.StringFixed(2))
}

func TestInvoice_ProformaTotalFormatted(t *testing.T) {
	inv := Invoice{Type: InvoiceTypeProforma, ProformaPrice: decimal.NewNullDecimal(decimal.RequireFromString("1500000"))}
	assert.Equal(t, "JMD 1,500,000.00", inv.ProformaTotalFormatted())

	inv.ProformaCurrency = "USD"
	assert.Equal(t, "USD 1,500,000.00", inv.ProformaTotalFormatted())

	inv.ProformaPrice = decimal.NullDecimal{}
	assert.Equal(t, "", inv.ProformaTotalFormatted())
}

func TestClient_AddressLines(t *testing.T) {
	c := Client{Address: "12 Hope Road\n\n  Kingston 6 \n"}
	assert.Equal(t, []string{"12 Hope Road", "Kingston 6"}, c.AddressLines())
	assert.Nil(t, (&Client{}).AddressLines())
}

func TestLoadSettings_CreatesOnce(t *testing.T) {
	db := setupTestDB(t)

	s, err := LoadSettings(db, "Hope Road Motors")
	require.NoError(t, err)
	assert.Equal(t, DefaultIntervalDays, s.GlobalIntervalDays)
	assert.Equal(t, "Hope Road Motors", s.BusinessName)

	s.GlobalIntervalDays = 30
	require.NoError(t, db.Save(s).Error)

	again, err := LoadSettings(db, "Other Name")
	require.NoError(t, err)
	assert.Equal(t, 30, again.GlobalIntervalDays)
	assert.Equal(t, "Hope Road Motors", again.BusinessName)

	var count int64
	db.Model(&FollowUpSettings{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestGoogleAccount(t *testing.T) {
	db := setupTestDB(t)

	acct, err := EnsureGoogleAccount(db, 9)
	require.NoError(t, err)
	assert.False(t, acct.IsConnected())
	assert.Equal(t, "My Drive", acct.FolderDisplay())

	acct.Credentials = []byte(`{"access_token":"x"}`)
	acct.DriveFolderName = "Invoices"
	require.NoError(t, db.Save(acct).Error)

	again, err := EnsureGoogleAccount(db, 9)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)
	assert.True(t, again.IsConnected())
	assert.Equal(t, "Invoices", again.FolderDisplay())

	again.Disconnect()
	assert.False(t, again.IsConnected())
}
