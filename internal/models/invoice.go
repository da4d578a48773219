package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceType selects which attribute group an invoice carries and how it is rendered.
type InvoiceType string

const (
	InvoiceTypeGeneral  InvoiceType = "GENERAL"
	InvoiceTypeProforma InvoiceType = "PROFORMA"
)

// DefaultProformaCurrency is used when a proforma invoice does not name a currency.
const DefaultProformaCurrency = "JMD"

// Valid reports whether t is a known invoice type.
func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeGeneral || t == InvoiceTypeProforma
}

// Label is the display name of the type.
func (t InvoiceType) Label() string {
	if t == InvoiceTypeProforma {
		return "Proforma"
	}
	return "General"
}

// Invoice is either a repair estimate (GENERAL) or a vehicle-sale quotation (PROFORMA).
type Invoice struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ClientID uint    `gorm:"index;not null" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	Type InvoiceType `gorm:"size:10;not null;default:'GENERAL'" json:"type"`
	Date time.Time   `gorm:"type:date;not null" json:"date"`

	Vehicle   string `gorm:"size:255" json:"vehicle,omitempty"`
	LicNo     string `gorm:"size:50" json:"lic_no,omitempty"`
	ChassisNo string `gorm:"size:100" json:"chassis_no,omitempty"`

	// Proforma attributes
	ProformaMake     string              `gorm:"size:100" json:"proforma_make,omitempty"`
	ProformaModel    string              `gorm:"size:100" json:"proforma_model,omitempty"`
	ProformaYear     *int                `json:"proforma_year,omitempty"`
	ProformaColour   string              `gorm:"size:50" json:"proforma_colour,omitempty"`
	ProformaCCRating string              `gorm:"column:proforma_cc_rating;size:50" json:"proforma_cc_rating,omitempty"`
	ProformaPrice    decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"proforma_price"`
	ProformaCurrency string              `gorm:"size:10;default:'JMD'" json:"proforma_currency,omitempty"`

	// Generated document. At most one of PDFPath and DriveFileID is set.
	PDFPath           string `gorm:"size:500" json:"pdf_path,omitempty"`
	DriveFileID       string `gorm:"size:255" json:"drive_file_id,omitempty"`
	DriveWebViewLink  string `gorm:"size:500" json:"drive_web_view_link,omitempty"`
	DriveDownloadLink string `gorm:"size:500" json:"drive_download_link,omitempty"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// IsProforma returns true for vehicle-sale quotations.
func (i *Invoice) IsProforma() bool {
	return i.Type == InvoiceTypeProforma
}

// Lines converts the items for the calculator.
func (i *Invoice) Lines() []money.Line {
	lines := make([]money.Line, 0, len(i.Items))
	for _, it := range i.Items {
		lines = append(lines, money.Line{Labour: it.LabourCost, Parts: it.PartsCost})
	}
	return lines
}

// Totals computes the totals block from the loaded items.
func (i *Invoice) Totals() money.Totals {
	return money.Compute(i.Lines())
}

// Currency returns the proforma currency, defaulting to JMD.
func (i *Invoice) Currency() string {
	if c := strings.TrimSpace(i.ProformaCurrency); c != "" {
		return c
	}
	return DefaultProformaCurrency
}

// ProformaTotalFormatted renders the proforma price with its currency.
func (i *Invoice) ProformaTotalFormatted() string {
	return money.FormatOptional(i.ProformaPrice, i.Currency())
}

// PDFFilename is the deterministic artifact name, e.g. invoice-12-general.pdf.
func (i *Invoice) PDFFilename() string {
	t := i.Type
	if !t.Valid() {
		t = InvoiceTypeGeneral
	}
	return fmt.Sprintf("invoice-%d-%s.pdf", i.ID, strings.ToLower(string(t)))
}

// HasArtifact reports whether a generated document is referenced.
func (i *Invoice) HasArtifact() bool {
	return i.PDFPath != "" || i.DriveFileID != ""
}

// SetLocalArtifact points the invoice at a locally stored document and drops any remote reference.
func (i *Invoice) SetLocalArtifact(path string) {
	i.PDFPath = path
	i.DriveFileID = ""
	i.DriveWebViewLink = ""
	i.DriveDownloadLink = ""
}

// SetDriveArtifact points the invoice at an uploaded document and drops the local reference.
func (i *Invoice) SetDriveArtifact(id, viewLink, downloadLink string) {
	i.PDFPath = ""
	i.DriveFileID = id
	i.DriveWebViewLink = viewLink
	i.DriveDownloadLink = downloadLink
}

// InvoiceItem is a line of work on a GENERAL invoice.
type InvoiceItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceID uint     `gorm:"index;not null" json:"invoice_id"`
	Invoice   *Invoice `gorm:"foreignKey:InvoiceID" json:"-"`

	Description string          `gorm:"size:255;not null" json:"description"`
	LabourCost  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"labour_cost"`
	PartsCost   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"parts_cost"`
}

// ItemsByID orders a preloaded item association by creation sequence.
func ItemsByID(db *gorm.DB) *gorm.DB {
	return db.Order("invoice_items.id")
}
