package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/google"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/render"
	"github.com/motorworks/invoicegen/internal/storage"
	"github.com/motorworks/invoicegen/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Renderer turns a document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, doc render.Document) ([]byte, error)
}

// Store keeps generated files locally.
type Store interface {
	Save(name string, data []byte) (string, error)
	Open(name string) ([]byte, error)
	Remove(name string) error
}

// Google is the Drive and Gmail surface used for invoices.
type Google interface {
	Enabled() bool
	Upload(ctx context.Context, acct *models.GoogleAccount, fileID, name string, content []byte) (google.File, error)
	Download(ctx context.Context, acct *models.GoogleAccount, fileID string) ([]byte, error)
	SendMail(ctx context.Context, acct *models.GoogleAccount, m google.Mail) (string, error)
}

// InvoiceDeps are the collaborators of InvoiceService. Google may be nil.
type InvoiceDeps struct {
	Renderer Renderer
	Store    Store
	Google   Google
	Logger   *zap.Logger
}

type InvoiceService struct {
	db       *gorm.DB
	renderer Renderer
	store    Store
	google   Google
	logger   *zap.Logger
}

func NewInvoiceService(db *gorm.DB, deps InvoiceDeps) *InvoiceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		db:       db,
		renderer: deps.Renderer,
		store:    deps.Store,
		google:   deps.Google,
		logger:   logger.Named("invoices"),
	}
}

// ItemInput is one submitted line item.
type ItemInput struct {
	Description string
	Labour      decimal.Decimal
	Parts       decimal.Decimal
}

func (it ItemInput) blank() bool {
	return strings.TrimSpace(it.Description) == "" && it.Labour.IsZero() && it.Parts.IsZero()
}

// InvoiceInput is a create or update request.
type InvoiceInput struct {
	ClientID  uint
	Type      models.InvoiceType
	Date      *time.Time
	Vehicle   string
	LicNo     string
	ChassisNo string

	Make     string
	Model    string
	Year     *int
	Colour   string
	CCRating string
	Price    decimal.NullDecimal
	Currency string

	Items []ItemInput
}

// Validate checks the input and returns per-field codes. Blank item rows are ignored.
func (s *InvoiceService) Validate(in InvoiceInput) validation.Violations {
	v := validation.Violations{}
	if in.ClientID == 0 {
		v.Add("client_id", "required")
	}
	if in.Date == nil {
		v.Add("date", "required")
	}
	if !in.Type.Valid() {
		v.Add("type", "invalid_choice")
	}
	if in.Type == models.InvoiceTypeProforma {
		if strings.TrimSpace(in.Make) == "" {
			v.Add("proforma_make", "make_required")
		}
		if strings.TrimSpace(in.Model) == "" {
			v.Add("proforma_model", "model_required")
		}
		if !in.Price.Valid {
			v.Add("proforma_price", "price_required")
		} else if in.Price.Decimal.IsNegative() {
			v.Add("proforma_price", "must_be_non_negative")
		}
		if in.Year != nil {
			validation.RangeInt("proforma_year", *in.Year, 1900, 2100, v)
		}
	}
	for i, it := range in.Items {
		if it.blank() {
			continue
		}
		prefix := "items." + strconv.Itoa(i) + "."
		validation.Required(prefix+"description", it.Description, v)
		if it.Labour.IsNegative() {
			v.Add(prefix+"labour_cost", "must_be_non_negative")
		}
		if it.Parts.IsNegative() {
			v.Add(prefix+"parts_cost", "must_be_non_negative")
		}
	}
	return v
}

func (s *InvoiceService) check(op string, in InvoiceInput) error {
	if v := s.Validate(in); !v.Empty() {
		return apperr.Invalid(op, "Please correct the errors below.", v)
	}
	return nil
}

func (in InvoiceInput) apply(inv *models.Invoice) {
	inv.ClientID = in.ClientID
	inv.Type = in.Type
	inv.Date = *in.Date
	inv.Vehicle = strings.TrimSpace(in.Vehicle)
	inv.LicNo = strings.TrimSpace(in.LicNo)
	inv.ChassisNo = strings.TrimSpace(in.ChassisNo)
	inv.ProformaMake = strings.TrimSpace(in.Make)
	inv.ProformaModel = strings.TrimSpace(in.Model)
	inv.ProformaYear = in.Year
	inv.ProformaColour = strings.TrimSpace(in.Colour)
	inv.ProformaCCRating = strings.TrimSpace(in.CCRating)
	inv.ProformaPrice = in.Price
	inv.ProformaCurrency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if inv.ProformaCurrency == "" {
		inv.ProformaCurrency = models.DefaultProformaCurrency
	}
}

func (in InvoiceInput) items(invoiceID uint) []models.InvoiceItem {
	var items []models.InvoiceItem
	for _, it := range in.Items {
		if it.blank() {
			continue
		}
		items = append(items, models.InvoiceItem{
			InvoiceID:   invoiceID,
			Description: strings.TrimSpace(it.Description),
			LabourCost:  it.Labour.Round(2),
			PartsCost:   it.Parts.Round(2),
		})
	}
	return items
}

func (s *InvoiceService) requireClient(db *gorm.DB, op string, id uint) error {
	var n int64
	if err := db.Model(&models.Client{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.Invalid(op, "Please correct the errors below.", map[string]string{"client_id": "invalid_choice"})
	}
	return nil
}

// Create stores a new invoice with its items.
func (s *InvoiceService) Create(ctx context.Context, in InvoiceInput) (*models.Invoice, error) {
	const op = "invoices.Create"
	if err := s.check(op, in); err != nil {
		return nil, err
	}
	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireClient(tx, op, in.ClientID); err != nil {
			return err
		}
		in.apply(&inv)
		if err := tx.Omit("Items", "Client").Create(&inv).Error; err != nil {
			return err
		}
		if items := in.items(inv.ID); len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice created", zap.Uint("invoice_id", inv.ID), zap.String("type", string(inv.Type)))
	return s.Get(ctx, inv.ID)
}

// Update replaces the invoice fields and its items.
func (s *InvoiceService) Update(ctx context.Context, id uint, in InvoiceInput) (*models.Invoice, error) {
	const op = "invoices.Update"
	if err := s.check(op, in); err != nil {
		return nil, err
	}
	var stale string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.First(&inv, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Missing(op, "Invoice not found.")
			}
			return err
		}
		if err := s.requireClient(tx, op, in.ClientID); err != nil {
			return err
		}
		// The stored document carries the old type in its name and layout.
		if inv.Type != in.Type && inv.HasArtifact() {
			stale = inv.PDFPath
			inv.SetLocalArtifact("")
		}
		in.apply(&inv)
		if err := tx.Omit("Items", "Client").Save(&inv).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if items := in.items(inv.ID); len(items) > 0 {
			return tx.Create(&items).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale != "" && s.store != nil {
		if err := s.store.Remove(stale); err != nil {
			s.logger.Warn("remove document", zap.String("path", stale), zap.Error(err))
		}
	}
	return s.Get(ctx, id)
}

// Delete removes the invoice, its items and any local document.
func (s *InvoiceService) Delete(ctx context.Context, id uint) error {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Invoice{}, inv.ID).Error
	})
	if err != nil {
		return err
	}
	if inv.PDFPath != "" && s.store != nil {
		if err := s.store.Remove(inv.PDFPath); err != nil {
			s.logger.Warn("remove document", zap.String("path", inv.PDFPath), zap.Error(err))
		}
	}
	return nil
}

// Get loads an invoice with its client and items in creation order.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Items", models.ItemsByID).
		First(&inv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Missing("invoices.Get", "Invoice not found.")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	ClientID uint
	Type     models.InvoiceType
	Limit    int
}

// List returns invoices newest first.
func (s *InvoiceService) List(ctx context.Context, f ListFilter) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Items", models.ItemsByID).
		Order("date DESC, id DESC")
	if f.ClientID != 0 {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.Type.Valid() {
		q = q.Where("type = ?", f.Type)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var list []models.Invoice
	return list, q.Find(&list).Error
}

// Document maps an invoice to its printable form.
func Document(inv *models.Invoice) render.Document {
	doc := render.Document{
		Type:      render.General,
		Number:    strconv.FormatUint(uint64(inv.ID), 10),
		Date:      inv.Date,
		Vehicle:   inv.Vehicle,
		LicNo:     inv.LicNo,
		ChassisNo: inv.ChassisNo,
	}
	if c := inv.Client; c != nil {
		doc.Client = render.Party{Name: c.Name, Address: c.AddressLines(), Phone: c.Phone, Email: c.Email}
	}
	if inv.IsProforma() {
		doc.Type = render.Proforma
		doc.Sale = render.Vehicle{
			Make:     inv.ProformaMake,
			Model:    inv.ProformaModel,
			Colour:   inv.ProformaColour,
			CCRating: inv.ProformaCCRating,
			Price:    inv.ProformaPrice,
			Currency: inv.Currency(),
		}
		if inv.ProformaYear != nil {
			doc.Sale.Year = strconv.Itoa(*inv.ProformaYear)
		}
		return doc
	}
	for _, it := range inv.Items {
		doc.Rows = append(doc.Rows, render.Row{Description: it.Description, Labour: it.LabourCost, Parts: it.PartsCost})
	}
	doc.Totals = inv.Totals()
	return doc
}

// Render draws the invoice as PDF.
func (s *InvoiceService) Render(ctx context.Context, inv *models.Invoice) ([]byte, error) {
	if s.renderer == nil {
		return nil, apperr.Config("invoices.Render", "PDF rendering is not configured.")
	}
	return s.renderer.Render(ctx, Document(inv))
}

func localName(inv *models.Invoice) string {
	return "invoices/" + inv.PDFFilename()
}

// StoreLocal saves pdf as the invoice's local artifact and persists the reference.
func (s *InvoiceService) StoreLocal(ctx context.Context, inv *models.Invoice, pdf []byte) error {
	if s.store == nil {
		return apperr.Config("invoices.StoreLocal", "Local storage is not configured.")
	}
	old := inv.PDFPath
	path, err := s.store.Save(localName(inv), pdf)
	if err != nil {
		return err
	}
	if old != "" && old != path {
		_ = s.store.Remove(old)
	}
	inv.SetLocalArtifact(path)
	return s.saveArtifact(ctx, inv)
}

func (s *InvoiceService) saveArtifact(ctx context.Context, inv *models.Invoice) error {
	return s.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"pdf_path":            inv.PDFPath,
		"drive_file_id":       inv.DriveFileID,
		"drive_web_view_link": inv.DriveWebViewLink,
		"drive_download_link": inv.DriveDownloadLink,
	}).Error
}

// saveCredentials persists a token blob refreshed during a Google call.
func (s *InvoiceService) saveCredentials(ctx context.Context, acct *models.GoogleAccount, before []byte) {
	if acct == nil || acct.ID == 0 || string(before) == string(acct.Credentials) {
		return
	}
	if err := s.db.WithContext(ctx).Model(acct).Updates(map[string]any{"credentials": acct.Credentials, "email": acct.Email}).Error; err != nil {
		s.logger.Warn("save google credentials", zap.Uint("account_id", acct.ID), zap.Error(err))
	}
}

func (s *InvoiceService) driveReady(acct *models.GoogleAccount) bool {
	return s.google != nil && s.google.Enabled() && acct.IsConnected()
}

// Artifact is a generated invoice document.
type Artifact struct {
	Filename    string
	Data        []byte
	Source      string // "drive" or "local"
	WebViewLink string
}

// Artifact returns the invoice PDF. Without force an existing document is
// reused. New documents go to Drive when the account is connected and to local
// storage otherwise or when the upload fails.
func (s *InvoiceService) Artifact(ctx context.Context, inv *models.Invoice, acct *models.GoogleAccount, force bool) (*Artifact, error) {
	name := inv.PDFFilename()
	if s.driveReady(acct) {
		before := acct.Credentials
		defer s.saveCredentials(ctx, acct, before)
	}

	if !force {
		if inv.DriveFileID != "" && s.driveReady(acct) {
			data, err := s.google.Download(ctx, acct, inv.DriveFileID)
			if err == nil {
				return &Artifact{Filename: name, Data: data, Source: "drive", WebViewLink: inv.DriveWebViewLink}, nil
			}
			s.logger.Warn("drive download failed, regenerating", zap.Uint("invoice_id", inv.ID), zap.Error(err))
		}
		if inv.PDFPath != "" && inv.PDFPath == localName(inv) && s.store != nil {
			data, err := s.store.Open(inv.PDFPath)
			if err == nil {
				return &Artifact{Filename: name, Data: data, Source: "local"}, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("local document unreadable, regenerating", zap.String("path", inv.PDFPath), zap.Error(err))
			}
		}
	}

	pdf, err := s.Render(ctx, inv)
	if err != nil {
		return nil, err
	}
	if s.driveReady(acct) {
		f, err := s.upload(ctx, inv, acct, pdf)
		if err == nil {
			return &Artifact{Filename: name, Data: pdf, Source: "drive", WebViewLink: f.WebViewLink}, nil
		}
		s.logger.Warn("drive upload failed, storing locally", zap.Uint("invoice_id", inv.ID), zap.Error(err))
	}
	if err := s.StoreLocal(ctx, inv, pdf); err != nil {
		return nil, err
	}
	return &Artifact{Filename: name, Data: pdf, Source: "local"}, nil
}

func (s *InvoiceService) upload(ctx context.Context, inv *models.Invoice, acct *models.GoogleAccount, pdf []byte) (google.File, error) {
	f, err := s.google.Upload(ctx, acct, inv.DriveFileID, inv.PDFFilename(), pdf)
	if err != nil {
		return google.File{}, err
	}
	old := inv.PDFPath
	inv.SetDriveArtifact(f.ID, f.WebViewLink, f.DownloadLink)
	if err := s.saveArtifact(ctx, inv); err != nil {
		return google.File{}, err
	}
	if old != "" && s.store != nil {
		_ = s.store.Remove(old)
	}
	return f, nil
}

const emailBody = `Hello %s,

Please find attached invoice #%d dated %s.
%s
Regards,
%s
`

// Email sends a freshly generated invoice to the client through the linked
// Gmail account and returns the Gmail message id.
func (s *InvoiceService) Email(ctx context.Context, inv *models.Invoice, acct *models.GoogleAccount, senderName string) (string, error) {
	const op = "invoices.Email"
	if inv.Client == nil || strings.TrimSpace(inv.Client.Email) == "" {
		return "", apperr.Invalid(op, "The client for this invoice does not have an email address.", map[string]string{"email": "required"})
	}
	if s.google == nil || !s.google.Enabled() {
		return "", apperr.Config(op, "Google integration is not configured.")
	}
	if !acct.IsConnected() {
		return "", apperr.Config(op, "Connect your Google account before sending invoices.")
	}
	before := acct.Credentials
	defer s.saveCredentials(ctx, acct, before)

	pdf, err := s.Render(ctx, inv)
	if err != nil {
		return "", err
	}
	link := ""
	if f, err := s.upload(ctx, inv, acct, pdf); err != nil {
		s.logger.Warn("drive upload before email failed", zap.Uint("invoice_id", inv.ID), zap.Error(err))
	} else if f.WebViewLink != "" {
		link = "\nYou can also view it online: " + f.WebViewLink + "\n"
	}

	body := fmt.Sprintf(emailBody, inv.Client.Name, inv.ID, inv.Date.Format(render.DateLayout), link, senderName)
	id, err := s.google.SendMail(ctx, acct, google.Mail{
		To:      strings.TrimSpace(inv.Client.Email),
		Subject: fmt.Sprintf("Invoice #%d", inv.ID),
		Body:    body,
		Attachment: &google.Attachment{
			Filename:    inv.PDFFilename(),
			ContentType: "application/pdf",
			Content:     pdf,
		},
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("invoice emailed", zap.Uint("invoice_id", inv.ID), zap.String("message_id", id))
	return id, nil
}
