package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/google"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/render"
	"github.com/motorworks/invoicegen/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeRenderer struct {
	calls int
	last  render.Document
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, doc render.Document) ([]byte, error) {
	r.calls++
	r.last = doc
	if r.err != nil {
		return nil, r.err
	}
	return []byte(fmt.Sprintf("%%PDF-%s-%d", doc.Number, r.calls)), nil
}

type fakeGoogle struct {
	disabled  bool
	uploads   int
	uploadErr error
	files     map[string][]byte
	mails     []google.Mail
	refresh   bool
}

func (g *fakeGoogle) Enabled() bool { return !g.disabled }

func (g *fakeGoogle) Upload(_ context.Context, acct *models.GoogleAccount, fileID, name string, content []byte) (google.File, error) {
	if g.uploadErr != nil {
		return google.File{}, g.uploadErr
	}
	g.uploads++
	if fileID == "" {
		fileID = fmt.Sprintf("drive-%d", g.uploads)
	}
	if g.files == nil {
		g.files = map[string][]byte{}
	}
	g.files[fileID] = content
	if g.refresh {
		acct.Credentials = []byte(`{"access_token":"fresh"}`)
	}
	return google.File{ID: fileID, Name: name, WebViewLink: "https://drive.test/" + fileID}, nil
}

func (g *fakeGoogle) Download(_ context.Context, _ *models.GoogleAccount, fileID string) ([]byte, error) {
	data, ok := g.files[fileID]
	if !ok {
		return nil, apperr.TransportErr("fake.Download", errors.New("404"))
	}
	return data, nil
}

func (g *fakeGoogle) SendMail(_ context.Context, _ *models.GoogleAccount, m google.Mail) (string, error) {
	g.mails = append(g.mails, m)
	return fmt.Sprintf("msg-%d", len(g.mails)), nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type fixture struct {
	db       *gorm.DB
	svc      *InvoiceService
	renderer *fakeRenderer
	google   *fakeGoogle
	store    *storage.Local
	client   models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:       db,
		renderer: &fakeRenderer{},
		google:   &fakeGoogle{},
		store:    storage.NewLocal(t.TempDir()),
		client:   models.Client{Name: "Bob Brown", Email: "bob@example.com", Phone: "+18761234567", Address: "1 Main St\nKingston"},
	}
	require.NoError(t, db.Create(&f.client).Error)
	f.svc = NewInvoiceService(db, InvoiceDeps{Renderer: f.renderer, Store: f.store, Google: f.google})
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, day int) *time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func (f *fixture) generalInput() InvoiceInput {
	return InvoiceInput{
		ClientID: f.client.ID,
		Type:     models.InvoiceTypeGeneral,
		Date:     date(2024, 3, 1),
		Vehicle:  "Toyota Corolla",
		LicNo:    "PA 1234",
		Items: []ItemInput{
			{Description: "Brake pads", Labour: d("100"), Parts: d("50.50")},
			{},
			{Description: "Oil change", Labour: d("20"), Parts: d("25.25")},
		},
	}
}

func (f *fixture) connectedAccount(t *testing.T) *models.GoogleAccount {
	t.Helper()
	u := models.User{Email: "staff@example.com", Password: "x", Role: models.RoleOwner}
	require.NoError(t, f.db.Create(&u).Error)
	acct, err := models.EnsureGoogleAccount(f.db, u.ID)
	require.NoError(t, err)
	acct.Credentials = []byte(`{"access_token":"stale"}`)
	acct.Email = "garage@example.com"
	require.NoError(t, f.db.Save(acct).Error)
	return acct
}

func TestValidateProforma(t *testing.T) {
	f := newFixture(t)
	v := f.svc.Validate(InvoiceInput{ClientID: f.client.ID, Type: models.InvoiceTypeProforma, Date: date(2024, 1, 1)})
	assert.Equal(t, "make_required", v["proforma_make"])
	assert.Equal(t, "model_required", v["proforma_model"])
	assert.Equal(t, "price_required", v["proforma_price"])

	v = f.svc.Validate(InvoiceInput{Type: "OTHER", Items: []ItemInput{{Labour: d("-1")}}})
	assert.Equal(t, "required", v["client_id"])
	assert.Equal(t, "required", v["date"])
	assert.Equal(t, "invalid_choice", v["type"])
	assert.Equal(t, "required", v["items.0.description"])
	assert.Equal(t, "must_be_non_negative", v["items.0.labour_cost"])

	_, err := f.svc.Create(context.Background(), InvoiceInput{Type: models.InvoiceTypeProforma})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Equal(t, "make_required", apperr.FieldsOf(err)["proforma_make"])
}

func TestCreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "Brake pads", inv.Items[0].Description)
	assert.Equal(t, "Bob Brown", inv.Client.Name)

	totals := inv.Totals()
	assert.Equal(t, "75.75", totals.PartsSubtotal.StringFixed(2))
	assert.Equal(t, "120.00", totals.LabourSubtotal.StringFixed(2))
	assert.Equal(t, "11.36", totals.Tax.StringFixed(2))
	assert.Equal(t, "207.11", totals.Total.StringFixed(2))

	in := f.generalInput()
	in.Items = []ItemInput{{Description: "Alignment", Labour: d("40")}}
	updated, err := f.svc.Update(ctx, inv.ID, in)
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "Alignment", updated.Items[0].Description)

	var n int64
	require.NoError(t, f.db.Model(&models.InvoiceItem{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Update(ctx, 999, in)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	in.ClientID = 999
	_, err = f.svc.Create(ctx, in)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestCreateProforma(t *testing.T) {
	f := newFixture(t)
	year := 2021
	inv, err := f.svc.Create(context.Background(), InvoiceInput{
		ClientID: f.client.ID,
		Type:     models.InvoiceTypeProforma,
		Date:     date(2024, 5, 2),
		Make:     "Honda",
		Model:    "Fit",
		Year:     &year,
		Price:    decimal.NewNullDecimal(d("1850000")),
	})
	require.NoError(t, err)
	assert.Equal(t, "JMD", inv.ProformaCurrency)

	doc := Document(inv)
	assert.Equal(t, render.Proforma, doc.Type)
	assert.Equal(t, "2021", doc.Sale.Year)
	assert.Equal(t, "JMD", doc.Sale.Currency)
	assert.Empty(t, doc.Rows)
	assert.Equal(t, "invoice-"+doc.Number+"-proforma.pdf", inv.PDFFilename())
}

func TestDocumentGeneral(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.Create(context.Background(), f.generalInput())
	require.NoError(t, err)
	doc := Document(inv)
	assert.Equal(t, render.General, doc.Type)
	assert.Equal(t, []string{"1 Main St", "Kingston"}, doc.Client.Address)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, "207.11", doc.Totals.Total.StringFixed(2))
}

func TestArtifactLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)

	a, err := f.svc.Artifact(ctx, inv, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "local", a.Source)
	assert.Equal(t, inv.PDFFilename(), a.Filename)
	assert.Equal(t, 1, f.renderer.calls)

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoices/"+inv.PDFFilename(), stored.PDFPath)

	again, err := f.svc.Artifact(ctx, stored, nil, false)
	require.NoError(t, err)
	assert.Equal(t, a.Data, again.Data)
	assert.Equal(t, 1, f.renderer.calls)

	forced, err := f.svc.Artifact(ctx, stored, nil, true)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, forced.Data)
	assert.Equal(t, 2, f.renderer.calls)

	require.NoError(t, f.svc.Delete(ctx, inv.ID))
	_, err = f.store.Open(stored.PDFPath)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.svc.Get(ctx, inv.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestArtifactDrive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.connectedAccount(t)
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)

	a, err := f.svc.Artifact(ctx, inv, acct, false)
	require.NoError(t, err)
	assert.Equal(t, "drive", a.Source)
	assert.Equal(t, "https://drive.test/drive-1", a.WebViewLink)

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "drive-1", stored.DriveFileID)
	assert.Empty(t, stored.PDFPath)

	again, err := f.svc.Artifact(ctx, stored, acct, false)
	require.NoError(t, err)
	assert.Equal(t, a.Data, again.Data)
	assert.Equal(t, 1, f.renderer.calls)

	// Regenerating updates the same Drive file.
	_, err = f.svc.Artifact(ctx, stored, acct, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.google.uploads)
	assert.Len(t, f.google.files, 1)
}

func TestUpdateTypeChangeDropsDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.connectedAccount(t)
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)
	_, err = f.svc.Artifact(ctx, inv, acct, false)
	require.NoError(t, err)

	year := 2021
	in := f.generalInput()
	in.Type = models.InvoiceTypeProforma
	in.Make, in.Model, in.Year = "Honda", "Fit", &year
	in.Price = decimal.NewNullDecimal(d("1850000"))
	updated, err := f.svc.Update(ctx, inv.ID, in)
	require.NoError(t, err)
	assert.False(t, updated.HasArtifact())

	a, err := f.svc.Artifact(ctx, updated, acct, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.renderer.calls)
	assert.Equal(t, render.Proforma, f.renderer.last.Type)
	assert.Equal(t, updated.PDFFilename(), a.Filename)
}

func TestUpdateKeepsDocumentForSameType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)
	_, err = f.svc.Artifact(ctx, inv, nil, false)
	require.NoError(t, err)

	in := f.generalInput()
	in.Vehicle = "Toyota Yaris"
	updated, err := f.svc.Update(ctx, inv.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.HasArtifact())
}

func TestArtifactDriveFailureFallsBackToLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.connectedAccount(t)
	f.google.uploadErr = apperr.TransportErr("fake.Upload", errors.New("quota"))
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)

	a, err := f.svc.Artifact(ctx, inv, acct, false)
	require.NoError(t, err)
	assert.Equal(t, "local", a.Source)
	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PDFPath)
	assert.Empty(t, stored.DriveFileID)
}

func TestArtifactRenderError(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = apperr.Render("render.Render", errors.New("boom"))
	inv, err := f.svc.Create(context.Background(), f.generalInput())
	require.NoError(t, err)
	_, err = f.svc.Artifact(context.Background(), inv, nil, false)
	assert.True(t, apperr.Is(err, apperr.Rendering))
}

func TestEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.connectedAccount(t)
	f.google.refresh = true
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)

	id, err := f.svc.Email(ctx, inv, acct, "Jane")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, f.google.mails, 1)
	m := f.google.mails[0]
	assert.Equal(t, "bob@example.com", m.To)
	assert.Equal(t, fmt.Sprintf("Invoice #%d", inv.ID), m.Subject)
	assert.Contains(t, m.Body, "Hello Bob Brown")
	assert.Contains(t, m.Body, "March 01, 2024")
	assert.Contains(t, m.Body, "https://drive.test/drive-1")
	require.NotNil(t, m.Attachment)
	assert.Equal(t, inv.PDFFilename(), m.Attachment.Filename)

	var stored models.GoogleAccount
	require.NoError(t, f.db.First(&stored, acct.ID).Error)
	assert.JSONEq(t, `{"access_token":"fresh"}`, string(stored.Credentials))
}

func TestEmailPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)

	_, err = f.svc.Email(ctx, inv, &models.GoogleAccount{}, "Jane")
	assert.True(t, apperr.Is(err, apperr.Configuration))

	inv.Client.Email = ""
	_, err = f.svc.Email(ctx, inv, f.connectedAccount(t), "Jane")
	assert.True(t, apperr.Is(err, apperr.Validation))

	f.google.disabled = true
	inv.Client.Email = "bob@example.com"
	_, err = f.svc.Email(ctx, inv, &models.GoogleAccount{Credentials: []byte(`{"access_token":"x"}`)}, "Jane")
	assert.True(t, apperr.Is(err, apperr.Configuration))
	assert.Empty(t, f.google.mails)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)
	in := f.generalInput()
	in.Date = date(2024, 4, 1)
	second, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, ListFilter{ClientID: f.client.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	list, err = f.svc.List(ctx, ListFilter{Type: models.InvoiceTypeProforma})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.generalInput())
	require.NoError(t, err)
	in := f.generalInput()
	in.Date = date(2024, 2, 10)
	_, err = f.svc.Create(ctx, in)
	require.NoError(t, err)

	st, err := NewDashboardService(f.db).Stats(ctx, *date(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Clients)
	assert.Equal(t, int64(2), st.Invoices)
	assert.Equal(t, "207.11", st.MonthTotal.StringFixed(2))
	assert.Len(t, st.RecentInvoices, 2)
}
