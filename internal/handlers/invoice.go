package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/export"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/services"
	"github.com/motorworks/invoicegen/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// blankItemRows is how many empty item rows a new invoice form offers.
const blankItemRows = 3

type InvoiceHandler struct {
	db     *gorm.DB
	svc    *services.InvoiceService
	sender string
	logger *zap.Logger
}

// NewInvoiceHandler wires the invoice pages. sender signs outgoing emails when
// the user has no display name.
func NewInvoiceHandler(db *gorm.DB, svc *services.InvoiceService, sender string, logger *zap.Logger) *InvoiceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceHandler{db: db, svc: svc, sender: sender, logger: logger.Named("invoices")}
}

// itemRow is an item as typed into the form.
type itemRow struct {
	Description string
	Labour      string
	Parts       string
}

func invoiceID(inv *models.Invoice) string {
	return strconv.FormatUint(uint64(inv.ID), 10)
}

func listFilter(r *http.Request) services.ListFilter {
	q := r.URL.Query()
	f := services.ListFilter{Type: models.InvoiceType(strings.ToUpper(q.Get("type")))}
	if id, err := strconv.ParseUint(q.Get("client_id"), 10, 64); err == nil {
		f.ClientID = uint(id)
	}
	return f
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	f.Limit = 200
	invoices, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		out := make([]map[string]any, 0, len(invoices))
		for i := range invoices {
			out = append(out, map[string]any{"invoice": invoices[i], "totals": invoices[i].Totals()})
		}
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	page(w, r, h.logger, http.StatusOK, "invoices/index.html", map[string]any{
		"Invoices": invoices,
		"Type":     string(f.Type),
		"ClientID": f.ClientID,
	})
}

// Export downloads the filtered invoice list as a spreadsheet.
func (h *InvoiceHandler) Export(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.List(r.Context(), listFilter(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Invoices(&buf, invoices); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "invoices.xlsx", buf.Bytes())
}

func (h *InvoiceHandler) client(ctx context.Context, id uint) (*models.Client, error) {
	var c models.Client
	if err := h.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("invoices.client", "Client not found.")
		}
		return nil, err
	}
	return &c, nil
}

func blankRows(rows []itemRow) []itemRow {
	for i := 0; i < blankItemRows; i++ {
		rows = append(rows, itemRow{})
	}
	return rows
}

func (h *InvoiceHandler) New(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	client, err := h.client(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "invoices/form.html", map[string]any{
		"Client":  client,
		"Invoice": models.Invoice{ClientID: client.ID, Type: models.InvoiceTypeGeneral, ProformaCurrency: models.DefaultProformaCurrency},
		"Items":   blankRows(nil),
		"Action":  "/clients/" + strconv.FormatUint(uint64(client.ID), 10) + "/invoices",
	})
}

// parseInvoiceForm reads the submitted form. Parse failures are returned as
// violations so they can be merged with the service checks.
func parseInvoiceForm(r *http.Request, clientID uint) (services.InvoiceInput, []itemRow, validation.Violations) {
	_ = r.ParseForm()
	v := validation.Violations{}
	in := services.InvoiceInput{
		ClientID:  clientID,
		Type:      models.InvoiceType(strings.ToUpper(strings.TrimSpace(r.FormValue("type")))),
		Date:      validation.Date("date", r.FormValue("date"), v),
		Vehicle:   r.FormValue("vehicle"),
		LicNo:     r.FormValue("lic_no"),
		ChassisNo: r.FormValue("chassis_no"),
		Make:      r.FormValue("proforma_make"),
		Model:     r.FormValue("proforma_model"),
		Year:      validation.PositiveInt("proforma_year", r.FormValue("proforma_year"), v),
		Colour:    r.FormValue("proforma_colour"),
		CCRating:  r.FormValue("proforma_cc_rating"),
		Price:     validation.OptionalAmount("proforma_price", r.FormValue("proforma_price"), v),
		Currency:  r.FormValue("proforma_currency"),
	}
	if in.Type == "" {
		in.Type = models.InvoiceTypeGeneral
	}

	desc := r.Form["item_description"]
	labour := r.Form["item_labour"]
	parts := r.Form["item_parts"]
	at := func(s []string, i int) string {
		if i < len(s) {
			return strings.TrimSpace(s[i])
		}
		return ""
	}
	n := max(len(desc), len(labour), len(parts))
	rows := make([]itemRow, 0, n)
	for i := 0; i < n; i++ {
		row := itemRow{Description: at(desc, i), Labour: at(labour, i), Parts: at(parts, i)}
		rows = append(rows, row)
		prefix := "items." + strconv.Itoa(i) + "."
		in.Items = append(in.Items, services.ItemInput{
			Description: row.Description,
			Labour:      validation.Amount(prefix+"labour_cost", row.Labour, v),
			Parts:       validation.Amount(prefix+"parts_cost", row.Parts, v),
		})
	}
	return in, rows, v
}

func (h *InvoiceHandler) checkParsed(r *http.Request, in services.InvoiceInput, parsed validation.Violations) error {
	if parsed.Empty() {
		return nil
	}
	for field, code := range h.svc.Validate(in) {
		parsed.Add(field, code)
	}
	return apperr.Invalid("invoices.Parse", i18n.T(lang(r), "validation"), parsed)
}

func formInvoice(in services.InvoiceInput) models.Invoice {
	inv := models.Invoice{
		ClientID:         in.ClientID,
		Type:             in.Type,
		Vehicle:          in.Vehicle,
		LicNo:            in.LicNo,
		ChassisNo:        in.ChassisNo,
		ProformaMake:     in.Make,
		ProformaModel:    in.Model,
		ProformaYear:     in.Year,
		ProformaColour:   in.Colour,
		ProformaCCRating: in.CCRating,
		ProformaPrice:    in.Price,
		ProformaCurrency: in.Currency,
	}
	if in.Date != nil {
		inv.Date = *in.Date
	}
	return inv
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	client, err := h.client(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, rows, parsed := parseInvoiceForm(r, client.ID)
	err = h.checkParsed(r, in, parsed)
	var inv *models.Invoice
	if err == nil {
		inv, err = h.svc.Create(r.Context(), in)
	}
	if err != nil {
		formErrors(w, r, h.logger, "invoices/form.html", map[string]any{
			"Client":  client,
			"Invoice": formInvoice(in),
			"Items":   blankRows(rows),
			"Action":  r.URL.Path,
		}, err)
		return
	}
	done(w, r, http.StatusCreated, inv, "/invoices/"+invoiceID(inv))
}

func (h *InvoiceHandler) load(r *http.Request) (*models.Invoice, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.Get(r.Context(), id)
}

func (h *InvoiceHandler) View(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "totals": inv.Totals()})
		return
	}
	acct, err := currentAccount(r.Context(), h.db)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "invoices/view.html", map[string]any{
		"Invoice":         inv,
		"Totals":          inv.Totals(),
		"GoogleConnected": acct.IsConnected(),
		"Emailed":         r.URL.Query().Get("emailed") != "",
	})
}

func itemRows(inv *models.Invoice) []itemRow {
	rows := make([]itemRow, 0, len(inv.Items))
	for _, it := range inv.Items {
		rows = append(rows, itemRow{
			Description: it.Description,
			Labour:      it.LabourCost.StringFixed(2),
			Parts:       it.PartsCost.StringFixed(2),
		})
	}
	return blankRows(rows)
}

func (h *InvoiceHandler) Edit(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "invoices/form.html", map[string]any{
		"Client":  inv.Client,
		"Invoice": inv,
		"Items":   itemRows(inv),
		"Action":  "/invoices/" + invoiceID(inv),
	})
}

func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, rows, parsed := parseInvoiceForm(r, inv.ClientID)
	err = h.checkParsed(r, in, parsed)
	var updated *models.Invoice
	if err == nil {
		updated, err = h.svc.Update(r.Context(), inv.ID, in)
	}
	if err != nil {
		edited := formInvoice(in)
		edited.ID = inv.ID
		formErrors(w, r, h.logger, "invoices/form.html", map[string]any{
			"Client":  inv.Client,
			"Invoice": edited,
			"Items":   blankRows(rows),
			"Action":  r.URL.Path,
		}, err)
		return
	}
	done(w, r, http.StatusOK, updated, "/invoices/"+invoiceID(updated))
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/invoices", http.StatusSeeOther)
}

// PDF serves the invoice document. force=1 regenerates it; download=1 sends it
// as an attachment.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := currentAccount(r.Context(), h.db)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	a, err := h.svc.Artifact(r.Context(), inv, acct, q.Get("force") == "1")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("X-Artifact-Source", a.Source)
	if q.Get("download") == "1" {
		httpx.Attachment(w, "application/pdf", a.Filename, a.Data)
		return
	}
	httpx.Inline(w, "application/pdf", a.Filename, a.Data)
}

// Email sends the invoice to the client through the user's Gmail account.
func (h *InvoiceHandler) Email(w http.ResponseWriter, r *http.Request) {
	inv, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := currentAccount(r.Context(), h.db)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sender := h.sender
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		var u models.User
		if h.db.WithContext(r.Context()).Select("id", "name").First(&u, uid).Error == nil && u.Name != "" {
			sender = u.Name
		}
	}
	msgID, err := h.svc.Email(r.Context(), inv, acct, sender)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	done(w, r, http.StatusOK, map[string]string{"message_id": msgID}, "/invoices/"+invoiceID(inv)+"?emailed=1")
}
