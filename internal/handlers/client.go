package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const clientsPerPage = 20

type ClientHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewClientHandler(db *gorm.DB, logger *zap.Logger) *ClientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientHandler{db: db, logger: logger.Named("clients")}
}

func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}

	db := h.db.WithContext(r.Context()).Model(&models.Client{})
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var clients []models.Client
	if err := db.Order("name").Limit(clientsPerPage).Offset((pageNum - 1) * clientsPerPage).Find(&clients).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"clients": clients, "total": total, "page": pageNum})
		return
	}
	page(w, r, h.logger, http.StatusOK, "clients/index.html", map[string]any{
		"Clients":  clients,
		"Query":    query,
		"Page":     pageNum,
		"Total":    total,
		"HasNext":  int64(pageNum*clientsPerPage) < total,
		"PrevPage": pageNum - 1,
		"NextPage": pageNum + 1,
	})
}

func (h *ClientHandler) New(w http.ResponseWriter, r *http.Request) {
	page(w, r, h.logger, http.StatusOK, "clients/form.html", map[string]any{"Client": models.Client{}})
}

func clientFromForm(r *http.Request, c *models.Client) error {
	c.Name = strings.TrimSpace(r.FormValue("name"))
	c.Email = strings.TrimSpace(r.FormValue("email"))
	c.Phone = strings.TrimSpace(r.FormValue("phone"))
	c.Address = strings.TrimSpace(r.FormValue("address"))

	v := validation.Violations{}
	validation.Required("name", c.Name, v)
	validation.Email("email", c.Email, v)
	if !v.Empty() {
		return apperr.Invalid("clients.Save", i18n.T(lang(r), "validation"), v)
	}
	return nil
}

func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var client models.Client
	if err := clientFromForm(r, &client); err != nil {
		formErrors(w, r, h.logger, "clients/form.html", map[string]any{"Client": client}, err)
		return
	}
	if err := h.db.WithContext(r.Context()).Create(&client).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("client created", zap.Uint("client_id", client.ID))
	done(w, r, http.StatusCreated, client, "/clients/"+strconv.FormatUint(uint64(client.ID), 10))
}

func (h *ClientHandler) load(r *http.Request) (*models.Client, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	var client models.Client
	if err := h.db.WithContext(r.Context()).First(&client, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("clients.Get", "Client not found.")
		}
		return nil, err
	}
	return &client, nil
}

func (h *ClientHandler) View(w http.ResponseWriter, r *http.Request) {
	client, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	db := h.db.WithContext(r.Context())
	if err := db.Preload("Items", models.ItemsByID).Where("client_id = ?", client.ID).Order("date DESC, id DESC").Find(&client.Invoices).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var f models.FollowUp
	err = db.Where("client_id = ?", client.ID).First(&f).Error
	switch {
	case err == nil:
		client.FollowUp = &f
	case !errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, r, h.logger, err)
		return
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, client)
		return
	}
	page(w, r, h.logger, http.StatusOK, "clients/view.html", map[string]any{"Client": client})
}

func (h *ClientHandler) Edit(w http.ResponseWriter, r *http.Request) {
	client, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "clients/form.html", map[string]any{"Client": client})
}

func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	client, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := clientFromForm(r, client); err != nil {
		formErrors(w, r, h.logger, "clients/form.html", map[string]any{"Client": client}, err)
		return
	}
	if err := h.db.WithContext(r.Context()).Omit("Invoices", "FollowUp").Save(client).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	done(w, r, http.StatusOK, client, "/clients/"+strconv.FormatUint(uint64(client.ID), 10))
}

// Delete removes the client and its follow-up schedule. Invoices are kept.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	client, err := h.load(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&models.FollowUp{}).Select("id").Where("client_id = ?", client.ID)
		if err := tx.Where("follow_up_id IN (?)", sub).Delete(&models.MessageLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", client.ID).Delete(&models.FollowUp{}).Error; err != nil {
			return err
		}
		return tx.Delete(client).Error
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("client deleted", zap.Uint("client_id", client.ID))
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/clients", http.StatusSeeOther)
}
