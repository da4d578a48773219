package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MinPasswordLength applies to new accounts.
const MinPasswordLength = 8

type AuthHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuthHandler(db *gorm.DB, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{db: db, logger: logger.Named("auth")}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		page(w, r, h.logger, http.StatusOK, "login.html", nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")

	var user models.User
	err := h.db.WithContext(r.Context()).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, r, h.logger, err)
		return
	}
	if err != nil || !auth.CheckPassword(user.Password, password) {
		msg := i18n.T(lang(r), "invalid_credentials")
		if httpx.WantsJSON(r) {
			httpx.JSONError(w, http.StatusUnauthorized, msg, nil)
			return
		}
		page(w, r, h.logger, http.StatusUnauthorized, "login.html", map[string]any{"Error": msg, "Email": email})
		return
	}

	if err := auth.CreateSession(w, user.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("login", zap.Uint("user_id", user.ID))
	done(w, r, http.StatusOK, user, "/dashboard")
}

// Signup creates an account. The first account becomes the owner.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		page(w, r, h.logger, http.StatusOK, "signup.html", nil)
		return
	}

	user := models.User{
		Email: strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		Name:  strings.TrimSpace(r.FormValue("name")),
		Role:  models.RoleStaff,
	}
	password := r.FormValue("password")
	data := map[string]any{"Email": user.Email, "Name": user.Name}

	v := validation.Violations{}
	validation.Required("email", user.Email, v)
	validation.Email("email", user.Email, v)
	validation.Required("password", password, v)
	if password != "" && len(password) < MinPasswordLength {
		v.Add("password", "password_too_short")
	}
	if !v.Empty() {
		formErrors(w, r, h.logger, "signup.html", data, apperr.Invalid("auth.Signup", i18n.T(lang(r), "validation"), v))
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user.Password = hash

	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var taken, total int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperr.Invalid("auth.Signup", i18n.T(lang(r), "email_taken"), map[string]string{"email": "email_taken"})
		}
		if err := tx.Model(&models.User{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			user.Role = models.RoleOwner
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		formErrors(w, r, h.logger, "signup.html", data, err)
		return
	}

	if err := auth.CreateSession(w, user.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("signup", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	done(w, r, http.StatusCreated, user, "/dashboard")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
