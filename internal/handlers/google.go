package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/gate"
	"github.com/motorworks/invoicegen/internal/google"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/policy"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	statePurpose = "google"
	stateTTL     = 10 * time.Minute
)

// GoogleLinker is the OAuth and Drive surface used by the account pages.
type GoogleLinker interface {
	Enabled() bool
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) ([]byte, error)
	AccountEmail(ctx context.Context, acct *models.GoogleAccount) (string, error)
	ListFolders(ctx context.Context, acct *models.GoogleAccount) ([]google.Folder, error)
}

// Authorizer checks the session user against a resource.
type Authorizer interface {
	Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error
}

// currentAccount returns the session user's Google account, or nil when the
// user never linked one.
func currentAccount(ctx context.Context, db *gorm.DB) (*models.GoogleAccount, error) {
	uid, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, nil
	}
	var acct models.GoogleAccount
	err := db.WithContext(ctx).Where("user_id = ?", uid).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

type GoogleHandler struct {
	db     *gorm.DB
	google GoogleLinker
	authz  Authorizer
	logger *zap.Logger
}

func NewGoogleHandler(db *gorm.DB, g GoogleLinker, authz Authorizer, logger *zap.Logger) *GoogleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleHandler{db: db, google: g, authz: authz, logger: logger.Named("google")}
}

func (h *GoogleHandler) ensureAccount(ctx context.Context) (*models.GoogleAccount, error) {
	uid, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, gate.ErrUnauthorized
	}
	acct, err := models.EnsureGoogleAccount(h.db.WithContext(ctx), uid)
	if err != nil {
		return nil, err
	}
	if h.authz != nil {
		if err := h.authz.Authorize(ctx, gate.ActionUpdate, policy.ResourceGoogle, acct); err != nil {
			return nil, err
		}
	}
	return acct, nil
}

func (h *GoogleHandler) persist(ctx context.Context, acct *models.GoogleAccount) error {
	return h.db.WithContext(ctx).Model(acct).Select("email", "credentials", "drive_folder_id", "drive_folder_name").Updates(acct).Error
}

// Connect starts the OAuth flow.
func (h *GoogleHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if h.google == nil || !h.google.Enabled() {
		writeError(w, r, h.logger, apperr.Config("google.Connect", "Google integration is not configured."))
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	state, err := auth.SignState(statePurpose, uid, stateTTL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	url, err := h.google.AuthCodeURL(state)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback completes the OAuth flow and stores the token blob.
func (h *GoogleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	const op = "google.Callback"
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, r, h.logger, apperr.Invalid(op, "Google access was not granted.", map[string]string{"google": e}))
		return
	}
	uid, err := auth.VerifyState(q.Get("state"), statePurpose)
	if current, ok := auth.UserIDFromContext(r.Context()); err != nil || !ok || uid != current {
		writeError(w, r, h.logger, apperr.Invalid(op, "The Google sign-in link expired. Try connecting again.", nil))
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		writeError(w, r, h.logger, apperr.Invalid(op, "Google did not return an authorization code.", nil))
		return
	}

	blob, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := h.ensureAccount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct.Credentials = blob
	if email, err := h.google.AccountEmail(r.Context(), acct); err != nil {
		h.logger.Warn("fetch account email", zap.Uint("user_id", uid), zap.Error(err))
	} else {
		acct.Email = email
	}
	if err := h.persist(r.Context(), acct); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("google account linked", zap.Uint("user_id", uid), zap.String("email", acct.Email))
	done(w, r, http.StatusOK, acct, "/google/folders")
}

func (h *GoogleHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ensureAccount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct.Disconnect()
	if err := h.db.WithContext(r.Context()).Model(acct).Updates(map[string]any{"credentials": nil, "email": ""}).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	done(w, r, http.StatusOK, acct, "/dashboard")
}

// Folders lists the Drive folders invoices can be uploaded to.
func (h *GoogleHandler) Folders(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ensureAccount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	data := map[string]any{
		"Account":    acct,
		"Configured": h.google != nil && h.google.Enabled(),
	}
	var folders []google.Folder
	if acct.IsConnected() && h.google != nil {
		before := string(acct.Credentials)
		folders, err = h.google.ListFolders(r.Context(), acct)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if string(acct.Credentials) != before {
			if err := h.persist(r.Context(), acct); err != nil {
				h.logger.Warn("save refreshed token", zap.Error(err))
			}
		}
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"account": acct, "folders": folders})
		return
	}
	data["Folders"] = folders
	page(w, r, h.logger, http.StatusOK, "google/folders.html", data)
}

// SelectFolder sets the upload folder. An empty id means the Drive root.
func (h *GoogleHandler) SelectFolder(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ensureAccount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !acct.IsConnected() {
		writeError(w, r, h.logger, apperr.Config("google.SelectFolder", "Connect a Google account first."))
		return
	}
	acct.DriveFolderID = strings.TrimSpace(r.FormValue("folder_id"))
	acct.DriveFolderName = strings.TrimSpace(r.FormValue("folder_name"))
	if acct.DriveFolderID == "" {
		acct.DriveFolderName = ""
	}
	err = h.db.WithContext(r.Context()).Model(acct).Updates(map[string]any{
		"drive_folder_id":   acct.DriveFolderID,
		"drive_folder_name": acct.DriveFolderName,
	}).Error
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	done(w, r, http.StatusOK, acct, "/google/folders")
}
