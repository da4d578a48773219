package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/gate"
	"github.com/motorworks/invoicegen/view"
	"go.uber.org/zap"
)

func lang(r *http.Request) string {
	return i18n.DetectLanguage(r.Header.Get("Accept-Language"))
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, gate.ErrUnauthorized) {
		return http.StatusForbidden
	}
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Transport:
		return http.StatusBadGateway
	case apperr.Configuration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the text shown to the user. Provider and database
// details stay in the log.
func messageFor(r *http.Request, err error) string {
	if errors.Is(err, gate.ErrUnauthorized) {
		return i18n.T(lang(r), "forbidden")
	}
	var e *apperr.Error
	if !errors.As(err, &e) {
		return i18n.T(lang(r), "internal")
	}
	if e.Msg != "" {
		return e.Msg
	}
	return i18n.T(lang(r), string(e.Kind))
}

// writeError answers with a JSON error body or the error page.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := messageFor(r, err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	var details any
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		details = i18n.Fields(lang(r), fields)
	}
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, status, msg, details)
		return
	}
	page(w, r, logger, status, "error.html", map[string]any{"Status": status, "Message": msg, "Errors": details})
}

// page renders an HTML page and falls back to plain text when the template fails.
func page(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, name string, data map[string]any) {
	if err := view.RenderStatus(w, r, status, name, data); err != nil {
		logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// formErrors renders a form again with translated field errors.
func formErrors(w http.ResponseWriter, r *http.Request, logger *zap.Logger, name string, data map[string]any, err error) {
	if !apperr.Is(err, apperr.Validation) {
		writeError(w, r, logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		writeError(w, r, logger, err)
		return
	}
	data["Error"] = messageFor(r, err)
	data["Errors"] = i18n.Fields(lang(r), apperr.FieldsOf(err))
	page(w, r, logger, http.StatusUnprocessableEntity, name, data)
}

// pathID parses a positive numeric path value.
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Missing("handlers.pathID", "Not found.")
	}
	return uint(id), nil
}

// done answers a successful mutation: JSON payload or a redirect.
func done(w http.ResponseWriter, r *http.Request, status int, payload any, location string) {
	if httpx.WantsJSON(r) {
		httpx.JSON(w, status, payload)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
