package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/followup"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/validation"
	"go.uber.org/zap"
)

type FollowUpHandler struct {
	svc    *followup.Service
	logger *zap.Logger
}

func NewFollowUpHandler(svc *followup.Service, logger *zap.Logger) *FollowUpHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpHandler{svc: svc, logger: logger.Named("followups")}
}

// List shows the settings, every schedule, the clients not enrolled yet and
// the recent message log.
func (h *FollowUpHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.svc.Settings(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	records, err := h.svc.List(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"settings": settings, "followups": records})
		return
	}
	eligible, err := h.svc.EligibleClients(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	logs, err := h.svc.RecentLogs(ctx, 20)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "followups/index.html", map[string]any{
		"Settings":  settings,
		"FollowUps": records,
		"Eligible":  eligible,
		"Logs":      logs,
		"Today":     h.svc.Today(),
		"Notice":    r.URL.Query().Get("notice"),
	})
}

// listWithError renders the follow-up page with an inline error.
func (h *FollowUpHandler) listWithError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.WantsJSON(r) || !apperr.Is(err, apperr.Validation) {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	settings, serr := h.svc.Settings(ctx)
	records, lerr := h.svc.List(ctx)
	eligible, eerr := h.svc.EligibleClients(ctx)
	logs, gerr := h.svc.RecentLogs(ctx, 20)
	for _, e := range []error{serr, lerr, eerr, gerr} {
		if e != nil {
			writeError(w, r, h.logger, e)
			return
		}
	}
	formErrors(w, r, h.logger, "followups/index.html", map[string]any{
		"Settings":  settings,
		"FollowUps": records,
		"Eligible":  eligible,
		"Logs":      logs,
		"Today":     h.svc.Today(),
	}, err)
}

func (h *FollowUpHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	v := validation.Violations{}
	interval := validation.PositiveInt("global_interval_days", r.FormValue("global_interval_days"), v)
	if interval == nil {
		v.Add("global_interval_days", "min")
	}
	if !v.Empty() {
		h.listWithError(w, r, apperr.Invalid("followups.UpdateSettings", i18n.T(lang(r), "validation"), v))
		return
	}
	n, err := h.svc.UpdateSettings(r.Context(), followup.SettingsInput{
		GlobalIntervalDays: *interval,
		BusinessName:       r.FormValue("business_name"),
		MessageTemplate:    r.FormValue("message_template"),
	})
	if err != nil {
		h.listWithError(w, r, err)
		return
	}
	done(w, r, http.StatusOK, map[string]int{"rescheduled": n}, "/followups?notice=settings")
}

func parseSchedule(r *http.Request, active bool) (followup.Schedule, validation.Violations) {
	v := validation.Violations{}
	sc := followup.Schedule{
		Active:           active,
		LastServiceDate:  validation.Date("last_service_date", r.FormValue("last_service_date"), v),
		IntervalOverride: validation.PositiveInt("interval_override", r.FormValue("interval_override"), v),
	}
	return sc, v
}

func (h *FollowUpHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	sc, v := parseSchedule(r, true)
	clientID, err := strconv.ParseUint(strings.TrimSpace(r.FormValue("client_id")), 10, 64)
	if err != nil || clientID == 0 {
		v.Add("client_id", "required")
	}
	if !v.Empty() {
		h.listWithError(w, r, apperr.Invalid("followups.Enroll", i18n.T(lang(r), "validation"), v))
		return
	}
	f, err := h.svc.Enroll(r.Context(), uint(clientID), sc.LastServiceDate, sc.IntervalOverride)
	if err != nil {
		h.listWithError(w, r, err)
		return
	}
	done(w, r, http.StatusCreated, f, "/followups?notice=enrolled")
}

func (h *FollowUpHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	active := r.FormValue("is_active") == "on" || r.FormValue("is_active") == "true" || r.FormValue("is_active") == "1"
	sc, v := parseSchedule(r, active)
	if !v.Empty() {
		h.listWithError(w, r, apperr.Invalid("followups.Update", i18n.T(lang(r), "validation"), v))
		return
	}
	f, err := h.svc.Update(r.Context(), id, sc)
	if err != nil {
		h.listWithError(w, r, err)
		return
	}
	done(w, r, http.StatusOK, f, "/followups?notice=updated")
}

// Send contacts one client now. A transport failure is recorded in the log
// and reported as an error.
func (h *FollowUpHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.svc.Send(r.Context(), id, models.TriggerManual)
	if err != nil {
		if apperr.Is(err, apperr.Transport) && !httpx.WantsJSON(r) {
			http.Redirect(w, r, "/followups?notice=failed", http.StatusSeeOther)
			return
		}
		writeError(w, r, h.logger, err)
		return
	}
	done(w, r, http.StatusOK, entry, "/followups?notice=sent")
}

// StatusWebhook receives provider delivery callbacks. It is public and always
// answers with an empty body.
type StatusWebhook struct {
	svc    *followup.Service
	logger *zap.Logger
}

func NewStatusWebhook(svc *followup.Service, logger *zap.Logger) *StatusWebhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusWebhook{svc: svc, logger: logger.Named("webhook")}
}

func (h *StatusWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	u := followup.StatusUpdate{
		SID:          strings.TrimSpace(r.PostForm.Get("MessageSid")),
		Status:       strings.TrimSpace(r.PostForm.Get("MessageStatus")),
		ErrorCode:    strings.TrimSpace(r.PostForm.Get("ErrorCode")),
		ErrorMessage: strings.TrimSpace(r.PostForm.Get("ErrorMessage")),
	}
	if u.SID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	applied, err := h.svc.HandleStatus(r.Context(), u)
	if err != nil {
		if apperr.Is(err, apperr.Validation) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Error("status callback", zap.String("sid", u.SID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.logger.Debug("status callback", zap.String("sid", u.SID), zap.String("status", u.Status), zap.Bool("applied", applied))
	w.WriteHeader(http.StatusOK)
}
