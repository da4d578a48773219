package handlers

import (
	"net/http"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/httpx"
	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db     *gorm.DB
	stats  *services.DashboardService
	today  func() time.Time
	logger *zap.Logger
}

// NewDashboardHandler wires the landing page. today returns the business date.
func NewDashboardHandler(db *gorm.DB, today func() time.Time, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{db: db, stats: services.NewDashboardService(db), today: today, logger: logger.Named("dashboard")}
}

func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Stats(r.Context(), h.today())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, st)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, uid).Error; err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := currentAccount(r.Context(), h.db)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page(w, r, h.logger, http.StatusOK, "dashboard.html", map[string]any{
		"User":    user,
		"Stats":   st,
		"Account": acct,
	})
}

// Health reports whether the database answers.
func Health(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
