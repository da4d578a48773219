package services

import (
	"context"
	"time"

	"github.com/motorworks/invoicegen/internal/models"
	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stats is the dashboard summary.
type Stats struct {
	Clients        int64            `json:"clients"`
	Invoices       int64            `json:"invoices"`
	FollowUpsDue   int64            `json:"followups_due"`
	MonthTotal     decimal.Decimal  `json:"month_total"`
	RecentInvoices []models.Invoice `json:"recent_invoices"`
	RecentClients  []models.Client  `json:"recent_clients"`
}

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// Stats counts records and sums the GENERAL invoice totals dated in the month of today.
func (s *DashboardService) Stats(ctx context.Context, today time.Time) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{MonthTotal: decimal.Zero}
	if err := db.Model(&models.Client{}).Count(&st.Clients).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Invoice{}).Count(&st.Invoices).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.FollowUp{}).
		Where("is_active = ? AND next_due_date IS NOT NULL AND next_due_date <= ?", true, today).
		Count(&st.FollowUpsDue).Error; err != nil {
		return nil, err
	}

	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	var month []models.Invoice
	if err := db.Preload("Items").
		Where("type = ? AND date >= ? AND date < ?", models.InvoiceTypeGeneral, start, start.AddDate(0, 1, 0)).
		Find(&month).Error; err != nil {
		return nil, err
	}
	for i := range month {
		st.MonthTotal = st.MonthTotal.Add(month[i].Totals().Total)
	}
	st.MonthTotal = money.Round(st.MonthTotal)

	if err := db.Preload("Client").Order("created_at DESC, id DESC").Limit(5).Find(&st.RecentInvoices).Error; err != nil {
		return nil, err
	}
	if err := db.Order("created_at DESC, id DESC").Limit(5).Find(&st.RecentClients).Error; err != nil {
		return nil, err
	}
	return st, nil
}
