package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/messaging"
	"github.com/motorworks/invoicegen/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Messenger delivers one message. Implementations report missing credentials as
// configuration errors and provider failures as transport errors.
type Messenger interface {
	Send(ctx context.Context, msg messaging.Message) (messaging.Receipt, error)
}

// Options tune a Service. Zero values fall back to sensible defaults.
type Options struct {
	BusinessName string
	Location     *time.Location
	Variables    VariableMap
	Now          func() time.Time
}

// Service owns follow-up persistence and delivery.
type Service struct {
	db        *gorm.DB
	messenger Messenger
	opts      Options
	logger    *zap.Logger
}

// NewService wires a Service.
func NewService(db *gorm.DB, messenger Messenger, opts Options, logger *zap.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Variables == nil {
		opts.Variables = DefaultVariables()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, messenger: messenger, opts: opts, logger: logger.Named("followup")}
}

// Today is the current calendar date in the business time zone.
func (s *Service) Today() time.Time {
	return DateOf(s.opts.Now(), s.opts.Location)
}

// Settings loads the singleton settings row.
func (s *Service) Settings(ctx context.Context) (*models.FollowUpSettings, error) {
	return models.LoadSettings(s.db.WithContext(ctx), s.opts.BusinessName)
}

// SettingsInput is an edit of the business-wide settings.
type SettingsInput struct {
	GlobalIntervalDays int
	BusinessName       string
	MessageTemplate    string
}

// UpdateSettings saves the settings and reschedules every record without a
// personal override. It returns the number of rescheduled records.
func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (int, error) {
	const op = "followup.UpdateSettings"
	if in.GlobalIntervalDays <= 0 {
		return 0, apperr.Invalid(op, "Follow-up interval must be at least one day.", map[string]string{"global_interval_days": "min"})
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return 0, err
	}
	settings.GlobalIntervalDays = in.GlobalIntervalDays
	settings.BusinessName = strings.TrimSpace(in.BusinessName)
	if strings.TrimSpace(in.MessageTemplate) != "" {
		settings.MessageTemplate = in.MessageTemplate
	}

	rescheduled := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(settings).Error; err != nil {
			return err
		}
		var records []models.FollowUp
		if err := tx.Where("interval_override IS NULL").Find(&records).Error; err != nil {
			return err
		}
		for i := range records {
			Refresh(&records[i], settings, s.opts.Location)
			if err := tx.Model(&records[i]).Update("next_due_date", records[i].NextDueDate).Error; err != nil {
				return err
			}
			rescheduled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("settings updated", zap.Int("interval_days", in.GlobalIntervalDays), zap.Int("rescheduled", rescheduled))
	return rescheduled, nil
}

// Schedule is the editable part of a follow-up record.
type Schedule struct {
	Active           bool
	LastServiceDate  *time.Time
	IntervalOverride *int
}

func validateSchedule(op string, sc Schedule) error {
	if sc.IntervalOverride != nil && *sc.IntervalOverride <= 0 {
		return apperr.Invalid(op, "Follow-up interval must be at least one day.", map[string]string{"interval_override": "min"})
	}
	return nil
}

func (s *Service) apply(f *models.FollowUp, sc Schedule, settings *models.FollowUpSettings) {
	f.IsActive = sc.Active
	f.LastServiceDate = nil
	if sc.LastServiceDate != nil {
		d := DateOf(*sc.LastServiceDate, time.UTC)
		f.LastServiceDate = &d
	}
	f.IntervalOverride = sc.IntervalOverride
	Refresh(f, settings, s.opts.Location)
}

// Enroll gets or creates the follow-up of a client, activates it and schedules it.
func (s *Service) Enroll(ctx context.Context, clientID uint, lastService *time.Time, override *int) (*models.FollowUp, error) {
	const op = "followup.Enroll"
	sc := Schedule{Active: true, LastServiceDate: lastService, IntervalOverride: override}
	if err := validateSchedule(op, sc); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var client models.Client
	if err := db.First(&client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing(op, "Client not found.")
		}
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	f := models.FollowUp{ClientID: client.ID}
	if err := db.Where(models.FollowUp{ClientID: client.ID}).FirstOrInit(&f).Error; err != nil {
		return nil, err
	}
	s.apply(&f, sc, settings)
	if err := db.Save(&f).Error; err != nil {
		return nil, err
	}
	f.Client = &client
	s.logger.Info("client enrolled", zap.Uint("client_id", client.ID), zap.Uint("followup_id", f.ID))
	return &f, nil
}

// Update edits an existing record and recomputes its due date.
func (s *Service) Update(ctx context.Context, id uint, sc Schedule) (*models.FollowUp, error) {
	const op = "followup.Update"
	if err := validateSchedule(op, sc); err != nil {
		return nil, err
	}
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	s.apply(f, sc, settings)
	if err := s.db.WithContext(ctx).Omit("Client", "Logs").Save(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// Get loads one record with its client.
func (s *Service) Get(ctx context.Context, id uint) (*models.FollowUp, error) {
	var f models.FollowUp
	if err := s.db.WithContext(ctx).Preload("Client").First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Missing("followup.Get", "Follow-up not found.")
		}
		return nil, err
	}
	return &f, nil
}

// List returns every record ordered by client name.
func (s *Service) List(ctx context.Context) ([]models.FollowUp, error) {
	var list []models.FollowUp
	err := s.db.WithContext(ctx).
		Joins("Client").
		Order(`"Client"."name"`).
		Find(&list).Error
	return list, err
}

// EligibleClients returns clients that are not enrolled yet.
func (s *Service) EligibleClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&models.FollowUp{}).Select("client_id")).
		Order("name").
		Find(&clients).Error
	return clients, err
}

// RecentLogs returns the newest message logs first.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]models.MessageLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []models.MessageLog
	err := s.db.WithContext(ctx).
		Preload("FollowUp.Client").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// Due returns active records whose due date is today or earlier.
func (s *Service) Due(ctx context.Context) ([]models.FollowUp, error) {
	var due []models.FollowUp
	err := s.db.WithContext(ctx).
		Preload("Client").
		Where("is_active = ? AND next_due_date IS NOT NULL AND next_due_date <= ?", true, s.Today()).
		Order("id").
		Find(&due).Error
	return due, err
}

// Send contacts the client of follow-up id. Validation failures and
// configuration failures leave no log entry; transport failures are logged
// and recorded on the follow-up.
func (s *Service) Send(ctx context.Context, id uint, trigger models.MessageTrigger) (*models.MessageLog, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, f, settings, trigger)
}

func (s *Service) send(ctx context.Context, f *models.FollowUp, settings *models.FollowUpSettings, trigger models.MessageTrigger) (*models.MessageLog, error) {
	const op = "followup.Send"
	if f.Client == nil {
		return nil, apperr.Missing(op, "Client not found.")
	}
	today := s.Today()
	fields := FieldsFor(f, f.Client.Name, settings, today)
	body := BuildMessage(settings.MessageTemplate, fields)

	to, err := messaging.NormalizeWhatsApp(f.Client.Phone)
	if err != nil {
		return nil, err
	}
	if s.messenger == nil {
		return nil, apperr.Config(op, "Messaging is not configured.")
	}

	receipt, err := s.messenger.Send(ctx, messaging.Message{
		To:        to,
		Body:      body,
		Variables: s.opts.Variables.Variables(fields),
	})
	if err != nil && !apperr.Is(err, apperr.Transport) {
		return nil, err
	}

	entry := models.MessageLog{FollowUpID: f.ID, Trigger: trigger, Body: body}
	if err != nil {
		RegisterFailure(f, err.Error(), s.opts.Now())
		entry.Status = models.MessageFailed
		entry.ErrorMessage = err.Error()
	} else {
		RegisterSuccess(f, settings, s.opts.Now(), today)
		entry.Status = models.MessageSent
		entry.ProviderSID = receipt.SID
	}

	saveErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Client", "Logs").Save(f).Error; err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
	if saveErr != nil {
		return nil, saveErr
	}

	if err != nil {
		s.logger.Warn("follow-up failed", zap.Uint("followup_id", f.ID), zap.Error(err))
		return &entry, err
	}
	s.logger.Info("follow-up sent", zap.Uint("followup_id", f.ID), zap.String("sid", receipt.SID), zap.String("trigger", string(trigger)))
	return &entry, nil
}

// BatchReport summarises one RunDue pass.
type BatchReport struct {
	Due     int      `json:"due"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Aborted bool     `json:"aborted"`
	Errors  []string `json:"errors,omitempty"`
}

// RunDue sends every due follow-up in turn. A configuration error stops the
// batch and is returned; other per-record failures are counted and skipped.
func (s *Service) RunDue(ctx context.Context) (BatchReport, error) {
	var report BatchReport
	due, err := s.Due(ctx)
	if err != nil {
		return report, err
	}
	report.Due = len(due)
	if len(due) == 0 {
		s.logger.Info("no follow-ups due")
		return report, nil
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return report, err
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}
		f := &due[i]
		name := ""
		if f.Client != nil {
			name = f.Client.Name
		}
		_, err := s.send(ctx, f, settings, models.TriggerScheduled)
		switch {
		case err == nil:
			report.Sent++
		case apperr.Is(err, apperr.Configuration):
			report.Aborted = true
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", name, apperr.MessageOf(err)))
			s.logger.Error("batch aborted", zap.String("client", name), zap.Error(err))
			return report, err
		case apperr.Is(err, apperr.Transport), apperr.Is(err, apperr.Validation), apperr.Is(err, apperr.NotFound):
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", name, apperr.MessageOf(err)))
		default:
			return report, err
		}
	}
	s.logger.Info("batch finished", zap.Int("due", report.Due), zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	return report, nil
}

// StatusUpdate is a provider delivery report.
type StatusUpdate struct {
	SID          string
	Status       string
	ErrorCode    string
	ErrorMessage string
}

var (
	successStatuses = map[string]bool{"sent": true, "delivered": true, "read": true}
	failureStatuses = map[string]bool{"failed": true, "undelivered": true}
)

// HandleStatus applies a delivery report. It returns true when the log entry
// changed. Unknown ids and intermediate statuses are acknowledged and ignored.
func (s *Service) HandleStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	const op = "followup.HandleStatus"
	sid := strings.TrimSpace(u.SID)
	if sid == "" {
		return false, apperr.Invalid(op, "Missing MessageSid", map[string]string{"MessageSid": "required"})
	}
	status := strings.ToLower(strings.TrimSpace(u.Status))

	db := s.db.WithContext(ctx)
	var entry models.MessageLog
	err := db.Preload("FollowUp").Where("provider_sid = ?", sid).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Debug("status for unknown message", zap.String("sid", sid))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var next models.MessageStatus
	switch {
	case successStatuses[status]:
		next = models.MessageSent
	case failureStatuses[status]:
		next = models.MessageFailed
	default:
		return false, nil
	}
	if entry.Status == next || entry.FollowUp == nil {
		return false, nil
	}

	settings, err := s.Settings(ctx)
	if err != nil {
		return false, err
	}
	f := entry.FollowUp
	updates := map[string]any{"status": next}
	if next == models.MessageFailed {
		detail := fmt.Sprintf("status=%s code=%s message=%s", status, strings.TrimSpace(u.ErrorCode), strings.TrimSpace(u.ErrorMessage))
		updates["error_message"] = detail
		RegisterFailure(f, detail, s.opts.Now())
	} else {
		RegisterSuccess(f, settings, s.opts.Now(), s.Today())
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MessageLog{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Omit("Client", "Logs").Save(f).Error
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("delivery status applied", zap.String("sid", sid), zap.String("status", status))
	return true, nil
}
