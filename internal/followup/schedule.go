// Package followup schedules and sends WhatsApp service reminders.
package followup

import (
	"time"

	"github.com/motorworks/invoicegen/internal/models"
)

// DateOf returns the calendar date of t in loc, as midnight UTC.
// Every stored date uses this representation.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ScheduleNext returns last plus the override interval when set, else the global one.
func ScheduleNext(last time.Time, override *int, global int) time.Time {
	return last.AddDate(0, 0, Interval(override, global))
}

// Interval resolves the number of days between contacts.
func Interval(override *int, global int) int {
	if override != nil {
		return *override
	}
	return global
}

// Baseline is the date a schedule counts from: the later of the last service
// date and the date of the last successful send. Nil when neither is known.
func Baseline(f *models.FollowUp, loc *time.Location) *time.Time {
	var base *time.Time
	if f.LastServiceDate != nil {
		d := DateOf(*f.LastServiceDate, time.UTC)
		base = &d
	}
	if f.LastSentAt != nil {
		sent := DateOf(*f.LastSentAt, loc)
		if base == nil || sent.After(*base) {
			base = &sent
		}
	}
	return base
}

// Refresh recomputes the next due date from the baseline.
func Refresh(f *models.FollowUp, s *models.FollowUpSettings, loc *time.Location) {
	base := Baseline(f, loc)
	if base == nil {
		f.NextDueDate = nil
		return
	}
	next := ScheduleNext(*base, f.IntervalOverride, s.GlobalIntervalDays)
	f.NextDueDate = &next
}

// RegisterSuccess stamps the send time and reschedules from today.
func RegisterSuccess(f *models.FollowUp, s *models.FollowUpSettings, now, today time.Time) {
	sent := now.UTC()
	f.LastSentAt = &sent
	next := ScheduleNext(today, f.IntervalOverride, s.GlobalIntervalDays)
	f.NextDueDate = &next
	f.LastError = ""
	f.LastErrorAt = nil
}

// RegisterFailure records the error. The record stays active and keeps its due date.
func RegisterFailure(f *models.FollowUp, detail string, now time.Time) {
	at := now.UTC()
	f.LastError = detail
	f.LastErrorAt = &at
}

// IsDue reports whether f should be contacted on today.
func IsDue(f *models.FollowUp, today time.Time) bool {
	return f.IsActive && f.NextDueDate != nil && !f.NextDueDate.After(today)
}

// DaysSince returns the whole days from the last service date to today, or -1 when unknown.
func DaysSince(f *models.FollowUp, today time.Time) int {
	if f.LastServiceDate == nil {
		return -1
	}
	last := DateOf(*f.LastServiceDate, time.UTC)
	return int(today.Sub(last).Hours() / 24)
}
