package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/logger"
)

const reminderMarkerTTL = 48 * time.Hour

type UpcomingCatalog interface {
	ClassesStartingBetween(ctx context.Context, from, to time.Time) ([]*model.ClassDetails, error)
	EventsStartingBetween(ctx context.Context, from, to time.Time) ([]*model.EventDetails, error)
}

type ReminderTriggers interface {
	ClassReminder(ctx context.Context, classID int64) (*BroadcastResult, error)
	EventReminder24h(ctx context.Context, eventID int64) (*BroadcastResult, error)
	EventReminder1h(ctx context.Context, eventID int64) (*BroadcastResult, error)
}

// ReminderScheduler finds classes and events entering a reminder window
// and fires the matching trigger once per item and lead time.
type ReminderScheduler struct {
	catalog  UpcomingCatalog
	triggers ReminderTriggers
	locker   Locker
	window   time.Duration
	now      func() time.Time
}

// NewReminderScheduler builds a scheduler that is expected to run every
// window. With a locker, overlapping runs never remind twice.
func NewReminderScheduler(catalog UpcomingCatalog, triggers ReminderTriggers, locker Locker, window time.Duration) *ReminderScheduler {
	if window <= 0 {
		window = time.Minute
	}
	return &ReminderScheduler{
		catalog:  catalog,
		triggers: triggers,
		locker:   locker,
		window:   window,
		now:      time.Now,
	}
}

func (r *ReminderScheduler) SendClassReminders(ctx context.Context) (int, error) {
	from, to := r.span(time.Hour)
	classes, err := r.catalog.ClassesStartingBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("upcoming classes: %w", err)
	}
	var sent int
	var errs []error
	for _, c := range classes {
		ok, err := r.once(ctx, fmt.Sprintf("reminder:class:%d:1h", c.ID), func(ctx context.Context) error {
			_, err := r.triggers.ClassReminder(ctx, c.ID)
			return err
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	logger.Info("class reminders sent", "candidates", len(classes), "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}

func (r *ReminderScheduler) SendEventReminders(ctx context.Context) (int, error) {
	leads := []struct {
		label string
		lead  time.Duration
		fire  func(context.Context, int64) (*BroadcastResult, error)
	}{
		{"24h", 24 * time.Hour, r.triggers.EventReminder24h},
		{"1h", time.Hour, r.triggers.EventReminder1h},
	}

	var sent int
	var errs []error
	for _, l := range leads {
		from, to := r.span(l.lead)
		events, err := r.catalog.EventsStartingBetween(ctx, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("upcoming events (%s): %w", l.label, err))
			continue
		}
		for _, e := range events {
			ok, err := r.once(ctx, fmt.Sprintf("reminder:event:%d:%s", e.ID, l.label), func(ctx context.Context) error {
				_, err := l.fire(ctx, e.ID)
				return err
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				sent++
			}
		}
	}
	logger.Info("event reminders sent", "sent", sent, "failed", len(errs))
	return sent, errors.Join(errs...)
}

// span is the start-time range checked for a lead time. It reaches one
// window back so the run after a failed or late tick still sees the item;
// the marker keeps the overlap from reminding twice.
func (r *ReminderScheduler) span(lead time.Duration) (time.Time, time.Time) {
	at := r.now().Add(lead)
	return at.Add(-r.window), at.Add(r.window)
}

// once runs fn unless another run already claimed key. The claim is kept
// on success and released on failure so a later run can retry.
func (r *ReminderScheduler) once(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	if r.locker == nil {
		return true, fn(ctx)
	}
	release, ok, err := r.locker.TryLock(ctx, key, reminderMarkerTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		release()
		return false, err
	}
	return true, nil
}
