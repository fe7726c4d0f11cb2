package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
)

var ErrUnknownEffect = errors.New("unknown effect kind")

// EventPublisher publishes integration events for other services.
type EventPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type EffectTriggers interface {
	BookingConfirmed(ctx context.Context, bookingID int64) error
	SendBookingConfirmationEmail(ctx context.Context, bookingID int64) error
	PaymentFailed(ctx context.Context, bookingID int64, reason string) error
}

// EffectExecutor performs the side effects of a committed reconciliation.
type EffectExecutor struct {
	triggers  EffectTriggers
	publisher EventPublisher
}

// NewEffectExecutor builds an executor; publisher may be nil, in which case
// status change events are dropped.
func NewEffectExecutor(triggers EffectTriggers, publisher EventPublisher) *EffectExecutor {
	return &EffectExecutor{triggers: triggers, publisher: publisher}
}

// Execute runs one effect. Email failures are logged and not returned so a
// retry never repeats a push that already went out.
func (e *EffectExecutor) Execute(ctx context.Context, eff model.Effect) error {
	start := time.Now()
	defer func() {
		prom.ObserveEffectDuration(string(eff.Kind), time.Since(start).Seconds())
	}()

	switch eff.Kind {
	case model.EffectBookingConfirmed:
		if err := e.triggers.BookingConfirmed(ctx, eff.BookingID); err != nil {
			return fmt.Errorf("booking confirmed notification: %w", err)
		}
		if err := e.triggers.SendBookingConfirmationEmail(ctx, eff.BookingID); err != nil {
			logger.Warn("booking confirmation email not sent", "booking_id", eff.BookingID, "error", err)
		}
		return nil

	case model.EffectPaymentFailed:
		if err := e.triggers.PaymentFailed(ctx, eff.BookingID, eff.Reason); err != nil {
			return fmt.Errorf("payment failed notification: %w", err)
		}
		return nil

	case model.EffectBookingStatusChanged:
		if e.publisher == nil {
			logger.Debug("no event publisher, dropping status change", "booking_id", eff.BookingID)
			return nil
		}
		key := "booking." + strings.ToLower(string(eff.BookingStatus))
		return e.publisher.PublishJSON(ctx, key, model.BookingStatusEvent{
			BookingID:         eff.BookingID,
			UserID:            eff.UserID,
			TransactionID:     eff.TransactionID,
			TransactionStatus: eff.TransactionStatus,
			BookingStatus:     eff.BookingStatus,
			PaymentStatus:     eff.PaymentStatus,
			OccurredAt:        eff.OccurredAt,
		})
	}
	return fmt.Errorf("%w: %q", ErrUnknownEffect, eff.Kind)
}

type EffectRunner interface {
	Execute(ctx context.Context, e model.Effect) error
}

// InlineSink executes effects in the calling goroutine.
type InlineSink struct {
	exec EffectRunner
}

func NewInlineSink(exec EffectRunner) *InlineSink {
	return &InlineSink{exec: exec}
}

func (s *InlineSink) Dispatch(ctx context.Context, effects []model.Effect) error {
	var errs []error
	for _, eff := range effects {
		if err := s.exec.Execute(ctx, eff); err != nil {
			logger.Error("effect failed", "kind", eff.Kind, "key", eff.Key(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FallbackSink hands effects to primary and, if that fails, to fallback.
type FallbackSink struct {
	primary  EffectSink
	fallback EffectSink
}

func NewFallbackSink(primary, fallback EffectSink) *FallbackSink {
	return &FallbackSink{primary: primary, fallback: fallback}
}

func (s *FallbackSink) Dispatch(ctx context.Context, effects []model.Effect) error {
	err := s.primary.Dispatch(ctx, effects)
	if err == nil {
		return nil
	}
	logger.Warn("primary effect sink failed, running fallback", "effects", len(effects), "error", err)
	return s.fallback.Dispatch(ctx, effects)
}
