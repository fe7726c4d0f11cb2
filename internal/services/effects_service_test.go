package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEffectTriggers struct {
	mock.Mock
}

func (m *MockEffectTriggers) BookingConfirmed(ctx context.Context, bookingID int64) error {
	return m.Called(ctx, bookingID).Error(0)
}

func (m *MockEffectTriggers) SendBookingConfirmationEmail(ctx context.Context, bookingID int64) error {
	return m.Called(ctx, bookingID).Error(0)
}

func (m *MockEffectTriggers) PaymentFailed(ctx context.Context, bookingID int64, reason string) error {
	return m.Called(ctx, bookingID, reason).Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	return m.Called(ctx, key, v).Error(0)
}

func effect(kind model.EffectKind) model.Effect {
	return model.Effect{
		ID:                "e-1",
		Kind:              kind,
		BookingID:         7,
		TransactionID:     3,
		UserID:            11,
		TransactionStatus: model.TransactionSucceeded,
		BookingStatus:     model.BookingConfirmed,
		PaymentStatus:     model.PaymentSucceeded,
		OccurredAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEffectExecutor_BookingConfirmed(t *testing.T) {
	tr := &MockEffectTriggers{}
	tr.On("BookingConfirmed", mock.Anything, int64(7)).Return(nil).Once()
	tr.On("SendBookingConfirmationEmail", mock.Anything, int64(7)).Return(errors.New("smtp down")).Once()

	err := NewEffectExecutor(tr, nil).Execute(context.Background(), effect(model.EffectBookingConfirmed))
	assert.NoError(t, err, "email failures are not retried")
	tr.AssertExpectations(t)
}

func TestEffectExecutor_NotificationStoreErrorIsReturned(t *testing.T) {
	tr := &MockEffectTriggers{}
	tr.On("BookingConfirmed", mock.Anything, int64(7)).Return(errors.New("db gone")).Once()

	err := NewEffectExecutor(tr, nil).Execute(context.Background(), effect(model.EffectBookingConfirmed))
	assert.Error(t, err)
	tr.AssertNotCalled(t, "SendBookingConfirmationEmail", mock.Anything, mock.Anything)
}

func TestEffectExecutor_PaymentFailed(t *testing.T) {
	tr := &MockEffectTriggers{}
	eff := effect(model.EffectPaymentFailed)
	eff.Reason = "bounced"
	tr.On("PaymentFailed", mock.Anything, int64(7), "bounced").Return(nil).Once()

	require.NoError(t, NewEffectExecutor(tr, nil).Execute(context.Background(), eff))
	tr.AssertExpectations(t)
}

func TestEffectExecutor_StatusChanged(t *testing.T) {
	eff := effect(model.EffectBookingStatusChanged)

	pub := &MockEventPublisher{}
	pub.On("PublishJSON", mock.Anything, "booking.confirmed", model.BookingStatusEvent{
		BookingID:         7,
		UserID:            11,
		TransactionID:     3,
		TransactionStatus: model.TransactionSucceeded,
		BookingStatus:     model.BookingConfirmed,
		PaymentStatus:     model.PaymentSucceeded,
		OccurredAt:        eff.OccurredAt,
	}).Return(nil).Once()

	require.NoError(t, NewEffectExecutor(&MockEffectTriggers{}, pub).Execute(context.Background(), eff))
	pub.AssertExpectations(t)

	assert.NoError(t, NewEffectExecutor(&MockEffectTriggers{}, nil).Execute(context.Background(), eff))
}

func TestEffectExecutor_UnknownKind(t *testing.T) {
	err := NewEffectExecutor(&MockEffectTriggers{}, nil).Execute(context.Background(), effect("booking.exploded"))
	assert.ErrorIs(t, err, ErrUnknownEffect)
}

func TestSinks(t *testing.T) {
	tr := &MockEffectTriggers{}
	tr.On("PaymentFailed", mock.Anything, int64(7), "").Return(nil)
	inline := NewInlineSink(NewEffectExecutor(tr, nil))
	effects := []model.Effect{effect(model.EffectPaymentFailed), effect(model.EffectBookingStatusChanged)}

	t.Run("inline runs every effect", func(t *testing.T) {
		require.NoError(t, inline.Dispatch(context.Background(), effects))
		tr.AssertNumberOfCalls(t, "PaymentFailed", 1)
	})

	t.Run("fallback used when primary fails", func(t *testing.T) {
		primary := &recordingSink{err: errors.New("redis down")}
		require.NoError(t, NewFallbackSink(primary, inline).Dispatch(context.Background(), effects))
		assert.Len(t, primary.batches, 1)
		tr.AssertNumberOfCalls(t, "PaymentFailed", 2)
	})

	t.Run("fallback unused when primary works", func(t *testing.T) {
		primary := &recordingSink{}
		fallback := &recordingSink{}
		require.NoError(t, NewFallbackSink(primary, fallback).Dispatch(context.Background(), effects))
		assert.Len(t, primary.batches, 1)
		assert.Empty(t, fallback.batches)
	})
}
