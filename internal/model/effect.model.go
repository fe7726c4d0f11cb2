package model

import (
	"fmt"
	"time"
)

type EffectKind string

const (
	EffectBookingConfirmed     EffectKind = "booking.confirmed"
	EffectPaymentFailed        EffectKind = "payment.failed"
	EffectBookingStatusChanged EffectKind = "booking.status_changed"
)

// Effect is a side effect of a committed payment transition.
// Effects are executed after the database write, never inside it.
type Effect struct {
	ID                string            `json:"id"`
	Kind              EffectKind        `json:"kind"`
	BookingID         int64             `json:"booking_id"`
	TransactionID     int64             `json:"transaction_id"`
	UserID            int64             `json:"user_id"`
	TransactionStatus TransactionStatus `json:"transaction_status"`
	BookingStatus     BookingStatus     `json:"booking_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	ProviderStatus    string            `json:"provider_status"`
	Reason            string            `json:"reason,omitempty"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// Key identifies the effect for at-most-once execution: one kind per
// transaction status reached.
func (e Effect) Key() string {
	return fmt.Sprintf("%s:%d:%s", e.Kind, e.TransactionID, e.TransactionStatus)
}

// BookingStatusEvent is published to the message broker for other services.
type BookingStatusEvent struct {
	BookingID         int64             `json:"booking_id"`
	UserID            int64             `json:"user_id"`
	TransactionID     int64             `json:"transaction_id"`
	TransactionStatus TransactionStatus `json:"transaction_status"`
	BookingStatus     BookingStatus     `json:"booking_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	OccurredAt        time.Time         `json:"occurred_at"`
}
