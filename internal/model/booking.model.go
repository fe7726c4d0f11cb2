package model

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

// IsTerminal reports whether the booking is closed for good.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCancelled, BookingCompleted, BookingRefunded:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCanceled   PaymentStatus = "canceled"
)

const PaymentMethodWise = "wise"

// PaymentOutcome is the state a booking and its transaction move to
// after a provider status has been interpreted.
type PaymentOutcome struct {
	Transaction TransactionStatus
	Booking     BookingStatus
	Payment     PaymentStatus
}

type Booking struct {
	ID               int64         `json:"id"`
	UserID           int64         `json:"user_id"`
	ClassID          *int64        `json:"class_id,omitempty"`
	EventID          *int64        `json:"event_id,omitempty"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    string        `json:"payment_method"`
	TotalAmount      int64         `json:"total_amount"`
	AmountPaid       int64         `json:"amount_paid"`
	Currency         string        `json:"currency"`
	ConfirmationCode string        `json:"confirmation_code"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// BookingPaymentUpdate is the set of booking columns a payment event may write.
type BookingPaymentUpdate struct {
	Status        BookingStatus
	PaymentStatus PaymentStatus
	PaymentMethod string
	AmountPaid    int64
}

// Matches reports whether the booking already carries the update.
func (u BookingPaymentUpdate) Matches(b *Booking) bool {
	return b.Status == u.Status &&
		b.PaymentStatus == u.PaymentStatus &&
		b.PaymentMethod == u.PaymentMethod &&
		b.AmountPaid == u.AmountPaid
}

// BookingDetails is a booking with everything needed to talk to the customer about it.
type BookingDetails struct {
	Booking
	User  *User         `json:"user"`
	Class *ClassDetails `json:"class,omitempty"`
	Event *EventDetails `json:"event,omitempty"`
}

// Title returns the name of the booked class or event.
func (d *BookingDetails) Title() string {
	switch {
	case d.Class != nil:
		return d.Class.Title
	case d.Event != nil:
		return d.Event.Title
	}
	return "your booking"
}

func (d *BookingDetails) StartsAt() time.Time {
	switch {
	case d.Class != nil:
		return d.Class.StartTime
	case d.Event != nil:
		return d.Event.StartTime
	}
	return time.Time{}
}

func (d *BookingDetails) Venue() *Venue {
	switch {
	case d.Class != nil:
		return d.Class.Venue
	case d.Event != nil:
		return d.Event.Venue
	}
	return nil
}

// HostName is the instructor of a class or the organizer of an event.
func (d *BookingDetails) HostName() string {
	switch {
	case d.Class != nil && d.Class.Instructor != nil:
		return d.Class.Instructor.Name
	case d.Event != nil && d.Event.Organizer != nil:
		return d.Event.Organizer.FullName()
	}
	return ""
}

// Kind is "class" or "event".
func (d *BookingDetails) Kind() string {
	if d.Event != nil {
		return "event"
	}
	return "class"
}

// FormatAmount renders minor units as "12.50 EUR".
func FormatAmount(minor int64, currency string) string {
	s := fmt.Sprintf("%d.%02d", minor/100, abs(minor%100))
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
