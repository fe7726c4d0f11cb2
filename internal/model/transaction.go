package model

import "time"

type PaymentProvider string

const (
	ProviderWise PaymentProvider = "WISE"
)

type TransactionStatus string

const (
	TransactionCreated   TransactionStatus = "CREATED"
	TransactionSucceeded TransactionStatus = "SUCCEEDED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// transactionTransitions lists the forward moves a transaction may take.
// Anything not listed here is an out-of-order or duplicate provider event.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionCreated:   {TransactionSucceeded, TransactionFailed, TransactionCancelled},
	TransactionSucceeded: {TransactionFailed, TransactionRefunded},
	TransactionFailed:    {},
	TransactionCancelled: {},
	TransactionRefunded:  {},
}

// CanTransition reports whether moving from s to next is a forward step.
// Staying on the same status is always allowed.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Transaction struct {
	ID                int64             `json:"id"`
	BookingID         int64             `json:"booking_id"`
	Provider          PaymentProvider   `json:"provider"`
	ProviderPaymentID string            `json:"provider_payment_id"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
