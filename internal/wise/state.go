package wise

import (
	"strings"

	"github.com/nimasrn/studio-gateway/internal/model"
)

// TransferState is a Wise transfer status.
type TransferState string

const (
	StateIncomingPaymentWaiting TransferState = "incoming_payment_waiting"
	StateProcessing             TransferState = "processing"
	StateFundsConverted         TransferState = "funds_converted"
	StateOutgoingPaymentSent    TransferState = "outgoing_payment_sent"
	StateBouncedBack            TransferState = "bounced_back"
	StateChargedBack            TransferState = "charged_back"
	StateCancelled              TransferState = "cancelled"
	StateUnrecognized           TransferState = ""
)

var (
	outcomeSucceeded = model.PaymentOutcome{Transaction: model.TransactionSucceeded, Booking: model.BookingConfirmed, Payment: model.PaymentSucceeded}
	outcomeFailed    = model.PaymentOutcome{Transaction: model.TransactionFailed, Booking: model.BookingCancelled, Payment: model.PaymentFailed}
	outcomeCancelled = model.PaymentOutcome{Transaction: model.TransactionCancelled, Booking: model.BookingCancelled, Payment: model.PaymentCanceled}
	outcomePending   = model.PaymentOutcome{Transaction: model.TransactionCreated, Booking: model.BookingPending, Payment: model.PaymentProcessing}
)

var outcomes = map[TransferState]model.PaymentOutcome{
	StateIncomingPaymentWaiting: outcomePending,
	StateProcessing:             outcomePending,
	StateFundsConverted:         outcomeSucceeded,
	StateOutgoingPaymentSent:    outcomeSucceeded,
	StateBouncedBack:            outcomeFailed,
	StateChargedBack:            outcomeFailed,
	StateCancelled:              outcomeCancelled,
	StateUnrecognized:           outcomePending,
}

// KnownStates lists every state with its own mapping.
func KnownStates() []TransferState {
	return []TransferState{
		StateIncomingPaymentWaiting,
		StateProcessing,
		StateFundsConverted,
		StateOutgoingPaymentSent,
		StateBouncedBack,
		StateChargedBack,
		StateCancelled,
	}
}

// ParseState normalises a raw provider status. Anything not in KnownStates
// becomes StateUnrecognized.
func ParseState(raw string) TransferState {
	s := TransferState(strings.ToLower(strings.TrimSpace(raw)))
	if s == StateUnrecognized {
		return StateUnrecognized
	}
	if _, ok := outcomes[s]; ok {
		return s
	}
	return StateUnrecognized
}

func (s TransferState) Recognized() bool {
	return s != StateUnrecognized
}

// Outcome maps a transfer state to the transaction, booking and payment
// statuses it implies. Unrecognized states keep the payment in processing.
func Outcome(s TransferState) model.PaymentOutcome {
	if o, ok := outcomes[s]; ok {
		return o
	}
	return outcomePending
}
