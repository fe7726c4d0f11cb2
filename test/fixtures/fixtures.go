package fixtures

import (
	"fmt"

	"github.com/nimasrn/studio-gateway/internal/wise"
)

const (
	WebhookSecret   = "whsec_e2e"
	SignatureHeader = "X-Signature-SHA256"
)

// TransferSent is the short webhook form Wise sends for a completed payout.
func TransferSent(transferID string) []byte {
	return []byte(fmt.Sprintf(`{"event_type":%q,"resource":{"id":%q}}`, wise.EventTransferSent, transferID))
}

// StateChange is the documented envelope with an explicit current_state.
func StateChange(transferID string, previous, current wise.TransferState) []byte {
	return []byte(fmt.Sprintf(`{
  "event_type": %q,
  "schema_version": "2.0.0",
  "sent_at": "2026-03-01T12:00:00Z",
  "data": {
    "resource": {"type": "transfer", "id": %q, "profile_id": 42},
    "current_state": %q,
    "previous_state": %q,
    "occurred_at": "2026-03-01T11:59:58Z"
  }
}`, wise.EventTransferStateChange, transferID, current, previous))
}

// BalanceDeposit is an event type the gateway acknowledges and ignores.
func BalanceDeposit() []byte {
	return []byte(`{"event_type":"balances#credit","data":{"resource":{"id":9,"type":"balance-account"}}}`)
}

var (
	MalformedPayloads = [][]byte{
		[]byte(`{`),
		[]byte(`{"resource":{"id":"T1"}}`),
		[]byte(fmt.Sprintf(`{"event_type":%q}`, wise.EventTransferSent)),
	}

	// FailureStates are the transfer states that cancel a booking.
	FailureStates = []wise.TransferState{
		wise.StateBouncedBack,
		wise.StateChargedBack,
		wise.StateCancelled,
	}
)

// Sign returns the signature header value for body under WebhookSecret.
func Sign(body []byte) string {
	return wise.NewVerifier(WebhookSecret).Sign(body)
}
