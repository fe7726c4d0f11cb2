package wise

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	EventTransferStateChange    = "transfers#state-change"
	EventTransferStateChangeAlt = "transfer.state-change"
	EventFundsConverted         = "transfer.funds-converted"
	EventTransferSent           = "transfer.sent"
	EventBouncedBack            = "transfer.bounced-back"
	EventChargedBack            = "transfer.charged-back"
	EventTransferCancelled      = "transfer.cancelled"
)

// impliedStates are the event types that carry their state in the name.
var impliedStates = map[string]TransferState{
	EventFundsConverted:    StateFundsConverted,
	EventTransferSent:      StateOutgoingPaymentSent,
	EventBouncedBack:       StateBouncedBack,
	EventChargedBack:       StateChargedBack,
	EventTransferCancelled: StateCancelled,
}

// Event is a parsed Wise transfer webhook.
type Event struct {
	Type          string
	SchemaVersion string
	TransferID    string
	ResourceType  string
	ProfileID     string
	CurrentState  string
	PreviousState string
	OccurredAt    time.Time
}

// Handled reports whether the event type drives the reconciler.
func (e *Event) Handled() bool {
	if e.Type == EventTransferStateChange || e.Type == EventTransferStateChangeAlt {
		return true
	}
	_, ok := impliedStates[e.Type]
	return ok
}

// State is the transfer status the event reports. Explicit current_state
// wins over a state implied by the event type.
func (e *Event) State() string {
	if e.CurrentState != "" {
		return e.CurrentState
	}
	if s, ok := impliedStates[e.Type]; ok {
		return string(s)
	}
	return ""
}

type envelope struct {
	EventType     string     `json:"event_type"`
	SchemaVersion string     `json:"schema_version"`
	SentAt        string     `json:"sent_at"`
	Data          *eventData `json:"data"`
	Resource      *resource  `json:"resource"`
	CurrentState  string     `json:"current_state"`
	PreviousState string     `json:"previous_state"`
}

type eventData struct {
	Resource      *resource `json:"resource"`
	CurrentState  string    `json:"current_state"`
	PreviousState string    `json:"previous_state"`
	OccurredAt    string    `json:"occurred_at"`
}

type resource struct {
	ID        json.RawMessage `json:"id"`
	Type      string          `json:"type"`
	ProfileID json.RawMessage `json:"profile_id"`
}

// ParseEvent decodes a webhook body. Both the documented envelope with a
// data object and the short form with a top-level resource are accepted.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrInvalidPayload)
	}

	e := &Event{
		Type:          strings.TrimSpace(env.EventType),
		SchemaVersion: env.SchemaVersion,
		CurrentState:  env.CurrentState,
		PreviousState: env.PreviousState,
		OccurredAt:    parseTime(env.SentAt),
	}

	res := env.Resource
	if env.Data != nil {
		if env.Data.Resource != nil {
			res = env.Data.Resource
		}
		if env.Data.CurrentState != "" {
			e.CurrentState = env.Data.CurrentState
		}
		if env.Data.PreviousState != "" {
			e.PreviousState = env.Data.PreviousState
		}
		if t := parseTime(env.Data.OccurredAt); !t.IsZero() {
			e.OccurredAt = t
		}
	}

	if res != nil {
		id, err := rawID(res.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: resource id: %v", ErrInvalidPayload, err)
		}
		e.TransferID = id
		e.ResourceType = res.Type
		e.ProfileID, _ = rawID(res.ProfileID)
	}

	if e.Handled() && e.TransferID == "" {
		return nil, fmt.Errorf("%w: missing resource id", ErrInvalidPayload)
	}
	return e, nil
}

// rawID accepts a JSON number or string and returns its decimal text.
func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("not an integer: %s", n)
	}
	return n.String(), nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
