package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Urgency string

const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

var ErrSubscriptionGone = errors.New("push: subscription gone")

// Options are per-message delivery hints for the push service.
type Options struct {
	Urgency Urgency
	TTL     int
	Topic   string
}

// Subscription is one registered browser or device endpoint.
type Subscription struct {
	ID       int64
	Endpoint string
	P256dh   string
	Auth     string
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	URL                string         `json:"url,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction"`
	Data               map[string]any `json:"data,omitempty"`
}

func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Sender delivers an encoded payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload []byte, opts Options) error
}

// SendError is a non-2xx answer from the push service.
type SendError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("push: %s answered %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsGone reports whether the push service says the endpoint no longer exists.
func (e *SendError) IsGone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

func (e *SendError) Is(target error) bool {
	return target == ErrSubscriptionGone && e.IsGone()
}

// IsGone reports whether err marks the subscription as permanently invalid.
func IsGone(err error) bool {
	return errors.Is(err, ErrSubscriptionGone)
}
