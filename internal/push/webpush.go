package push

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const maxErrorBody = 512

type WebPushConfig struct {
	VapidPublicKey  string
	VapidPrivateKey string
	Subject         string
	DefaultTTL      int
	Timeout         time.Duration
}

// WebPushSender sends VAPID-signed, encrypted Web Push messages.
type WebPushSender struct {
	cfg    WebPushConfig
	client *http.Client
}

func NewWebPushSender(cfg WebPushConfig) *WebPushSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 86400
	}
	cfg.Subject = strings.TrimPrefix(cfg.Subject, "mailto:")
	return &WebPushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithHTTPClient replaces the transport. Tests point it at httptest servers.
func (s *WebPushSender) WithHTTPClient(c *http.Client) *WebPushSender {
	s.client = c
	return s
}

func (s *WebPushSender) Send(ctx context.Context, sub Subscription, payload []byte, opts Options) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	urgency := opts.Urgency
	if urgency == "" {
		urgency = UrgencyNormal
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		TTL:             ttl,
		Topic:           opts.Topic,
		Urgency:         webpush.Urgency(urgency),
		VAPIDPublicKey:  s.cfg.VapidPublicKey,
		VAPIDPrivateKey: s.cfg.VapidPrivateKey,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &SendError{
		StatusCode: resp.StatusCode,
		Endpoint:   sub.Endpoint,
		Body:       strings.TrimSpace(string(body)),
	}
}
