package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

var ErrNoAvailableProviders = errors.New("no available providers")

const emailPath = "/api/v1/emails"

type SendEmailRequest struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	Tag     string   `json:"tag,omitempty"`
}

type SendEmailResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Provider   string    `json:"provider"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// StatusError is a non-success HTTP answer from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// Retryable is false for client errors other than rate limiting.
func (e *StatusError) Retryable() bool {
	if e.Code == fasthttp.StatusTooManyRequests {
		return true
	}
	return e.Code < 400 || e.Code >= 500
}

type Config struct {
	Providers               []ProviderConfig
	APIKey                  string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	ReadBufferSize          int
	WriteBufferSize         int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	EvaluateInterval        time.Duration

	// Dial overrides the transport; tests use in-memory listeners.
	Dial fasthttp.DialFunc
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = 30 * time.Second
	}
	if c.EvaluateInterval <= 0 {
		c.EvaluateInterval = 30 * time.Second
	}
}

// Client sends transactional email through the best scoring provider,
// failing over to the next one on transport errors and 5xx answers.
type Client struct {
	config    *Config
	providers []*Provider
	mu        sync.RWMutex
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	config.withDefaults()

	client := &Client{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range config.Providers {
		if pc.URL == "" {
			continue
		}
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
			Dial:                config.Dial,
		}
		client.providers = append(client.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("email provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	if len(client.providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	client.wg.Add(2)
	go client.healthChecker()
	go client.metricsCollector()

	return client, nil
}

func (c *Client) SelectBestProvider() (*Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Provider
	var bestScore float64
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		if score := p.CalculateScore(); score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

// SendEmail posts the message, retrying on transient failures up to MaxRetries.
func (c *Client) SendEmail(ctx context.Context, req *SendEmailRequest) (*SendEmailResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal email request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.SelectBestProvider()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		raw, err := c.doRequest(ctx, provider, fasthttp.MethodPost, emailPath, body)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				provider.metrics.RecordSuccess(latency)
				return nil, err
			}
			provider.metrics.RecordFailure()
			c.checkCircuitBreaker(provider)
			logger.Warn("email request failed", "error", err, "provider", provider.name, "attempt", attempt+1)
			lastErr = err
			continue
		}
		provider.metrics.RecordSuccess(latency)

		var resp SendEmailResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errors.Wrap(err, "unmarshal email response")
		}
		if resp.Provider == "" {
			resp.Provider = provider.name
		}
		return &resp, nil
	}

	return nil, errors.Wrapf(lastErr, "failed after %d attempts", c.config.MaxRetries+1)
}

func (c *Client) doRequest(ctx context.Context, provider *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.config.APIKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.config.APIKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return nil, &StatusError{Code: code, Body: string(resp.Body())}
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) checkCircuitBreaker(provider *Provider) {
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails < int32(c.config.CircuitBreakerThreshold) {
		return
	}
	provider.SetState(StateCircuitOpen)
	provider.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())
	logger.Warn("circuit breaker opened", "provider", provider.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
}

func (c *Client) healthChecker() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	c.mu.RLock()
	providers := append([]*Provider(nil), c.providers...)
	c.mu.RUnlock()

	for _, p := range providers {
		healthy := c.checkProviderHealth(ctx, p)
		p.lastHealthCheck.Store(time.Now().Unix())

		old := p.GetState()
		next := old
		switch {
		case !healthy:
			next = StateUnhealthy
		case old == StateUnhealthy || old == StateDegraded:
			next = StateHealthy
		}
		if next != old {
			p.SetState(next)
			logger.Info("email provider state changed", "provider", p.name, "old_state", old.String(), "new_state", next.String())
		}
	}
}

func (c *Client) checkProviderHealth(ctx context.Context, p *Provider) bool {
	raw, err := c.doRequest(ctx, p, fasthttp.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

func (c *Client) metricsCollector() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.EvaluateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evaluateProviders()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) evaluateProviders() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.providers {
		if p.GetState() == StateCircuitOpen {
			continue
		}
		rate := p.metrics.SuccessRate()
		avg := p.metrics.AvgLatencyMs()
		switch {
		case rate < 0.8 || avg > 5000:
			if p.GetState() != StateDegraded {
				p.SetState(StateDegraded)
				logger.Warn("email provider degraded", "provider", p.name, "success_rate", rate, "avg_latency_ms", avg)
			}
		case rate > 0.95 && avg < 2000:
			if p.GetState() != StateHealthy {
				p.SetState(StateHealthy)
				logger.Info("email provider recovered", "provider", p.name)
			}
		}
	}
}

// GetProviderStats returns provider statistics ordered by score.
func (c *Client) GetProviderStats() []ProviderStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		stats = append(stats, p.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Score > stats[j].Score })
	return stats
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		logger.Info("email gateway client closed")
	})
	return nil
}
