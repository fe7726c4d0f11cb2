package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

const latencyWindow = 100

// ProviderMetrics tracks request outcomes for one email API endpoint.
type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastErrorTime    atomic.Int64
	LastSuccessTime  atomic.Int64

	mu        sync.RWMutex
	latencies []int64
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{latencies: make([]int64, 0, latencyWindow)}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())

	m.mu.Lock()
	if len(m.latencies) == latencyWindow {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latencyMs)
	m.mu.Unlock()
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / total
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *ProviderMetrics) P95LatencyMs() int64 {
	m.mu.RLock()
	sorted := append([]int64(nil), m.latencies...)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type ProviderState int32

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	}
	return "UNKNOWN"
}

// Provider is one email API endpoint the client may route to.
type Provider struct {
	name             string
	url              string
	client           *fasthttp.Client
	metrics          *ProviderMetrics
	state            atomic.Int32
	weight           atomic.Int32
	lastHealthCheck  atomic.Int64
	circuitOpenUntil atomic.Int64
}

func NewProvider(name, url string, weight int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:    name,
		url:     url,
		client:  client,
		metrics: NewProviderMetrics(),
	}
	p.state.Store(int32(StateHealthy))
	p.weight.Store(int32(weight))
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) GetState() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

// IsAvailable half-opens an expired circuit by moving it to degraded.
func (p *Provider) IsAvailable() bool {
	switch p.GetState() {
	case StateCircuitOpen:
		if time.Now().Unix() > p.circuitOpenUntil.Load() {
			p.SetState(StateDegraded)
			return true
		}
		return false
	case StateUnhealthy:
		return false
	}
	return true
}

// CalculateScore ranks providers; higher is better and zero means unusable.
func (p *Provider) CalculateScore() float64 {
	if !p.IsAvailable() {
		return 0
	}

	success := p.metrics.SuccessRate() * 100

	latency := 100.0
	if avg := p.metrics.AvgLatencyMs(); avg > 0 {
		latency = 100.0 * (1.0 - float64(avg)/5000.0)
		if latency < 0 {
			latency = 0
		}
	}

	// each consecutive failure costs 10%, floored at 10%
	recent := 1.0 - float64(p.metrics.ConsecutiveFails.Load())*0.1
	if recent < 0.1 {
		recent = 0.1
	}

	state := 1.0
	if p.GetState() == StateDegraded {
		state = 0.5
	}

	return (success*0.4 + latency*0.4 + float64(p.weight.Load())*0.2) * recent * state
}

type ProviderStats struct {
	Name             string
	URL              string
	State            string
	Score            float64
	TotalRequests    int64
	SuccessfulReqs   int64
	FailedReqs       int64
	SuccessRate      float64
	AvgLatencyMs     int64
	P95LatencyMs     int64
	LastLatencyMs    int64
	ConsecutiveFails int32
}

func (p *Provider) Stats() ProviderStats {
	return ProviderStats{
		Name:             p.name,
		URL:              p.url,
		State:            p.GetState().String(),
		Score:            p.CalculateScore(),
		TotalRequests:    p.metrics.TotalRequests.Load(),
		SuccessfulReqs:   p.metrics.SuccessfulReqs.Load(),
		FailedReqs:       p.metrics.FailedReqs.Load(),
		SuccessRate:      p.metrics.SuccessRate(),
		AvgLatencyMs:     p.metrics.AvgLatencyMs(),
		P95LatencyMs:     p.metrics.P95LatencyMs(),
		LastLatencyMs:    p.metrics.LastLatencyMs.Load(),
		ConsecutiveFails: p.metrics.ConsecutiveFails.Load(),
	}
}
