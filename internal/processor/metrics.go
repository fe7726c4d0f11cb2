package processor

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics are in-process counters logged by the processor. Prometheus
// series are recorded by the effect executor itself.
type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	durationNs atomic.Int64
	startedAt  time.Time
}

type Stats struct {
	Processed     int64
	Failed        int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{startedAt: time.Now()}
}

func (m *ServiceMetrics) RecordSuccess(d time.Duration) {
	m.processed.Add(1)
	m.durationNs.Add(int64(d))
}

func (m *ServiceMetrics) RecordFailure() {
	m.failed.Add(1)
}

func (m *ServiceMetrics) Snapshot() Stats {
	processed := m.processed.Load()
	st := Stats{
		Processed: processed,
		Failed:    m.failed.Load(),
		Uptime:    time.Since(m.startedAt),
	}
	if secs := st.Uptime.Seconds(); secs > 0 {
		st.RatePerSecond = float64(processed) / secs
	}
	if processed > 0 {
		st.AvgDuration = time.Duration(m.durationNs.Load() / processed)
	}
	return st
}
