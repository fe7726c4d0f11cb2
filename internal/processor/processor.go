package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/studio-gateway/internal/queue"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/redis"
	"github.com/nimasrn/studio-gateway/pkg/worker"
)

const ProcessingTimeout = time.Second * 20
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// Processor handles one kind of queue message.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

// Job is work the service runs on a fixed interval.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type ServiceConfig struct {
	Queue     queue.QueueConfig
	Consumers int
	Workers   int
}

// ProcessorService consumes the effect queue through a worker pool and runs
// the periodic notification jobs.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	config    ServiceConfig
	queues    []*queue.Queue
	processor Processor
	jobs      []Job
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, cfg ServiceConfig) *ProcessorService {
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		config:  cfg,
		metrics: NewServiceMetrics(),
		ctx:     ctx,
		cancel:  cancel,
		worker:  worker.NewWorkerManager(cfg.Workers*4, cfg.Workers, nil),
	}
}

func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processor = p
	logger.Info("registered processor", "type", p.GetType())
}

// Schedule adds a periodic job. Jobs must be added before Start.
func (s *ProcessorService) Schedule(job Job) {
	s.jobs = append(s.jobs, job)
}

func (s *ProcessorService) Start() error {
	logger.Info("starting processor service...")

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Info("worker manager stopped", "error", err)
		}
	}()

	if s.processor != nil {
		for i := 0; i < s.config.Consumers; i++ {
			qc := s.config.Queue
			qc.ConsumerName = fmt.Sprintf("%s-instance-%d", qc.ConsumerName, i)

			q, err := queue.NewQueue(s.adapter, qc)
			if err != nil {
				return fmt.Errorf("failed to create queue %d: %w", i, err)
			}
			if err := q.Consume(s.messageHandler); err != nil {
				return fmt.Errorf("failed to start consumer %d: %w", i, err)
			}
			s.queues = append(s.queues, q)
		}
	}

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(job)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("processor service started",
		"consumers", len(s.queues),
		"workers", s.config.Workers,
		"jobs", len(s.jobs))
	return nil
}

func (s *ProcessorService) runJob(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()

	for {
		s.runJobOnce(job)
		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) runJobOnce(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, job.Every)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	logger.Debug("scheduled job finished", "job", job.Name, "duration", time.Since(start))
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	st := s.metrics.Snapshot()
	logger.Info("effect metrics",
		"total_processed", st.Processed,
		"total_failed", st.Failed,
		"rate_per_second", st.RatePerSecond,
		"avg_duration_ms", st.AvgDuration.Milliseconds(),
		"uptime_seconds", st.Uptime.Seconds())

	for i, q := range s.queues {
		if qStats, err := q.GetStats(s.ctx); err == nil {
			logger.Info("queue stats", "queue", i, "total", qStats.TotalMessages, "pending", qStats.PendingMessages)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}

	if len(s.queues) == 0 {
		return
	}
	// consumers share one stream
	stats, err := s.queues[0].GetStats(ctx)
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > 10000 {
		logger.Warn("health check: effect queue lagging", "pending_messages", stats.PendingMessages)
	}
}

func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service...")

	s.cancel()

	var stopping sync.WaitGroup
	for i, q := range s.queues {
		stopping.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopping.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopping.Wait()

	s.worker.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("processor service stopped")
}

type jobResult struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands a message to the worker pool and waits for its result
// so the queue acks only what was processed.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	job := &jobResult{
		msg:        msg,
		resultChan: make(chan error, 1),
		ctx:        msgCtx,
	}
	if !s.worker.Enqueue(job) {
		return fmt.Errorf("worker pool stopped")
	}

	select {
	case err := <-job.resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, job interface{}) {
	jr, ok := job.(*jobResult)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jr.ctx.Done():
		logger.Warn("job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	err := s.processor.Process(jr.ctx, jr.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process message", "worker", workerIndex, "message_id", jr.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// resultChan is buffered; the waiter may already have given up
	jr.resultChan <- err
}
