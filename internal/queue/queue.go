package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/redis"
)

const metaPrefix = "meta_"

type Message struct {
	ID          string
	Data        []byte
	Metadata    map[string]string
	PublishedAt time.Time
	// Attempts is the number of earlier deliveries of this entry.
	Attempts int
}

// Handler processes one message. A nil return acks it; an error leaves it
// pending so it is reclaimed after the visibility timeout.
type Handler func(ctx context.Context, msg *Message) error

type QueueConfig struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	MaxRetries        int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	EnableDLQ         bool
}

// Queue is a Redis stream with one consumer group.
type Queue struct {
	adapter redis.RedisAdapter
	config  QueueConfig
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type QueueStats struct {
	TotalMessages   int64
	PendingMessages int64
	ConsumerCount   int64
}

func NewQueue(adapter redis.RedisAdapter, config QueueConfig) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := adapter.XGroupCreate(ctx, config.Name, config.ConsumerGroup); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return q, nil
}

func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]any{
		"data":      string(data),
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	for k, v := range metadata {
		values[metaPrefix+k] = v
	}

	id, err := q.adapter.XAdd(ctx, q.config.Name, values, q.config.MaxLen)
	if err != nil {
		return "", fmt.Errorf("failed to publish message: %w", err)
	}
	return id, nil
}

func (q *Queue) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.Publish(ctx, jsonData, metadata)
}

func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}
	q.handler = handler
	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.readNew()
			q.claimStuck()
		}
	}
}

func (q *Queue) readNew() {
	messages, err := q.adapter.XReadGroup(q.ctx, q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.BatchSize)
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Error("failed to read queue", "queue", q.config.Name, "error", err)
		}
		return
	}
	for _, sm := range messages {
		q.handle(decode(sm), 0)
	}
}

// claimStuck takes over entries another consumer left unacked for longer
// than the visibility timeout.
func (q *Queue) claimStuck() {
	pending, err := q.adapter.XPendingIdle(q.ctx, q.config.Name, q.config.ConsumerGroup, q.config.VisibilityTimeout, 100)
	if err != nil || len(pending) == 0 {
		return
	}

	attempts := make(map[string]int, len(pending))
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
		attempts[p.ID] = int(p.Deliveries)
	}

	messages, err := q.adapter.XClaim(q.ctx, q.config.Name, q.config.ConsumerGroup, q.config.ConsumerName, q.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Error("failed to claim pending messages", "queue", q.config.Name, "error", err)
		return
	}
	for _, sm := range messages {
		q.handle(decode(sm), attempts[sm.ID])
	}
}

func (q *Queue) handle(msg *Message, attempts int) {
	msg.Attempts = attempts
	if attempts >= q.config.MaxRetries {
		logger.Error("message exceeded max retries", "queue", q.config.Name, "message_id", msg.ID, "attempts", attempts)
		q.deadLetter(msg)
		q.ack(msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	if err := q.handler(ctx, msg); err != nil {
		logger.Warn("message handler failed, leaving pending", "queue", q.config.Name, "message_id", msg.ID, "attempts", attempts, "error", err)
		return
	}
	q.ack(msg.ID)
}

func (q *Queue) ack(id string) {
	if err := q.adapter.XAck(context.Background(), q.config.Name, q.config.ConsumerGroup, id); err != nil {
		logger.Error("failed to ack message", "queue", q.config.Name, "message_id", id, "error", err)
	}
}

func (q *Queue) deadLetter(msg *Message) {
	if !q.config.EnableDLQ {
		return
	}
	values := map[string]any{
		"data":           string(msg.Data),
		"original_id":    msg.ID,
		"attempts":       msg.Attempts,
		"failed_at":      time.Now().Unix(),
		"original_queue": q.config.Name,
	}
	for k, v := range msg.Metadata {
		values[metaPrefix+k] = v
	}
	if _, err := q.adapter.XAdd(context.Background(), q.DeadLetterName(), values, q.config.MaxLen); err != nil {
		logger.Error("failed to dead letter message", "queue", q.config.Name, "message_id", msg.ID, "error", err)
	}
}

func (q *Queue) DeadLetterName() string {
	return q.config.Name + ":dlq"
}

func decode(sm redis.StreamMessage) *Message {
	msg := &Message{
		ID:       sm.ID,
		Metadata: make(map[string]string),
	}
	for k, v := range sm.Values {
		s, _ := v.(string)
		switch {
		case k == "data":
			msg.Data = []byte(s)
		case k == "timestamp":
			if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
				msg.PublishedAt = time.Unix(unix, 0)
			}
		case strings.HasPrefix(k, metaPrefix):
			msg.Metadata[strings.TrimPrefix(k, metaPrefix)] = s
		}
	}
	return msg
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	total, err := q.adapter.XLen(ctx, q.config.Name)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{TotalMessages: total}

	pending, err := q.adapter.XPendingSummary(ctx, q.config.Name, q.config.ConsumerGroup)
	if err == nil && pending != nil {
		stats.PendingMessages = pending.Count
		stats.ConsumerCount = int64(len(pending.Consumers))
	}
	return stats, nil
}
