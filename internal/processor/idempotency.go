package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("effect already executed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	// ProcessedTTL bounds how long an executed effect key is remembered.
	// It must outlive the provider's redelivery window.
	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       7 * 24 * time.Hour,
		MaxRetries:         5,
		RetryKeyPrefix:     "effect:retry:",
		LockKeyPrefix:      "effect:lock:",
		ProcessedKeyPrefix: "effect:done:",
	}
}

// IdempotencyService keeps effect execution at most once per effect key
// across processor instances.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	Key        string
	RetryCount int
	IsRetry    bool
	token      []byte
	held       bool
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, key string) (*ProcessingContext, error) {
	done, err := s.IsProcessed(ctx, key)
	if err != nil {
		// a lost marker check risks a duplicate, a failed lock below does not
		logger.Warn("failed to check processed marker", "key", key, "error", err)
	} else if done {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, key)
	if err != nil {
		logger.Warn("failed to read retry counter", "key", key, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: key=%s, retries=%d", ErrMaxRetriesExceeded, key, retryCount)
	}

	token := []byte(uuid.NewString())
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+key, token, s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "key", key, "retry_count", retryCount)
	return &ProcessingContext{
		Key:        key,
		RetryCount: retryCount,
		IsRetry:    retryCount > 0,
		token:      token,
		held:       true,
	}, nil
}

// MarkSuccess and MarkFailure still write after the effect's own deadline
// has passed.
func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.Key, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	if err := s.redis.Del(ctx, s.config.RetryKeyPrefix+pc.Key); err != nil {
		logger.Warn("failed to clear retry counter", "key", pc.Key, "error", err)
	}
	return s.ReleaseLock(ctx, pc)
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	ctx = context.WithoutCancel(ctx)
	next, err := s.redis.IncrWithTTL(ctx, s.config.RetryKeyPrefix+pc.Key, s.config.ProcessedTTL)
	if err != nil {
		logger.Error("failed to increment retry counter", "key", pc.Key, "error", err)
		next = int64(pc.RetryCount + 1)
	}

	logger.Warn("effect failed, will retry",
		"key", pc.Key,
		"retry_count", next,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return s.ReleaseLock(ctx, pc)
}

// ReleaseLock drops the lock only while this holder still owns it.
func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.held {
		return nil
	}
	pc.held = false
	if _, err := s.redis.DelIfEquals(context.WithoutCancel(ctx), s.config.LockKeyPrefix+pc.Key, pc.token); err != nil {
		logger.Warn("failed to release lock", "key", pc.Key, "error", err)
		return err
	}
	return nil
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, key string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, _ := strconv.Atoi(string(raw))
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, key string) (bool, error) {
	return s.redis.Exists(ctx, s.config.ProcessedKeyPrefix+key)
}

// TryLock takes a plain mutual exclusion lock on key. The returned release
// function is a no-op once the lock expired and was taken by someone else.
func (s *IdempotencyService) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := []byte(uuid.NewString())
	lockKey := "lock:" + key
	ok, err := s.redis.SetNX(ctx, lockKey, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		if _, err := s.redis.DelIfEquals(context.Background(), lockKey, token); err != nil {
			logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, true, nil
}
