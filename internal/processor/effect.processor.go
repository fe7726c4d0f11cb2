package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/queue"
	"github.com/nimasrn/studio-gateway/pkg/logger"
)

type Executor interface {
	Execute(ctx context.Context, e model.Effect) error
}

// EffectProcessor runs queued booking effects at most once per effect key.
type EffectProcessor struct {
	executor    Executor
	idempotency *IdempotencyService
}

func NewEffectProcessor(executor Executor, idempotency *IdempotencyService) *EffectProcessor {
	return &EffectProcessor{
		executor:    executor,
		idempotency: idempotency,
	}
}

func (p *EffectProcessor) GetType() string {
	return "effect"
}

func (p *EffectProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var eff model.Effect
	if err := json.Unmarshal(msg.Data, &eff); err != nil {
		// a retry cannot fix a bad payload
		logger.Error("dropping undecodable effect", "message_id", msg.ID, "error", err)
		return nil
	}
	return p.Execute(ctx, eff)
}

// Execute runs eff unless an effect with the same key already ran. It is
// also used directly when the queue is unavailable.
func (p *EffectProcessor) Execute(ctx context.Context, eff model.Effect) error {
	key := eff.Key()

	pc, err := p.idempotency.AcquireProcessingLock(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("effect already executed, skipping", "key", key, "effect_id", eff.ID)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("giving up on effect", "key", key, "effect_id", eff.ID, "booking_id", eff.BookingID)
		return nil
	case err != nil:
		return err
	}
	defer p.idempotency.ReleaseLock(ctx, pc)

	logger.Info("executing effect",
		"key", key,
		"kind", eff.Kind,
		"booking_id", eff.BookingID,
		"retry_count", pc.RetryCount)

	if err := p.executor.Execute(ctx, eff); err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, pc, err); markErr != nil {
			logger.Error("failed to mark effect failure", "key", key, "error", markErr)
		}
		return err
	}

	if err := p.idempotency.MarkSuccess(ctx, pc); err != nil {
		// the effect ran; a redelivery would only repeat it
		logger.Error("failed to mark effect executed", "key", key, "error", err)
	}
	return nil
}
