package processor

import (
	"context"
	"fmt"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// QueueSink hands committed effects to the effect queue.
type QueueSink struct {
	queue Publisher
}

func NewQueueSink(q Publisher) *QueueSink {
	return &QueueSink{queue: q}
}

func (s *QueueSink) Dispatch(ctx context.Context, effects []model.Effect) error {
	for _, e := range effects {
		meta := map[string]string{
			"kind":       string(e.Kind),
			"key":        e.Key(),
			"booking_id": fmt.Sprint(e.BookingID),
		}
		if _, err := s.queue.PublishJSON(ctx, e, meta); err != nil {
			return fmt.Errorf("enqueue effect %s: %w", e.Key(), err)
		}
	}
	return nil
}
