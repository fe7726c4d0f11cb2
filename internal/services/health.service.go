package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthService struct {
	checks map[string]Pinger
}

func NewHealthService(checks map[string]Pinger) *HealthService {
	return &HealthService{checks: checks}
}

// Check pings every dependency and returns "ok" or the error per name.
func (h *HealthService) Check(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	var errs []error
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status[name] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		status[name] = "ok"
	}
	return status, errors.Join(errs...)
}

func (h *HealthService) Get() error {
	_, err := h.Check(context.Background())
	return err
}
