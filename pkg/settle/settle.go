// Package settle runs independent tasks concurrently and waits for every one
// of them, collecting each result or error instead of stopping at the first
// failure. Panics inside a task are recovered and reported as that task's error.
package settle

import (
	"context"
	"errors"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Outcome is the settled result of one task.
type Outcome[T any] struct {
	Value T
	Err   error
}

func (o Outcome[T]) OK() bool { return o.Err == nil }

// Map applies fn to every item with at most limit tasks in flight
// (limit <= 0 means one goroutine per item). Outcomes keep item order.
func Map[I, T any](ctx context.Context, items []I, limit int, fn func(ctx context.Context, item I) (T, error)) []Outcome[T] {
	out := make([]Outcome[T], len(items))
	if len(items) == 0 {
		return out
	}

	p := pool.New()
	if limit > 0 {
		p = p.WithMaxGoroutines(limit)
	}
	for i, item := range items {
		p.Go(func() {
			out[i] = run(ctx, item, fn)
		})
	}
	p.Wait()
	return out
}

// Run executes heterogeneous tasks concurrently and returns one error slot per task.
func Run(ctx context.Context, tasks ...func(ctx context.Context) error) []error {
	outcomes := Map(ctx, tasks, 0, func(ctx context.Context, task func(context.Context) error) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	errs := make([]error, len(outcomes))
	for i, o := range outcomes {
		errs[i] = o.Err
	}
	return errs
}

func run[I, T any](ctx context.Context, item I, fn func(context.Context, I) (T, error)) (o Outcome[T]) {
	var pc panics.Catcher
	pc.Try(func() {
		if err := ctx.Err(); err != nil {
			o.Err = err
			return
		}
		o.Value, o.Err = fn(ctx, item)
	})
	if r := pc.Recovered(); r != nil {
		o.Err = r.AsError()
	}
	return o
}

// Summary counts successes and failures and keeps the failure errors.
type Summary struct {
	Succeeded int
	Failed    int
	Errors    []error
}

func Summarize[T any](outcomes []Outcome[T]) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed++
			s.Errors = append(s.Errors, o.Err)
			continue
		}
		s.Succeeded++
	}
	return s
}

// Join folds the failures into one error, nil when everything succeeded.
func (s Summary) Join() error {
	return errors.Join(s.Errors...)
}
