package transfer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rescale/photoup/internal/constants"
)

// Task processes one claimed job. A returned error marks that job failed;
// it never stops other jobs.
type Task func(ctx context.Context, index int) error

// PanicError is reported for a job whose task panicked.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Scheduler drains a list of jobs over a fixed number of workers.
//
// Workers claim indices from a shared cursor in input order, so a slow job
// never holds back the others. There is no retry and no timeout here; a
// stuck job is bounded only by whatever the task itself enforces.
type Scheduler struct {
	concurrency int

	// OnError is called once for every job that failed or panicked,
	// from the worker that ran it.
	OnError func(index int, err error)
}

// NewScheduler creates a scheduler running at most concurrency jobs at once.
// Out-of-range values are clamped to 1..32; 0 means the default of 4.
func NewScheduler(concurrency int) *Scheduler {
	return &Scheduler{concurrency: ClampConcurrency(concurrency)}
}

// ClampConcurrency normalizes a configured worker count.
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return constants.DefaultMaxConcurrent
	case n < constants.MinMaxConcurrent:
		return constants.MinMaxConcurrent
	case n > constants.MaxMaxConcurrent:
		return constants.MaxMaxConcurrent
	}
	return n
}

// Concurrency returns the worker limit.
func (s *Scheduler) Concurrency() int {
	return s.concurrency
}

// Run processes jobs 0..n-1 exactly once each and returns after all of them
// finished. It reports whether any job failed.
func (s *Scheduler) Run(ctx context.Context, n int, task Task) bool {
	if n <= 0 {
		return false
	}

	workers := s.concurrency
	if n < workers {
		workers = n
	}

	var (
		cursor     atomic.Int64
		hadFailure atomic.Bool
		wg         sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1) - 1)
				if i >= n {
					return
				}
				if err := runOne(ctx, i, task); err != nil {
					hadFailure.Store(true)
					if s.OnError != nil {
						s.OnError(i, err)
					}
				}
			}
		}()
	}

	wg.Wait()
	return hadFailure.Load()
}

// runOne isolates a single job so a panic fails only that job.
func runOne(ctx context.Context, index int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx, index)
}
