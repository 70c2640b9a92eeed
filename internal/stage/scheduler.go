// Package stage runs the consumer side of every pipeline stage: a Runner
// reads its streams through a consumer group, a Limiter bounds how many
// messages are processed at once and a RetryPolicy wraps outbound calls.
package stage

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Scheduler is the identity a Limiter is bound to. Each stage process owns
// one scheduler; limiters are only usable by the scheduler that made them.
type Scheduler struct {
	name string
}

// NewScheduler creates a scheduler identity.
func NewScheduler(name string) *Scheduler {
	return &Scheduler{name: name}
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}

// NewLimiter creates a concurrency limiter owned by s.
func (s *Scheduler) NewLimiter(n int64) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{owner: s, size: n, sem: semaphore.NewWeighted(n)}
}

// SchedulerMismatchError is returned when a limiter is used by a scheduler
// other than its owner.
type SchedulerMismatchError struct {
	Owner  string
	Caller string
}

func (e *SchedulerMismatchError) Error() string {
	return fmt.Sprintf("stage: limiter owned by scheduler %q used from scheduler %q", e.Owner, e.Caller)
}

// Limiter is a weighted semaphore bound to its owning Scheduler.
type Limiter struct {
	owner *Scheduler
	size  int64
	sem   *semaphore.Weighted
}

// Owner returns the scheduler the limiter belongs to.
func (l *Limiter) Owner() *Scheduler {
	return l.owner
}

// Size returns the number of concurrent slots.
func (l *Limiter) Size() int64 {
	return l.size
}

// Check verifies that s may use the limiter.
func (l *Limiter) Check(s *Scheduler) error {
	if s == nil || s != l.owner {
		return &SchedulerMismatchError{Owner: l.owner.Name(), Caller: s.Name()}
	}
	return nil
}

// Acquire takes one slot, blocking until one is free or ctx ends.
func (l *Limiter) Acquire(ctx context.Context, s *Scheduler) error {
	if err := l.Check(s); err != nil {
		return err
	}
	return l.sem.Acquire(ctx, 1)
}

// Release returns a slot taken with Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
