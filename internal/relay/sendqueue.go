package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitError is the transient delivery failure class: the platform
// rejected a send and named the wait required before retrying. The client
// adapter returns it distinguishably from permanent failures; only this
// class is retried by the SendQueue.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// DispatchFunc performs the actual network delivery of one unit.
type DispatchFunc func(ctx context.Context, unit *SendUnit) error

// Defaults for outbound pacing and retry bounds.
const (
	DefaultMessageDelay = 2000 * time.Millisecond
	DefaultMaxRetries   = 3
)

// SendQueue serializes all outbound traffic through a single consumer.
// Enqueue appends to the tail and starts the consumer if it is idle; the
// consumer paces dispatches with a fixed inter-message delay. A rate-limited
// unit goes back to the *head* of the queue and the consumer sleeps out the
// signaled wait; any other failure drops the unit. The consumer goes idle
// when the queue empties, and there is never more than one consumer.
type SendQueue struct {
	ctx        context.Context
	dispatch   DispatchFunc
	limiter    *rate.Limiter
	maxRetries int

	mu      sync.Mutex
	items   []*SendUnit
	running bool
	wg      sync.WaitGroup
}

// NewSendQueue creates a queue dispatching through dispatch, pacing sends
// delay apart. Zero delay/maxRetries select the defaults. ctx cancellation
// stops the consumer between dispatches and interrupts backoff sleeps.
func NewSendQueue(ctx context.Context, delay time.Duration, maxRetries int, dispatch DispatchFunc) *SendQueue {
	if delay <= 0 {
		delay = DefaultMessageDelay
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &SendQueue{
		ctx:        ctx,
		dispatch:   dispatch,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		maxRetries: maxRetries,
	}
}

// Enqueue appends a unit and wakes the consumer if idle. Safe to call from
// any goroutine (event handlers, album timers).
func (q *SendQueue) Enqueue(unit *SendUnit) {
	q.mu.Lock()
	q.items = append(q.items, unit)
	start := !q.running
	if start {
		q.running = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.consume()
	}
}

// Len returns the number of queued (not in-flight) units.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain blocks until the consumer has gone idle. Used on shutdown after the
// context is cancelled, and by tests.
func (q *SendQueue) Drain() {
	q.wg.Wait()
}

func (q *SendQueue) consume() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.ctx.Err() != nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		unit := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		// Inter-message pacing: one dispatch per delay window.
		if err := q.limiter.Wait(q.ctx); err != nil {
			q.requeueFront(unit)
			continue
		}

		err := q.dispatch(q.ctx, unit)
		if err == nil {
			continue
		}

		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			unit.retryCount++
			if unit.retryCount > q.maxRetries {
				slog.Error("send unit dropped: rate-limit retries exhausted",
					"unit_id", unit.ID, "kind", unit.Kind,
					"target", unit.Route.Key(), "attempts", unit.retryCount,
				)
				continue
			}
			slog.Warn("rate limited, requeueing at head",
				"unit_id", unit.ID, "retry", unit.retryCount,
				"wait", rateErr.RetryAfter, "target", unit.Route.Key(),
			)
			q.requeueFront(unit)
			select {
			case <-time.After(rateErr.RetryAfter):
			case <-q.ctx.Done():
			}
			continue
		}

		// Permanent failure class: retrying would waste the consumer slot.
		slog.Error("send failed, unit dropped",
			"unit_id", unit.ID, "kind", unit.Kind,
			"target", unit.Route.Key(), "error", err,
		)
	}
}

func (q *SendQueue) requeueFront(unit *SendUnit) {
	q.mu.Lock()
	q.items = append([]*SendUnit{unit}, q.items...)
	q.mu.Unlock()
}
