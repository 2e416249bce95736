package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"modelscout/internal/config"
	"modelscout/internal/infrastructure/metrics"
	"modelscout/internal/utils/platformerrors"
)

// Priority classes for queued acquisitions. High-priority entries queue
// ahead of low-priority ones; low-priority depth is capped.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// Request asks the limiter for permission to make one outbound call.
// TokenCost is consumed from the provider's token-usage bucket only when
// declared (> 0); request-count buckets are always charged.
type Request struct {
	Provider  string
	TokenCost float64
	Priority  Priority
}

// Stats are cumulative per-provider limiter counters.
type Stats struct {
	Total       int64         `json:"total"`
	Granted     int64         `json:"granted"`
	Rejected    int64         `json:"rejected"`
	AverageWait time.Duration `json:"average_wait"`
	InBackoff   bool          `json:"in_backoff"`
	QueueDepth  int           `json:"queue_depth"`
}

// bucket is one continuously refilling token bucket. Tokens accumulate
// fractionally and are clamped to [0, capacity]; refill is computed
// lazily from elapsed wall-clock time, there is no background timer.
type bucket struct {
	name       string
	capacity   float64
	perSecond  float64
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.perSecond)
		b.lastRefill = now
	}
}

// waitFor returns how long until the bucket holds `needed` tokens.
func (b *bucket) waitFor(needed float64) time.Duration {
	if b.tokens >= needed {
		return 0
	}
	missing := needed - b.tokens
	return time.Duration(missing / b.perSecond * float64(time.Second))
}

type waiter struct {
	priority Priority
	// ch receives nil when the waiter reaches the queue head and may try
	// to consume, or a terminal error when it is evicted.
	ch chan error
}

type providerState struct {
	mu sync.Mutex

	requestBuckets []*bucket
	tokenBucket    *bucket

	backoffUntil      time.Time
	backoffAttempts   int
	backoffMultiplier float64
	maxBackoff        time.Duration

	queue    []*waiter
	queueCap int

	total     int64
	granted   int64
	rejected  int64
	totalWait time.Duration
}

// Limiter enforces per-provider quota budgets for all outbound adapter
// calls. Bucket state is owned and mutated exclusively inside the
// acquire/refill path.
type Limiter struct {
	mu        sync.RWMutex
	providers map[string]*providerState
	clock     Clock
}

// NewLimiter creates a limiter with no configured providers.
func NewLimiter(clock Clock) *Limiter {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Limiter{
		providers: make(map[string]*providerState),
		clock:     clock,
	}
}

// Configure registers (or replaces) a provider's quota budget.
func (l *Limiter) Configure(provider string, budget config.RateLimitBudget) {
	now := l.clock.Now()
	ps := &providerState{
		backoffMultiplier: budget.BackoffMultiplier,
		maxBackoff:        budget.MaxBackoff.Std(),
		queueCap:          budget.QueueDepth,
	}
	if ps.backoffMultiplier < 1 {
		ps.backoffMultiplier = 2
	}
	if ps.maxBackoff <= 0 {
		ps.maxBackoff = 5 * time.Minute
	}
	if ps.queueCap <= 0 {
		ps.queueCap = 64
	}

	addBucket := func(name string, capacity float64, window time.Duration) {
		if capacity <= 0 {
			return
		}
		ps.requestBuckets = append(ps.requestBuckets, &bucket{
			name:       name,
			capacity:   capacity,
			perSecond:  capacity / window.Seconds(),
			tokens:     capacity,
			lastRefill: now,
		})
	}
	addBucket("minute", budget.RequestsPerMinute, time.Minute)
	addBucket("hour", budget.RequestsPerHour, time.Hour)
	addBucket("day", budget.RequestsPerDay, 24*time.Hour)

	if budget.TokensPerMinute > 0 {
		ps.tokenBucket = &bucket{
			name:       "tokens_minute",
			capacity:   budget.TokensPerMinute,
			perSecond:  budget.TokensPerMinute / 60,
			tokens:     budget.TokensPerMinute,
			lastRefill: now,
		}
	}

	l.mu.Lock()
	l.providers[provider] = ps
	l.mu.Unlock()
}

func (l *Limiter) provider(name string) (*providerState, error) {
	l.mu.RLock()
	ps, ok := l.providers[name]
	l.mu.RUnlock()
	if !ok {
		return nil, platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure,
			platformerrors.ErrorTypeValidation,
			fmt.Sprintf("provider %q is not configured in the rate limiter", name), nil,
			"5b2c89f3-93a1-4a6e-9f36-8f1f0f0f71aa")
	}
	return ps, nil
}

// waitNeeded returns the time until the request could be satisfied.
// Caller must hold ps.mu. Buckets are refilled as a side effect.
func (ps *providerState) waitNeeded(now time.Time, req Request) time.Duration {
	var wait time.Duration

	if remaining := ps.backoffUntil.Sub(now); remaining > 0 {
		wait = remaining
	}

	for _, b := range ps.requestBuckets {
		b.refill(now)
		if w := b.waitFor(1); w > wait {
			wait = w
		}
	}
	if req.TokenCost > 0 && ps.tokenBucket != nil {
		ps.tokenBucket.refill(now)
		if w := ps.tokenBucket.waitFor(req.TokenCost); w > wait {
			wait = w
		}
	}
	return wait
}

// consume charges every applicable bucket. Caller must hold ps.mu and
// have verified capacity at the same `now`.
func (ps *providerState) consume(now time.Time, req Request) {
	for _, b := range ps.requestBuckets {
		b.refill(now)
		b.tokens = math.Max(0, b.tokens-1)
	}
	if req.TokenCost > 0 && ps.tokenBucket != nil {
		ps.tokenBucket.refill(now)
		ps.tokenBucket.tokens = math.Max(0, ps.tokenBucket.tokens-req.TokenCost)
	}
	ps.backoffAttempts = 0
}

func (ps *providerState) signalHead() {
	if len(ps.queue) > 0 {
		select {
		case ps.queue[0].ch <- nil:
		default:
		}
	}
}

// enqueue inserts the waiter behind every queued entry of its own class:
// high-priority waiters go ahead of low-priority ones, strict FIFO
// within each class. Caller must hold ps.mu.
func (ps *providerState) enqueue(w *waiter) {
	insert := len(ps.queue)
	if w.priority == PriorityHigh {
		insert = 0
		for insert < len(ps.queue) && ps.queue[insert].priority == PriorityHigh {
			insert++
		}
	}
	ps.queue = append(ps.queue, nil)
	copy(ps.queue[insert+1:], ps.queue[insert:])
	ps.queue[insert] = w
}

func (ps *providerState) removeWaiter(w *waiter) {
	for i, queued := range ps.queue {
		if queued == w {
			wasHead := i == 0
			ps.queue = append(ps.queue[:i], ps.queue[i+1:]...)
			if wasHead {
				ps.signalHead()
			}
			return
		}
	}
}

// Acquire blocks until the provider has capacity for the request, the
// context expires, or the waiter is evicted from a full queue. Waiters
// are strict FIFO within a priority class.
func (l *Limiter) Acquire(ctx context.Context, req Request) error {
	ps, err := l.provider(req.Provider)
	if err != nil {
		return err
	}

	enteredAt := l.clock.Now()

	ps.mu.Lock()
	ps.total++

	// Fast path: nobody queued and capacity available now.
	if len(ps.queue) == 0 {
		if wait := ps.waitNeeded(enteredAt, req); wait == 0 {
			ps.consume(enteredAt, req)
			ps.granted++
			ps.mu.Unlock()
			metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "granted").Inc()
			return nil
		}
	}

	w := &waiter{priority: req.Priority, ch: make(chan error, 1)}
	if req.Priority == PriorityLow && ps.evictIfFull(ctx, req.Provider) {
		metrics.RateLimitEvictionsTotal.WithLabelValues(req.Provider).Inc()
	}
	ps.enqueue(w)
	if ps.queue[0] == w {
		w.ch <- nil
	}
	ps.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			ps.mu.Lock()
			ps.removeWaiter(w)
			ps.rejected++
			remaining := ps.waitNeeded(l.clock.Now(), req)
			ps.mu.Unlock()
			metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "timeout").Inc()
			return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
				platformerrors.ErrorTypeRateLimit,
				fmt.Sprintf("rate limit wait for provider %q abandoned: %v", req.Provider, ctx.Err()), ctx.Err(),
				"d41b3c02-7a56-41f1-9c93-2f6e5b7b9d14").WithRetryAfter(remaining)

		case err := <-w.ch:
			if err != nil {
				// Evicted from a full low-priority queue.
				ps.mu.Lock()
				ps.rejected++
				ps.mu.Unlock()
				return err
			}

			ps.mu.Lock()
			// A high-priority arrival may have displaced this waiter from
			// the head; it will be re-signaled when it reaches the front.
			if len(ps.queue) == 0 || ps.queue[0] != w {
				ps.mu.Unlock()
				continue
			}
			now := l.clock.Now()
			wait := ps.waitNeeded(now, req)
			if wait == 0 {
				ps.consume(now, req)
				ps.granted++
				ps.totalWait += now.Sub(enteredAt)
				ps.removeWaiter(w)
				ps.mu.Unlock()
				metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "granted").Inc()
				metrics.RateLimitWaitSeconds.WithLabelValues(req.Provider).Observe(now.Sub(enteredAt).Seconds())
				return nil
			}

			// Capacity is `wait` away. Fail fast when the caller's
			// deadline cannot cover it.
			if deadline, ok := ctx.Deadline(); ok && now.Add(wait).After(deadline) {
				ps.removeWaiter(w)
				ps.rejected++
				ps.mu.Unlock()
				metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "rejected").Inc()
				return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
					platformerrors.ErrorTypeRateLimit,
					fmt.Sprintf("provider %q has no capacity within the caller deadline", req.Provider), nil,
					"9a3f2d6c-64b8-46f2-8e5d-07e9b4a2c931").WithRetryAfter(wait)
			}
			ps.mu.Unlock()

			select {
			case <-ctx.Done():
				ps.mu.Lock()
				ps.removeWaiter(w)
				ps.rejected++
				remaining := ps.waitNeeded(l.clock.Now(), req)
				ps.mu.Unlock()
				metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "timeout").Inc()
				return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
					platformerrors.ErrorTypeRateLimit,
					fmt.Sprintf("rate limit wait for provider %q abandoned: %v", req.Provider, ctx.Err()), ctx.Err(),
					"e7c1a8b4-0f29-4d47-b3aa-51c0de6f8a02").WithRetryAfter(remaining)
			case err := <-w.ch:
				// Evicted (or re-signaled) while sleeping out the wait.
				if err != nil {
					ps.mu.Lock()
					ps.rejected++
					ps.mu.Unlock()
					metrics.RateLimitAcquiresTotal.WithLabelValues(req.Provider, "rejected").Inc()
					return err
				}
				// Hand the head signal back so the outer loop re-checks.
				select {
				case w.ch <- nil:
				default:
				}
			case <-l.clock.After(wait):
				// Retry consumption at a fresh clock reading. Non-blocking:
				// an eviction notice may already occupy the buffer.
				select {
				case w.ch <- nil:
				default:
				}
			}
		}
	}
}

// evictIfFull drops the oldest low-priority waiter when the low-priority
// backlog is at capacity. Caller must hold ps.mu.
func (ps *providerState) evictIfFull(ctx context.Context, provider string) bool {
	lowDepth := 0
	oldestLow := -1
	for i, queued := range ps.queue {
		if queued.priority == PriorityLow {
			lowDepth++
			if oldestLow == -1 {
				oldestLow = i
			}
		}
	}
	if lowDepth < ps.queueCap || oldestLow == -1 {
		return false
	}

	evicted := ps.queue[oldestLow]
	wasHead := oldestLow == 0
	ps.queue = append(ps.queue[:oldestLow], ps.queue[oldestLow+1:]...)
	evictionErr := platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
		platformerrors.ErrorTypeRateLimit,
		fmt.Sprintf("provider %q wait queue is full, oldest waiter dropped", provider), nil,
		"1fa6c2e8-b574-4a9f-9ce2-6d3b8e0f44c7")
	// The buffer may hold a stale head signal; displace it so the
	// eviction notice is never lost.
	for {
		select {
		case evicted.ch <- evictionErr:
		default:
			select {
			case <-evicted.ch:
			default:
			}
			continue
		}
		break
	}
	if wasHead {
		ps.signalHead()
	}
	return true
}

// ReportQuotaExceeded puts the provider into backoff after it signaled
// quota exhaustion. The deadline grows exponentially with consecutive
// reports and is capped at the provider's max backoff. Backoff clears
// automatically once the deadline passes.
func (l *Limiter) ReportQuotaExceeded(provider string, providerRetryAfter time.Duration) {
	ps, err := l.provider(provider)
	if err != nil {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.backoffAttempts++
	backoff := providerRetryAfter
	if backoff <= 0 {
		backoff = time.Second
	}
	for i := 1; i < ps.backoffAttempts; i++ {
		backoff = time.Duration(float64(backoff) * ps.backoffMultiplier)
		if backoff >= ps.maxBackoff {
			break
		}
	}
	if backoff > ps.maxBackoff {
		backoff = ps.maxBackoff
	}

	until := l.clock.Now().Add(backoff)
	if until.After(ps.backoffUntil) {
		ps.backoffUntil = until
	}
	metrics.RateLimitBackoffsTotal.WithLabelValues(provider).Inc()
}

// InBackoff reports whether the provider is currently blocked.
func (l *Limiter) InBackoff(provider string) bool {
	ps, err := l.provider(provider)
	if err != nil {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.backoffUntil.After(l.clock.Now())
}

// Stats returns cumulative counters for one provider.
func (l *Limiter) Stats(provider string) Stats {
	ps, err := l.provider(provider)
	if err != nil {
		return Stats{}
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	stats := Stats{
		Total:      ps.total,
		Granted:    ps.granted,
		Rejected:   ps.rejected,
		InBackoff:  ps.backoffUntil.After(l.clock.Now()),
		QueueDepth: len(ps.queue),
	}
	if ps.granted > 0 {
		stats.AverageWait = ps.totalWait / time.Duration(ps.granted)
	}
	return stats
}

// Providers lists configured provider names.
func (l *Limiter) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	return names
}
