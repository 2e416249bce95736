package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"modelscout/internal/config"
	"modelscout/internal/utils/platformerrors"
)

// fakeClock is a manually advanced clock. After() channels fire when
// Advance moves the clock past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{at: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		timer.ch <- c.now
		return timer.ch
	}
	c.timers = append(c.timers, timer)
	return timer.ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var pending []*fakeTimer
	for _, timer := range c.timers {
		if !timer.at.After(c.now) {
			timer.ch <- c.now
		} else {
			pending = append(pending, timer)
		}
	}
	c.timers = pending
	c.mu.Unlock()
}

func budget(perMinute float64) config.RateLimitBudget {
	return config.RateLimitBudget{
		RequestsPerMinute: perMinute,
		BackoffMultiplier: 2,
		MaxBackoff:        config.Duration(5 * time.Minute),
		QueueDepth:        4,
	}
}

func TestAcquireFastPath(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}

	stats := limiter.Stats("p")
	if stats.Granted != 60 {
		t.Fatalf("granted = %d, want 60", stats.Granted)
	}
}

func TestAcquireUnknownProvider(t *testing.T) {
	limiter := NewLimiter(newFakeClock())
	err := limiter.Acquire(context.Background(), Request{Provider: "ghost"})
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
		t.Fatalf("error type = %v, want VALIDATION", platformerrors.TypeOf(err))
	}
}

func TestExhaustedBucketRejectsWithinDeadline(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("warmup acquire failed: %v", err)
		}
	}

	// Deadline shorter than the one second needed to refill one token.
	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(100*time.Millisecond))
	defer cancel()

	err := limiter.Acquire(ctx, Request{Provider: "p"})
	if err == nil {
		t.Fatal("expected rejection when deadline cannot cover the wait")
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeRateLimit) {
		t.Fatalf("error type = %v, want RATE_LIMIT", platformerrors.TypeOf(err))
	}
	if retryAfter := platformerrors.RetryAfterOf(err); retryAfter <= 0 {
		t.Fatalf("retry-after = %v, want > 0", retryAfter)
	}
}

func TestLazyRefillGrantsAfterAdvance(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("warmup acquire failed: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- limiter.Acquire(context.Background(), Request{Provider: "p"})
	}()

	// Let the waiter enqueue and compute its wait before advancing.
	waitForQueueDepth(t, limiter, "p", 1)

	if err := advanceUntil(t, clock, done, time.Second, 20); err != nil {
		t.Fatalf("acquire after refill failed: %v", err)
	}
}

// advanceUntil steps the fake clock until the pending acquire resolves.
// Stepping repeatedly covers the window between a waiter enqueueing and
// registering its timer.
func advanceUntil(t *testing.T, clock *fakeClock, done <-chan error, step time.Duration, maxSteps int) error {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		clock.Advance(step)
		select {
		case err := <-done:
			return err
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("operation did not complete under the fake clock")
	return nil
}

func TestTokenBucketCharged(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", config.RateLimitBudget{
		RequestsPerMinute: 1000,
		TokensPerMinute:   100,
		BackoffMultiplier: 2,
		MaxBackoff:        config.Duration(time.Minute),
		QueueDepth:        4,
	})

	if err := limiter.Acquire(context.Background(), Request{Provider: "p", TokenCost: 100}); err != nil {
		t.Fatalf("first token acquire failed: %v", err)
	}

	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(time.Second))
	defer cancel()
	if err := limiter.Acquire(ctx, Request{Provider: "p", TokenCost: 50}); err == nil {
		t.Fatal("expected rejection, token bucket is empty")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", config.RateLimitBudget{
		RequestsPerMinute: 60,
		BackoffMultiplier: 2,
		MaxBackoff:        config.Duration(8 * time.Second),
		QueueDepth:        4,
	})

	// First report: backoff equals the provider's retry-after.
	limiter.ReportQuotaExceeded("p", 5*time.Second)
	if !limiter.InBackoff("p") {
		t.Fatal("provider should be in backoff")
	}

	clock.Advance(5 * time.Second)
	if limiter.InBackoff("p") {
		t.Fatal("backoff should have expired")
	}

	// Consecutive reports double the window, capped at max backoff.
	limiter.ReportQuotaExceeded("p", 5*time.Second)
	clock.Advance(6 * time.Second)
	limiter.ReportQuotaExceeded("p", 5*time.Second)

	// Doubling 5s gives 10s but the cap is 8s; 9s past the report must
	// be clear of backoff.
	clock.Advance(9 * time.Second)
	if limiter.InBackoff("p") {
		t.Fatal("backoff exceeded the configured cap")
	}
}

func TestBackoffAffectsAcquireRetryAfter(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	limiter.ReportQuotaExceeded("p", 5*time.Second)
	clock.Advance(time.Second)

	ctx, cancel := context.WithDeadline(context.Background(), clock.Now().Add(time.Second))
	defer cancel()

	err := limiter.Acquire(ctx, Request{Provider: "p"})
	if err == nil {
		t.Fatal("expected rejection while in backoff")
	}
	retryAfter := platformerrors.RetryAfterOf(err)
	if retryAfter <= 0 || retryAfter > 4*time.Second {
		t.Fatalf("retry-after = %v, want in (0, 4s]", retryAfter)
	}
}

func TestSuccessfulConsumeResetsBackoffGrowth(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", config.RateLimitBudget{
		RequestsPerMinute: 60,
		BackoffMultiplier: 2,
		MaxBackoff:        config.Duration(time.Minute),
		QueueDepth:        4,
	})

	limiter.ReportQuotaExceeded("p", time.Second)
	clock.Advance(2 * time.Second)

	if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
		t.Fatalf("acquire after backoff failed: %v", err)
	}

	// The next report starts the progression over at retry-after.
	limiter.ReportQuotaExceeded("p", time.Second)
	clock.Advance(1100 * time.Millisecond)
	if limiter.InBackoff("p") {
		t.Fatal("backoff did not reset after a successful consume")
	}
}

func TestLowPriorityQueueEviction(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", config.RateLimitBudget{
		RequestsPerMinute: 60,
		BackoffMultiplier: 2,
		MaxBackoff:        config.Duration(time.Minute),
		QueueDepth:        1,
	})

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("warmup acquire failed: %v", err)
		}
	}

	first := make(chan error, 1)
	go func() {
		first <- limiter.Acquire(context.Background(), Request{Provider: "p", Priority: PriorityLow})
	}()
	waitForQueueDepth(t, limiter, "p", 1)

	// Second low-priority waiter overflows the depth-1 queue and evicts
	// the oldest one.
	second := make(chan error, 1)
	go func() {
		second <- limiter.Acquire(context.Background(), Request{Provider: "p", Priority: PriorityLow})
	}()

	select {
	case err := <-first:
		if err == nil {
			t.Fatal("evicted waiter should receive an error")
		}
		if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeRateLimit) {
			t.Fatalf("eviction error type = %v, want RATE_LIMIT", platformerrors.TypeOf(err))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("evicted waiter never unblocked")
	}

	if err := advanceUntil(t, clock, second, time.Second, 20); err != nil {
		t.Fatalf("surviving waiter failed: %v", err)
	}
}

func TestContextCancellationReleasesWaiter(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("warmup acquire failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- limiter.Acquire(ctx, Request{Provider: "p"})
	}()
	waitForQueueDepth(t, limiter, "p", 1)
	cancel()

	select {
	case err := <-done:
		if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeRateLimit) {
			t.Fatalf("error type = %v, want RATE_LIMIT", platformerrors.TypeOf(err))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled waiter never unblocked")
	}

	if depth := limiter.Stats("p").QueueDepth; depth != 0 {
		t.Fatalf("queue depth = %d after cancellation, want 0", depth)
	}
}

func TestEnqueueKeepsClassOrder(t *testing.T) {
	lowFirst := &waiter{priority: PriorityLow}
	highFirst := &waiter{priority: PriorityHigh}
	highSecond := &waiter{priority: PriorityHigh}
	lowSecond := &waiter{priority: PriorityLow}

	ps := &providerState{}
	ps.enqueue(lowFirst)
	ps.enqueue(highFirst)
	ps.enqueue(highSecond)
	ps.enqueue(lowSecond)

	want := []*waiter{highFirst, highSecond, lowFirst, lowSecond}
	if len(ps.queue) != len(want) {
		t.Fatalf("queue depth = %d, want %d", len(ps.queue), len(want))
	}
	for i, w := range want {
		if ps.queue[i] != w {
			t.Fatalf("queue[%d] holds the wrong waiter (class order broken at %d)", i, i)
		}
	}
}

func TestHighPriorityGrantOrderIsFIFO(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLimiter(clock)
	limiter.Configure("p", budget(60))

	for i := 0; i < 60; i++ {
		if err := limiter.Acquire(context.Background(), Request{Provider: "p"}); err != nil {
			t.Fatalf("warmup acquire failed: %v", err)
		}
	}

	first := make(chan error, 1)
	go func() {
		first <- limiter.Acquire(context.Background(), Request{Provider: "p", Priority: PriorityHigh})
	}()
	waitForQueueDepth(t, limiter, "p", 1)

	second := make(chan error, 1)
	go func() {
		second <- limiter.Acquire(context.Background(), Request{Provider: "p", Priority: PriorityHigh})
	}()
	waitForQueueDepth(t, limiter, "p", 2)

	// Small steps refill at most one token before the head resolves, so
	// the earlier waiter must be granted first.
	if err := advanceUntil(t, clock, first, 250*time.Millisecond, 40); err != nil {
		t.Fatalf("head high-priority waiter failed: %v", err)
	}
	select {
	case err := <-second:
		t.Fatalf("second high-priority waiter granted before the first (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := advanceUntil(t, clock, second, 250*time.Millisecond, 40); err != nil {
		t.Fatalf("second high-priority waiter failed: %v", err)
	}
}

func waitForQueueDepth(t *testing.T, limiter *Limiter, provider string, depth int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if limiter.Stats(provider).QueueDepth >= depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d", depth)
}
