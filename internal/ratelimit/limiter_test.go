package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewStoreRateLimiter(t *testing.T) {
	tests := []struct {
		rate      float64
		wantNil   bool
		wantBurst float64
	}{
		{rate: 0, wantNil: true},
		{rate: -1, wantNil: true},
		{rate: 2, wantBurst: DefaultBurst},
		{rate: 50, wantBurst: 50},
	}

	for _, tt := range tests {
		rl := NewStoreRateLimiter(tt.rate)
		if tt.wantNil {
			if rl != nil {
				t.Errorf("NewStoreRateLimiter(%v) should be unlimited", tt.rate)
			}
			continue
		}
		if rl == nil {
			t.Fatalf("NewStoreRateLimiter(%v) = nil", tt.rate)
		}
		if got := rl.GetCurrentTokens(); got < tt.wantBurst-0.01 || got > tt.wantBurst {
			t.Errorf("NewStoreRateLimiter(%v) starts with %.2f tokens, want %.0f", tt.rate, got, tt.wantBurst)
		}
	}
}

func TestNilLimiterNeverBlocks(t *testing.T) {
	var rl *RateLimiter
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx); err != nil {
		t.Errorf("nil limiter Wait() = %v", err)
	}
	rl.Drain()
	rl.SetCooldown(time.Second)
	if rl.CooldownRemaining() != 0 {
		t.Error("nil limiter reported a cooldown")
	}
}

func TestBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(100, 3)

	for i := 0; i < 3; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("acquire %d failed within burst", i+1)
		}
	}
	if rl.tryAcquire() {
		t.Error("bucket should be empty after the burst")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.tryAcquire() {
		t.Error("bucket should refill at 100 tokens/s")
	}

	time.Sleep(100 * time.Millisecond)
	if got := rl.GetCurrentTokens(); got > 3 {
		t.Errorf("tokens = %.2f, should cap at burst size", got)
	}
}

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	rl := NewRateLimiter(20, 1)
	rl.Drain()

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected ~50ms", elapsed)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	rl.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestCooldown(t *testing.T) {
	rl := NewRateLimiter(1000, 10)

	rl.SetCooldown(60 * time.Millisecond)
	rl.SetCooldown(10 * time.Millisecond) // must not shorten
	if rl.CooldownRemaining() < 40*time.Millisecond {
		t.Errorf("cooldown shortened to %v", rl.CooldownRemaining())
	}
	if rl.tryAcquire() {
		t.Error("acquired a token during cooldown")
	}

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Wait() returned after %v, during the cooldown", elapsed)
	}
	if rl.CooldownRemaining() != 0 {
		t.Error("cooldown should have expired")
	}
}

func TestConcurrentWaiters(t *testing.T) {
	rl := NewRateLimiter(1000, 5)
	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Wait(context.Background()); err != nil {
				errs <- err
			}
			if i%5 == 0 {
				rl.Drain()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Wait() error = %v", err)
	}
}
