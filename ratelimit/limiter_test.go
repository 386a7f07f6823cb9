package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAllow_NonPositiveRateIsUnlimited(t *testing.T) {
	l := New()
	for _, perSecond := range []int{0, -5} {
		for i := range 500 {
			if !l.Allow("ep_unlimited", perSecond) {
				t.Fatalf("perSecond=%d: call %d denied", perSecond, i)
			}
		}
	}
	if len(l.buckets) != 0 {
		t.Fatalf("unlimited endpoints should not allocate buckets, got %d", len(l.buckets))
	}
}

func TestAllow_BurstEqualsRate(t *testing.T) {
	tests := []struct {
		perSecond int
	}{
		{1}, {3}, {10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/s", tt.perSecond), func(t *testing.T) {
			l := New()
			ep := "ep_burst"

			for i := range tt.perSecond {
				if !l.Allow(ep, tt.perSecond) {
					t.Fatalf("token %d of %d denied", i+1, tt.perSecond)
				}
			}
			if l.Allow(ep, tt.perSecond) {
				t.Fatal("bucket should be empty after a full burst")
			}
		})
	}
}

func TestAllow_IndependentEndpoints(t *testing.T) {
	l := New()

	if !l.Allow("ep_a", 1) {
		t.Fatal("ep_a first token denied")
	}
	if l.Allow("ep_a", 1) {
		t.Fatal("ep_a should be exhausted")
	}
	if !l.Allow("ep_b", 1) {
		t.Fatal("exhausting ep_a must not affect ep_b")
	}
}

func TestAllow_Refill(t *testing.T) {
	l := New()
	ep := "ep_refill"

	// 50/s refills one token every 20ms.
	for range 50 {
		l.Allow(ep, 50)
	}
	if l.Allow(ep, 50) {
		t.Fatal("bucket should be drained")
	}

	time.Sleep(60 * time.Millisecond)
	if !l.Allow(ep, 50) {
		t.Fatal("bucket should have refilled")
	}
}

func TestAllow_RateChangeAppliesToExistingBucket(t *testing.T) {
	l := New()
	ep := "ep_change"

	l.Allow(ep, 1)
	if l.Allow(ep, 1) {
		t.Fatal("should be denied at 1/s")
	}

	l.Allow(ep, 1000)
	time.Sleep(20 * time.Millisecond)
	if !l.Allow(ep, 1000) {
		t.Fatal("should be allowed after raising the rate")
	}
}

func TestWait(t *testing.T) {
	t.Run("unlimited returns immediately", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		// Even a cancelled context does not matter without a limit.
		if err := New().Wait(ctx, "ep_free", 0); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	})

	t.Run("blocks until a token refills", func(t *testing.T) {
		l := New()
		ep := "ep_wait"
		for range 20 {
			l.Allow(ep, 20)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		start := time.Now()
		if err := l.Wait(ctx, ep, 20); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if waited := time.Since(start); waited < 20*time.Millisecond {
			t.Fatalf("Wait returned after %v, expected to block for a refill", waited)
		}
	})

	t.Run("fails fast when the deadline is too short", func(t *testing.T) {
		l := New()
		ep := "ep_deadline"
		l.Allow(ep, 1)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		if err := l.Wait(ctx, ep, 1); err == nil {
			t.Fatal("Wait should fail when the next token is past the deadline")
		}
		if time.Since(start) > 40*time.Millisecond {
			t.Fatal("Wait should not sleep until the deadline")
		}
	})
}

func TestReset(t *testing.T) {
	l := New()
	ep := "ep_reset"

	l.Allow(ep, 1)
	if l.Allow(ep, 1) {
		t.Fatal("should be exhausted")
	}

	l.Reset(ep)
	if !l.Allow(ep, 1) {
		t.Fatal("a reset endpoint starts with a full bucket")
	}

	// Resetting an unknown endpoint is a no-op.
	l.Reset("ep_never_seen")
}

func TestAllow_Concurrent(t *testing.T) {
	l := New()
	ep := "ep_concurrent"

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(ep, 100) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// 100 tokens up front plus whatever refilled while the goroutines ran.
	if got := allowed.Load(); got < 100 || got > 110 {
		t.Fatalf("allowed = %d, want about 100", got)
	}
}
