package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCheckFixedWindowSequence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	wantAllowed := []bool{true, true, true, false}
	wantRemaining := []int{2, 1, 0, 0}
	for i := range wantAllowed {
		d, err := l.Check(ctx, "1.2.3.4", "route-1", 3, 60)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if d.Allowed != wantAllowed[i] {
			t.Fatalf("check %d: allowed = %v, want %v", i, d.Allowed, wantAllowed[i])
		}
		if d.Remaining != wantRemaining[i] {
			t.Fatalf("check %d: remaining = %d, want %d", i, d.Remaining, wantRemaining[i])
		}
		if d.Limit != 3 {
			t.Fatalf("check %d: limit = %d, want 3", i, d.Limit)
		}
	}

	d, _ := l.Check(ctx, "1.2.3.4", "route-1", 3, 60)
	if d.Allowed {
		t.Fatal("request past the limit must stay rejected within the window")
	}
	if d.RetryAfter < time.Second {
		t.Fatalf("retry after = %s, want >= 1s", d.RetryAfter)
	}
	if want := now.Add(60 * time.Second); !d.ResetAt.Equal(want) {
		t.Fatalf("reset at = %s, want %s", d.ResetAt, want)
	}
}

func TestCheckWindowExpiryStartsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.Check(ctx, "k", "r", 2, 10); !d.Allowed && i < 2 {
			t.Fatalf("warm-up check %d rejected", i)
		}
	}
	if d, _ := l.Check(ctx, "k", "r", 2, 10); d.Allowed {
		t.Fatal("third check should be rejected")
	}

	now = now.Add(11 * time.Second)
	d, _ := l.Check(ctx, "k", "r", 2, 10)
	if !d.Allowed {
		t.Fatal("check after window expiry should be allowed")
	}
	if d.Remaining != 1 {
		t.Fatalf("fresh window remaining = %d, want 1", d.Remaining)
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l := NewMemory(nil)
	ctx := context.Background()

	if d, _ := l.Check(ctx, "a", "r", 1, 60); !d.Allowed {
		t.Fatal("first identifier rejected")
	}
	if d, _ := l.Check(ctx, "a", "r", 1, 60); d.Allowed {
		t.Fatal("second request for same identifier should be rejected")
	}
	if d, _ := l.Check(ctx, "b", "r", 1, 60); !d.Allowed {
		t.Fatal("different identifier must have its own window")
	}
	if d, _ := l.Check(ctx, "a", "r2", 1, 60); !d.Allowed {
		t.Fatal("different route must have its own window")
	}
}

func TestReset(t *testing.T) {
	l := NewMemory(nil)
	ctx := context.Background()

	l.Check(ctx, "k", "r", 1, 60)
	if d, _ := l.Check(ctx, "k", "r", 1, 60); d.Allowed {
		t.Fatal("expected rejection before reset")
	}
	if err := l.Reset(ctx, "k", "r"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d, _ := l.Check(ctx, "k", "r", 1, 60); !d.Allowed {
		t.Fatal("expected allowance after reset")
	}
}

func TestSweepRemovesExpiredOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	l.Check(ctx, "short", "r", 5, 10)
	l.Check(ctx, "long", "r", 5, 300)

	now = now.Add(30 * time.Second)
	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("swept %d entries, want 1", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d after sweep, want 1", l.Len())
	}
}

func TestCheckConcurrentExactlyOneRejected(t *testing.T) {
	l := NewMemory(nil)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := l.Check(ctx, "burst", "r", n-1, 60)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			results[i] = d.Allowed
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, allowed := range results {
		if !allowed {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("rejected %d of %d with limit %d, want exactly 1", rejected, n, n-1)
	}
}
