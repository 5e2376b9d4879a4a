package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/storage/memory"
)

func seedCredential(t *testing.T, store *memory.Store, q credential.Quota) credential.Credential {
	t.Helper()
	c, err := store.CreateCredential(context.Background(), credential.Credential{
		Name:    "tester",
		Token:   "tok-" + t.Name(),
		Method:  credential.MethodHeader,
		Quota:   q,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return c
}

func TestCheckAndConsumeDisabledQuotaAlwaysAllows(t *testing.T) {
	store := memory.New()
	cred := seedCredential(t, store, credential.Quota{Enabled: false})
	svc := New(store, nil)

	for i := 0; i < 5; i++ {
		d, err := svc.CheckAndConsume(context.Background(), cred.ID)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("check %d rejected with quota disabled", i)
		}
	}

	reloaded, _ := store.GetCredential(context.Background(), cred.ID)
	if reloaded.Quota.Used != 0 {
		t.Fatalf("disabled quota mutated usage: %d", reloaded.Quota.Used)
	}
}

func TestCheckAndConsumeDailyLimit(t *testing.T) {
	store := memory.New()
	cred := seedCredential(t, store, credential.Quota{Enabled: true, Limit: 2, Period: credential.PeriodDay})

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := New(store, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	d, err := svc.CheckAndConsume(ctx, cred.ID)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if !d.Allowed || d.Used != 1 {
		t.Fatalf("first check: allowed=%v used=%d, want allowed used=1", d.Allowed, d.Used)
	}
	if want := now.AddDate(0, 0, 1); !d.ResetAt.Equal(want) {
		t.Fatalf("reset at %s, want %s", d.ResetAt, want)
	}

	d, _ = svc.CheckAndConsume(ctx, cred.ID)
	if !d.Allowed || d.Used != 2 {
		t.Fatalf("second check: allowed=%v used=%d", d.Allowed, d.Used)
	}

	d, _ = svc.CheckAndConsume(ctx, cred.ID)
	if d.Allowed {
		t.Fatal("third check should exceed the limit")
	}
	if d.Used != 2 {
		t.Fatalf("rejected check incremented usage: %d", d.Used)
	}
}

func TestCheckAndConsumePeriodRollover(t *testing.T) {
	store := memory.New()
	cred := seedCredential(t, store, credential.Quota{Enabled: true, Limit: 1, Period: credential.PeriodDay})

	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	svc := New(store, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	svc.CheckAndConsume(ctx, cred.ID)
	if d, _ := svc.CheckAndConsume(ctx, cred.ID); d.Allowed {
		t.Fatal("expected rejection before rollover")
	}

	now = now.Add(26 * time.Hour)
	d, err := svc.CheckAndConsume(ctx, cred.ID)
	if err != nil {
		t.Fatalf("post-rollover check: %v", err)
	}
	if !d.Allowed || d.Used != 1 {
		t.Fatalf("post-rollover: allowed=%v used=%d, want allowed used=1", d.Allowed, d.Used)
	}
}

func TestCheckAndConsumeMonthBoundary(t *testing.T) {
	store := memory.New()
	cred := seedCredential(t, store, credential.Quota{Enabled: true, Limit: 10, Period: credential.PeriodMonth})

	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	svc := New(store, nil).WithClock(func() time.Time { return now })

	d, err := svc.CheckAndConsume(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// AddDate(0, 1, 0) from Jan 31 lands on Mar 3 (normalised Feb 31).
	if want := now.AddDate(0, 1, 0); !d.ResetAt.Equal(want) {
		t.Fatalf("month reset at %s, want %s", d.ResetAt, want)
	}
}

func TestCheckAndConsumeConcurrentNoLostIncrements(t *testing.T) {
	store := memory.New()
	cred := seedCredential(t, store, credential.Quota{Enabled: true, Limit: 1000, Period: credential.PeriodDay})
	svc := New(store, nil)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CheckAndConsume(context.Background(), cred.ID); err != nil {
				t.Errorf("check: %v", err)
			}
		}()
	}
	wg.Wait()

	reloaded, _ := store.GetCredential(context.Background(), cred.ID)
	if reloaded.Quota.Used != n {
		t.Fatalf("used = %d after %d concurrent consumes", reloaded.Quota.Used, n)
	}
}
