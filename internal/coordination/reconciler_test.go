package coordination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driftmend/driftmend-backend/internal/platform/logger"
)

func reconcilerTestLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

func TestReconcilerForceReleasesStaleSlots(t *testing.T) {
	t.Parallel()
	sem := NewMemorySemaphore()
	ctx := context.Background()

	if ok, _ := sem.Acquire(ctx, "tenant-1", "job-crashed", 5); !ok {
		t.Fatalf("acquire failed")
	}
	time.Sleep(20 * time.Millisecond)
	if ok, _ := sem.Acquire(ctx, "tenant-1", "job-live", 5); !ok {
		t.Fatalf("acquire failed")
	}

	var mu sync.Mutex
	var forced []string
	r := NewReconciler(sem, reconcilerTestLogger(t), 10*time.Millisecond, time.Minute)
	r.OnForcedRelease = func(_ context.Context, slotKey string, jobIDs []string) {
		mu.Lock()
		defer mu.Unlock()
		if slotKey == "tenant-1" {
			forced = append(forced, jobIDs...)
		}
	}

	if err := r.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(forced) != 1 || forced[0] != "job-crashed" {
		t.Fatalf("forced = %v, want [job-crashed]", forced)
	}

	state, _ := sem.State(ctx, "tenant-1", 5)
	if state.ActiveCount != 1 {
		t.Fatalf("active = %d, want 1 (live job keeps its slot)", state.ActiveCount)
	}
}

func TestReconcilerSweepIsQuietWhenNothingIsStale(t *testing.T) {
	t.Parallel()
	sem := NewMemorySemaphore()
	ctx := context.Background()

	if ok, _ := sem.Acquire(ctx, "tenant-1", "job-live", 5); !ok {
		t.Fatalf("acquire failed")
	}

	r := NewReconciler(sem, reconcilerTestLogger(t), time.Hour, time.Minute)
	called := false
	r.OnForcedRelease = func(context.Context, string, []string) { called = true }

	if err := r.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if called {
		t.Fatalf("forced release fired with no stale jobs")
	}
}
