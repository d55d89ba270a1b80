package traffic

import (
	"sync"
	"testing"
	"time"
)

func TestErrorRate_Empty(t *testing.T) {
	Reset()
	if errs, total := ErrorRate(time.Minute); errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errs, total)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errs, total := ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
}

// TestTracker_WindowExcludesOldOutcomes verifies that outcomes older than the
// queried window are not counted, using an injected clock.
func TestTracker_WindowExcludesOldOutcomes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := &Tracker{now: func() time.Time { return now }}

	tr.RecordError()
	now = now.Add(90 * time.Second)
	tr.RecordSuccess()

	if errs, total := tr.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errs, total)
	}
	if errs, total := tr.ErrorRate(5 * time.Minute); errs != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", errs, total)
	}
}

func TestTracker_PrunesBeyondMaxAge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := &Tracker{now: func() time.Time { return now }}

	tr.RecordError()
	now = now.Add(maxAge + time.Second)
	tr.RecordSuccess()

	if len(tr.errorTimes) != 0 {
		t.Errorf("errorTimes len = %d, want 0 after prune", len(tr.errorTimes))
	}
}

func TestTracker_ConcurrentRecords(t *testing.T) {
	var tr Tracker
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); tr.RecordSuccess() }()
		go func() { defer wg.Done(); tr.RecordError() }()
	}
	wg.Wait()
	if errs, total := tr.ErrorRate(time.Minute); errs != 50 || total != 100 {
		t.Errorf("ErrorRate() = (%d, %d), want (50, 100)", errs, total)
	}
}
