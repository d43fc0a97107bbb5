package bolsync

import (
	"testing"
	"time"
)

func TestSchedulerIntervalDefaultsAndOverrides(t *testing.T) {
	t.Setenv("BOL_SYNC_INTERVAL_SECONDS", "")
	if got := SchedulerInterval(); got != 600*time.Second {
		t.Fatalf("default interval = %s, want 10m", got)
	}

	t.Setenv("BOL_SYNC_INTERVAL_SECONDS", "120")
	if got := SchedulerInterval(); got != 120*time.Second {
		t.Fatalf("interval = %s, want 2m", got)
	}

	t.Setenv("BOL_SYNC_INTERVAL_SECONDS", "bogus")
	if got := SchedulerInterval(); got != 600*time.Second {
		t.Fatalf("interval with bad value = %s, want 10m", got)
	}
}

func TestBudgetsLeaveSafetyMargin(t *testing.T) {
	interval := 600 * time.Second
	if got := ProcessBudget(interval); got != 540*time.Second {
		t.Fatalf("process budget = %s, want 9m", got)
	}
	if got := ShippedImportBudget(interval); got != 500*time.Second {
		t.Fatalf("shipped budget = %s, want 8m20s", got)
	}

	// intervals shorter than the margin still get a usable budget
	short := 50 * time.Second
	if got := ProcessBudget(short); got != 25*time.Second {
		t.Fatalf("short process budget = %s, want half the interval", got)
	}
	if got := ShippedImportBudget(short); got != 25*time.Second {
		t.Fatalf("short shipped budget = %s, want half the interval", got)
	}
}
