package domain

import (
	"testing"
	"time"
)

func TestComputeOccurrenceKey_Deterministic(t *testing.T) {
	scheduledFor := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	k1 := ComputeOccurrenceKey("task-1", KindCron, "0 9 * * *", scheduledFor, "")
	k2 := ComputeOccurrenceKey("task-1", KindCron, "0 9 * * *", scheduledFor, "")
	if k1 != k2 {
		t.Fatalf("same inputs produced different keys: %q vs %q", k1, k2)
	}
}

func TestComputeOccurrenceKey_DistinguishesInputs(t *testing.T) {
	scheduledFor := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	base := ComputeOccurrenceKey("task-1", KindCron, "0 9 * * *", scheduledFor, "")

	variants := []string{
		ComputeOccurrenceKey("task-2", KindCron, "0 9 * * *", scheduledFor, ""),
		ComputeOccurrenceKey("task-1", KindCron, "0 10 * * *", scheduledFor, ""),
		ComputeOccurrenceKey("task-1", KindCron, "0 9 * * *", scheduledFor.Add(time.Minute), ""),
		ComputeOccurrenceKey("task-1", KindCron, "0 9 * * *", scheduledFor, "scope-a"),
	}
	for _, v := range variants {
		if v == base {
			t.Fatalf("expected distinct key, got collision with base %q", base)
		}
	}
}

func TestComputeOccurrenceKey_TimezoneInvariant(t *testing.T) {
	utc := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := utc.In(loc)

	if ComputeOccurrenceKey("t", KindCron, "* * * * *", utc, "") != ComputeOccurrenceKey("t", KindCron, "* * * * *", local, "") {
		t.Fatal("key must be invariant to the scheduled_for value's time zone representation")
	}
}
