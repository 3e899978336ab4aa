package audit

import (
	"path/filepath"
	"testing"
)

func openTestTrail(t *testing.T) *Trail {
	t.Helper()
	trail, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { trail.Close() })
	return trail
}

func TestAppendAndRecent(t *testing.T) {
	trail := openTestTrail(t)

	if err := trail.Append("event", Detail{Event: "Heartbeat", Lux: 3.2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := trail.Append("transition", Detail{
		Event:       "lid_closed",
		StateBefore: "disarmed",
		StateAfter:  "arming",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := trail.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	var transition *Record
	for i := range records {
		if records[i].Kind == "transition" {
			transition = &records[i]
		}
	}
	if transition == nil {
		t.Fatal("Transition record not found")
	}
	if transition.Detail.StateAfter != "arming" {
		t.Errorf("state_after = %q", transition.Detail.StateAfter)
	}
	if transition.ID == "" {
		t.Error("Record has empty id")
	}
}

func TestCountByKind(t *testing.T) {
	trail := openTestTrail(t)

	for i := 0; i < 3; i++ {
		if err := trail.Append("challenge", Detail{Result: "failed"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := trail.Append("wipe_authorized", Detail{Reason: "challenge_failed"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := trail.CountByKind("challenge")
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 challenge records, got %d", n)
	}

	n, err = trail.CountByKind("wipe_authorized")
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 wipe record, got %d", n)
	}
}

func TestRecentLimitDefaults(t *testing.T) {
	trail := openTestTrail(t)
	if err := trail.Append("event", Detail{Event: "Heartbeat"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	records, err := trail.Recent(0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}
