package session

import (
	"testing"

	"github.com/jonboulle/clockwork"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(clockwork.NewFakeClock(), DefaultConfig(), newRecordingSink())
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	room, err := reg.Create("sess-1", "station-1", "check-1", 7, TimerModeDown)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(room.Stop)

	got, err := reg.Get("sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != room {
		t.Fatal("get returned a different room")
	}

	snap, err := room.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.DurationMinutes != 7 || snap.RemainingSec != 420 {
		t.Fatalf("duration not applied: %+v", snap)
	}
	if snap.StationID != "station-1" || snap.ChecklistID != "check-1" {
		t.Fatalf("station/checklist not recorded: %+v", snap)
	}
}

func TestRegistryDurationFallsBackToDefault(t *testing.T) {
	reg := newTestRegistry(t)

	// Creation is lenient: 45 minutes is outside the allowed set.
	room, err := reg.Create("sess-1", "station-1", "check-1", 45, TimerModeDown)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(room.Stop)

	snap, _ := room.Snapshot()
	if snap.DurationMinutes != 10 || snap.RemainingSec != 600 {
		t.Fatalf("expected default duration 10, got %+v", snap)
	}
}

func TestRegistryRejectsDuplicateToken(t *testing.T) {
	reg := newTestRegistry(t)

	room, err := reg.Create("sess-1", "station-1", "check-1", 10, TimerModeDown)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(room.Stop)

	if _, err := reg.Create("sess-1", "station-2", "check-2", 10, TimerModeDown); err == nil {
		t.Fatal("duplicate session token must be rejected")
	}
}

func TestRegistryGetUnknownSession(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Get("nope"); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryRemoveStopsRoom(t *testing.T) {
	reg := newTestRegistry(t)
	room, err := reg.Create("sess-1", "station-1", "check-1", 10, TimerModeDown)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reg.Remove("sess-1")
	if _, err := reg.Get("sess-1"); err != ErrSessionNotFound {
		t.Fatalf("removed session still resolvable: %v", err)
	}
	if _, err := room.Snapshot(); err != ErrRoomClosed {
		t.Fatalf("room should be closed after removal, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry not empty: %d", reg.Len())
	}

	// Removing twice is a no-op.
	reg.Remove("sess-1")
}

func TestRegistryUnknownTimerModeDefaultsToDown(t *testing.T) {
	reg := newTestRegistry(t)
	room, err := reg.Create("sess-1", "station-1", "check-1", 10, TimerMode("sideways"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(room.Stop)

	snap, _ := room.Snapshot()
	if snap.TimerMode != TimerModeDown {
		t.Fatalf("mode = %q, want down", snap.TimerMode)
	}
}
