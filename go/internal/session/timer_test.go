package session

import "testing"

func TestTimerStartOnlyFromIdle(t *testing.T) {
	ts := newTimerState(TimerModeDown, 10)
	if ts.running() {
		t.Fatal("timer should not run before start")
	}
	if !ts.start() {
		t.Fatal("first start should succeed")
	}
	if !ts.running() {
		t.Fatal("timer should run after start")
	}
	if ts.start() {
		t.Fatal("second start should be a no-op")
	}
}

func TestTimerPauseResumeRoundTripKeepsRemaining(t *testing.T) {
	ts := newTimerState(TimerModeDown, 10)
	ts.start()
	for i := 0; i < 5; i++ {
		ts.tick()
	}
	before := ts.remainingSec

	if !ts.pause(PauseCauseManual) {
		t.Fatal("pause should succeed")
	}
	if advanced, _ := ts.tick(); advanced {
		t.Fatal("paused timer must not tick")
	}
	if !ts.resume(PauseCauseManual) {
		t.Fatal("resume should succeed")
	}

	if ts.remainingSec != before {
		t.Fatalf("pause/resume changed remaining: %d != %d", ts.remainingSec, before)
	}
	if !ts.running() {
		t.Fatal("timer should run again after resume")
	}
}

func TestTimerPauseIdempotentPerCause(t *testing.T) {
	ts := newTimerState(TimerModeDown, 5)
	ts.start()

	if !ts.pause(PauseCauseManual) {
		t.Fatal("first manual pause should report a change")
	}
	if ts.pause(PauseCauseManual) {
		t.Fatal("repeated manual pause should report no change")
	}
	if !ts.pause(PauseCauseDisconnect) {
		t.Fatal("a different cause is an independent pause")
	}
}

func TestTimerResumeRequiresMatchingCause(t *testing.T) {
	ts := newTimerState(TimerModeDown, 5)
	ts.start()
	ts.pause(PauseCauseDisconnect)

	if ts.resume(PauseCauseManual) {
		t.Fatal("manual resume must not clear a disconnect pause")
	}
	if ts.running() {
		t.Fatal("timer must stay stopped")
	}
	if !ts.resume(PauseCauseDisconnect) {
		t.Fatal("matching cause should resume")
	}
	if !ts.running() {
		t.Fatal("timer should run after matching resume")
	}
}

func TestTimerBothCausesMustClear(t *testing.T) {
	ts := newTimerState(TimerModeDown, 5)
	ts.start()
	ts.pause(PauseCauseManual)
	ts.pause(PauseCauseDisconnect)

	ts.resume(PauseCauseDisconnect)
	if ts.running() {
		t.Fatal("manual pause still outstanding")
	}
	ts.resume(PauseCauseManual)
	if !ts.running() {
		t.Fatal("all causes cleared, timer should run")
	}
}

func TestTimerDownModeExpiresOnce(t *testing.T) {
	ts := newTimerState(TimerModeDown, 10)
	ts.remainingSec = 2
	ts.start()

	if _, expired := ts.tick(); expired {
		t.Fatal("should not expire with time left")
	}
	advanced, expired := ts.tick()
	if !advanced || !expired {
		t.Fatal("should expire when reaching zero")
	}
	if !ts.over {
		t.Fatal("expiry is terminal")
	}
	if advanced, _ := ts.tick(); advanced {
		t.Fatal("expired timer must not tick again")
	}
	if ts.pause(PauseCauseManual) {
		t.Fatal("controls on an expired timer are no-ops")
	}
	if ts.start() {
		t.Fatal("expired timer cannot restart")
	}
}

func TestTimerUpModeCounts(t *testing.T) {
	ts := newTimerState(TimerModeUp, 5)
	ts.start()
	for i := 0; i < 400; i++ {
		if _, expired := ts.tick(); expired {
			t.Fatal("up mode never expires")
		}
	}
	if ts.elapsedSec != 400 {
		t.Fatalf("elapsed = %d, want 400", ts.elapsedSec)
	}
}
