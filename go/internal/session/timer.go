package session

// timerState is the per-session countdown state machine:
// idle -> running -> paused(cause) -> running -> expired. It is pure
// bookkeeping; the owning room drives it from its tick loop and turns
// transitions into broadcasts.
type timerState struct {
	mode            TimerMode
	remainingSec    int
	elapsedSec      int
	started         bool
	over            bool
	manualPause     bool
	disconnectPause bool
}

func newTimerState(mode TimerMode, durationMinutes int) timerState {
	return timerState{
		mode:         mode,
		remainingSec: durationMinutes * 60,
	}
}

// running reports whether the next tick should advance the clock.
func (t *timerState) running() bool {
	return t.started && !t.over && !t.manualPause && !t.disconnectPause
}

// start moves idle -> running. Returns false if the timer already
// started or the session is over.
func (t *timerState) start() bool {
	if t.started || t.over {
		return false
	}
	t.started = true
	return true
}

// pause records a cause and stops the clock. Idempotent per cause:
// pausing again for an already-recorded cause reports no change.
func (t *timerState) pause(cause PauseCause) bool {
	if t.over || !t.started {
		return false
	}
	switch cause {
	case PauseCauseManual:
		if t.manualPause {
			return false
		}
		t.manualPause = true
	case PauseCauseDisconnect:
		if t.disconnectPause {
			return false
		}
		t.disconnectPause = true
	default:
		return false
	}
	return true
}

// resume clears exactly the given cause. The clock restarts only once
// every cause is cleared; a manual resume never overrides a pause the
// system imposed for a disconnect, and vice versa.
func (t *timerState) resume(cause PauseCause) bool {
	if t.over || !t.started {
		return false
	}
	switch cause {
	case PauseCauseManual:
		if !t.manualPause {
			return false
		}
		t.manualPause = false
	case PauseCauseDisconnect:
		if !t.disconnectPause {
			return false
		}
		t.disconnectPause = false
	default:
		return false
	}
	return true
}

// tick advances the clock by one second. In down mode reaching zero is
// terminal: the timer stops and reports expiry exactly once. In up mode
// the counter grows without bound.
func (t *timerState) tick() (advanced, expired bool) {
	if !t.running() {
		return false, false
	}
	switch t.mode {
	case TimerModeUp:
		t.elapsedSec++
		return true, false
	default:
		t.remainingSec--
		if t.remainingSec <= 0 {
			t.remainingSec = 0
			t.over = true
			return true, true
		}
		return true, false
	}
}
