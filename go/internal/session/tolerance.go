package session

// toleranceTracker keeps the per-participant grace windows opened when a
// required-role participant drops. Windows are decremented by the room's
// periodic sweep; a window reaching zero means eviction.
type toleranceTracker struct {
	windows map[string]int // participant id -> seconds remaining
}

func newToleranceTracker() toleranceTracker {
	return toleranceTracker{windows: make(map[string]int)}
}

// open starts a grace window for the participant. An already-open window
// is left untouched so a duplicate disconnect signal cannot extend it.
func (t *toleranceTracker) open(participantID string, seconds int) {
	if _, ok := t.windows[participantID]; ok {
		return
	}
	t.windows[participantID] = seconds
}

// close cancels the window on reconnect.
func (t *toleranceTracker) close(participantID string) {
	delete(t.windows, participantID)
}

// pending reports whether any grace window is still open.
func (t *toleranceTracker) pending() bool {
	return len(t.windows) > 0
}

// min returns the smallest open window in seconds, 0 when none is open.
func (t *toleranceTracker) min() int {
	m := 0
	for _, s := range t.windows {
		if m == 0 || s < m {
			m = s
		}
	}
	return m
}

// sweep subtracts step seconds from every open window and returns the
// participants whose window ran out, removing them from the tracker so
// each eviction fires exactly once.
func (t *toleranceTracker) sweep(step int) []string {
	var expired []string
	for id, s := range t.windows {
		s -= step
		if s <= 0 {
			delete(t.windows, id)
			expired = append(expired, id)
			continue
		}
		t.windows[id] = s
	}
	return expired
}
