package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrRoomClosed is returned for operations against a room whose run loop
// has already stopped.
var ErrRoomClosed = errors.New("session room closed")

// Config holds the tunables shared by every room.
type Config struct {
	// AllowedDurationsMin is the closed set of accepted exam durations.
	// Create falls back to DefaultDurationMin instead of failing.
	AllowedDurationsMin []int
	DefaultDurationMin  int

	// ToleranceWindow is the grace period a disconnected required-role
	// participant has to come back before eviction.
	ToleranceWindow time.Duration
	// ToleranceSweep is how often open grace windows are decremented.
	ToleranceSweep time.Duration
	// TickInterval is the timer resolution.
	TickInterval time.Duration
	// IdleTTL is how long a room with no online participants (or a
	// finished exam) lingers before the registry drops it.
	IdleTTL time.Duration

	// RequiredRoles are the roles whose disconnect pauses the exam and
	// opens a tolerance window.
	RequiredRoles map[Role]bool
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		AllowedDurationsMin: []int{5, 6, 7, 8, 9, 10},
		DefaultDurationMin:  10,
		ToleranceWindow:     60 * time.Second,
		ToleranceSweep:      5 * time.Second,
		TickInterval:        time.Second,
		IdleTTL:             2 * time.Minute,
		RequiredRoles: map[Role]bool{
			RoleCandidate: true,
			RoleActor:     true,
		},
	}
}

// JoinRequest is an admitted handshake handed to the room.
type JoinRequest struct {
	ParticipantID string
	ConnectionID  string
	Role          Role
	Nickname      string
}

// JoinResult tells the gateway how the join was applied.
type JoinResult struct {
	// Reconnected is true when an offline roster entry was restored; the
	// participant keeps their original role and nickname.
	Reconnected bool
	// ReplacedConnectionID is the previous connection of an already
	// online participant, to be closed by the gateway. Empty otherwise.
	ReplacedConnectionID string
}

// Sender identifies the connection that issued a command.
type Sender struct {
	ParticipantID string
	ConnectionID  string
}

// Room owns all mutable state of one session. Every mutation flows
// through the run loop goroutine, so connections never contend on the
// state and events from one source reach the sink in submission order.
type Room struct {
	id          string
	stationID   string
	checklistID string

	clock  clockwork.Clock
	cfg    Config
	sink   EventSink
	onIdle func(sessionID string)

	cmdCh    chan roomCommand
	stopCh   chan struct{}
	stopOnce sync.Once

	// Everything below is owned by the run loop.
	createdAt   time.Time
	durationMin int
	timer       timerState
	tolerance   toleranceTracker
	roster      map[string]*Participant
	checklist   map[string]ItemState
	revealed    map[string]bool
	endedReason string
	idleSince   time.Time
}

type roomCommandKind int

const (
	cmdJoin roomCommandKind = iota
	cmdDisconnect
	cmdClient
	cmdSnapshot
)

type roomCommand struct {
	kind roomCommandKind

	join      JoinRequest
	joinReply chan JoinResult

	disconnect Sender

	from   Sender
	client ClientCommand

	snapshotReply chan *Snapshot
}

// NewRoom builds a room without starting its run loop. The registry is
// the only caller; it validates the duration beforehand.
func NewRoom(id, stationID, checklistID string, durationMin int, mode TimerMode, clock clockwork.Clock, cfg Config, sink EventSink, onIdle func(sessionID string)) *Room {
	return &Room{
		id:          id,
		stationID:   stationID,
		checklistID: checklistID,
		clock:       clock,
		cfg:         cfg,
		sink:        sink,
		onIdle:      onIdle,
		cmdCh:       make(chan roomCommand, 64),
		stopCh:      make(chan struct{}),
		createdAt:   clock.Now(),
		durationMin: durationMin,
		timer:       newTimerState(mode, durationMin),
		tolerance:   newToleranceTracker(),
		roster:      make(map[string]*Participant),
		checklist:   make(map[string]ItemState),
		revealed:    make(map[string]bool),
	}
}

// ID returns the session token.
func (r *Room) ID() string { return r.id }

// StationID returns the station this session was created for; the
// gateway matches it against the handshake.
func (r *Room) StationID() string { return r.stationID }

// Start launches the run loop.
func (r *Room) Start() {
	go r.run()
}

// Stop terminates the run loop and releases its tickers. Safe to call
// more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Join admits a connection, publishing a snapshot to it and a roster
// update to the rest of the room.
func (r *Room) Join(req JoinRequest) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if err := r.send(roomCommand{kind: cmdJoin, join: req, joinReply: reply}); err != nil {
		return JoinResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-r.stopCh:
		return JoinResult{}, ErrRoomClosed
	}
}

// Disconnect reports an unexpectedly closed connection. Stale reports
// from a connection that was already replaced are ignored.
func (r *Room) Disconnect(participantID, connectionID string) {
	_ = r.send(roomCommand{kind: cmdDisconnect, disconnect: Sender{ParticipantID: participantID, ConnectionID: connectionID}})
}

// Submit queues a client command for sequential processing.
func (r *Room) Submit(from Sender, cmd ClientCommand) {
	_ = r.send(roomCommand{kind: cmdClient, from: from, client: cmd})
}

// Snapshot synthesizes the current full session state. Works after the
// session is over, for the final summary read.
func (r *Room) Snapshot() (*Snapshot, error) {
	reply := make(chan *Snapshot, 1)
	if err := r.send(roomCommand{kind: cmdSnapshot, snapshotReply: reply}); err != nil {
		return nil, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.stopCh:
		return nil, ErrRoomClosed
	}
}

func (r *Room) send(c roomCommand) error {
	select {
	case r.cmdCh <- c:
		return nil
	case <-r.stopCh:
		return ErrRoomClosed
	}
}

func (r *Room) run() {
	tick := r.clock.NewTicker(r.cfg.TickInterval)
	defer tick.Stop()
	sweep := r.clock.NewTicker(r.cfg.ToleranceSweep)
	defer sweep.Stop()

	log.Info().
		Str("session_id", r.id).
		Str("station_id", r.stationID).
		Int("duration_min", r.durationMin).
		Msg("session room started")

	for {
		select {
		case <-r.stopCh:
			log.Info().Str("session_id", r.id).Msg("session room stopped")
			return
		case c := <-r.cmdCh:
			r.handle(c)
		case <-tick.Chan():
			r.onTick()
		case <-sweep.Chan():
			r.onSweep()
		}
	}
}

func (r *Room) handle(c roomCommand) {
	switch c.kind {
	case cmdJoin:
		c.joinReply <- r.handleJoin(c.join)
	case cmdDisconnect:
		r.handleDisconnect(c.disconnect)
	case cmdClient:
		r.handleClient(c.from, c.client)
	case cmdSnapshot:
		c.snapshotReply <- r.snapshot()
	}
}

func (r *Room) handleJoin(req JoinRequest) JoinResult {
	var res JoinResult

	p, known := r.roster[req.ParticipantID]
	switch {
	case known && !p.Online:
		// Reconnect within the tolerance window: restore the original
		// identity, whatever role or nickname the handshake claimed.
		p.ConnectionID = req.ConnectionID
		p.Online = true
		p.DisconnectedAt = nil
		r.tolerance.close(req.ParticipantID)
		res.Reconnected = true

		r.publishExcept(req.ConnectionID, EventTypeParticipantReconnected, ParticipantReconnectedPayload{
			ParticipantID: p.ParticipantID,
			Role:          p.Role,
		})
		// The system-imposed pause lifts only once no other required
		// participant is still missing.
		if r.timer.disconnectPause && !r.tolerance.pending() {
			r.timer.resume(PauseCauseDisconnect)
			r.publish(EventTypeTimerResumed, TimerResumedPayload{
				Cause:        PauseCauseDisconnect,
				RemainingSec: r.timer.remainingSec,
				Running:      r.timer.running(),
			})
		}
		log.Info().
			Str("session_id", r.id).
			Str("participant_id", p.ParticipantID).
			Msg("participant reconnected")

	case known && p.Online:
		// Same participant opening a second connection: the new one wins
		// and the gateway closes the old one.
		res.ReplacedConnectionID = p.ConnectionID
		p.ConnectionID = req.ConnectionID
		log.Info().
			Str("session_id", r.id).
			Str("participant_id", p.ParticipantID).
			Msg("participant connection replaced")

	default:
		r.roster[req.ParticipantID] = &Participant{
			ParticipantID: req.ParticipantID,
			ConnectionID:  req.ConnectionID,
			Role:          req.Role,
			Nickname:      req.Nickname,
			Online:        true,
		}
		r.publishExcept(req.ConnectionID, EventTypeRosterChanged, RosterChangedPayload{Roster: r.rosterCopy()})
		log.Info().
			Str("session_id", r.id).
			Str("participant_id", req.ParticipantID).
			Str("role", string(req.Role)).
			Msg("participant joined")
	}

	if !r.timer.over {
		r.idleSince = time.Time{}
	}

	snap := r.snapshot()
	r.sink.PublishTo(r.id, req.ConnectionID, NewEvent(r.id, EventTypeSnapshot, r.clock.Now(), snap))
	return res
}

func (r *Room) handleDisconnect(from Sender) {
	p, known := r.roster[from.ParticipantID]
	if !known || p.ConnectionID != from.ConnectionID {
		// A replaced or already-evicted connection going away.
		return
	}

	now := r.clock.Now()
	p.Online = false
	p.DisconnectedAt = &now

	toleranceSec := 0
	if r.cfg.RequiredRoles[p.Role] && r.timer.started && !r.timer.over {
		toleranceSec = int(r.cfg.ToleranceWindow / time.Second)
		r.tolerance.open(p.ParticipantID, toleranceSec)
		if r.timer.pause(PauseCauseDisconnect) {
			r.publish(EventTypeTimerPaused, TimerPausedPayload{
				Cause:        PauseCauseDisconnect,
				RemainingSec: r.timer.remainingSec,
			})
		}
	}

	r.publish(EventTypeParticipantDisconnected, ParticipantDisconnectedPayload{
		ParticipantID: p.ParticipantID,
		Role:          p.Role,
		ToleranceSec:  toleranceSec,
	})
	log.Info().
		Str("session_id", r.id).
		Str("participant_id", p.ParticipantID).
		Str("role", string(p.Role)).
		Int("tolerance_sec", toleranceSec).
		Msg("participant disconnected")

	r.markIdleIfAbandoned()
}

func (r *Room) handleClient(from Sender, cmd ClientCommand) {
	p, known := r.roster[from.ParticipantID]
	if !known || p.ConnectionID != from.ConnectionID {
		return
	}

	if !roleMayIssue(p.Role, cmd.Type) {
		r.ack(from, cmd.Type, "role not authorized")
		log.Warn().
			Str("session_id", r.id).
			Str("participant_id", from.ParticipantID).
			Str("role", string(p.Role)).
			Str("command", string(cmd.Type)).
			Msg("command rejected: role not authorized")
		return
	}

	// A finished session accepts no further control; acknowledge and
	// drop rather than error the connection.
	if r.timer.over {
		r.ack(from, cmd.Type, "session over")
		return
	}

	switch cmd.Type {
	case CommandStartTimer:
		if !r.timer.start() {
			r.ack(from, cmd.Type, "timer already started")
			return
		}
		r.publish(EventTypeTimerStarted, TimerStartedPayload{
			Mode:         r.timer.mode,
			RemainingSec: r.timer.remainingSec,
			StartedAt:    r.clock.Now(),
		})

	case CommandPauseTimer:
		if !r.timer.pause(PauseCauseManual) {
			r.ack(from, cmd.Type, "timer not running")
			return
		}
		r.publish(EventTypeTimerPaused, TimerPausedPayload{
			Cause:        PauseCauseManual,
			RemainingSec: r.timer.remainingSec,
		})

	case CommandResumeTimer:
		if !r.timer.resume(PauseCauseManual) {
			r.ack(from, cmd.Type, "timer not paused manually")
			return
		}
		r.publish(EventTypeTimerResumed, TimerResumedPayload{
			Cause:        PauseCauseManual,
			RemainingSec: r.timer.remainingSec,
			Running:      r.timer.running(),
		})

	case CommandUpdateChecklistItem:
		r.checklist[cmd.Checklist.ItemID] = ItemState{
			Evaluation: cmd.Checklist.Evaluation,
			Score:      cmd.Checklist.Score,
		}
		r.publish(EventTypeChecklistItemUpdated, ChecklistItemUpdatedPayload{
			ItemID:     cmd.Checklist.ItemID,
			Evaluation: cmd.Checklist.Evaluation,
			Score:      cmd.Checklist.Score,
			UpdatedBy:  from.ParticipantID,
		})

	case CommandRevealMaterial:
		r.revealed[cmd.Material.MaterialID] = true
		r.publish(EventTypeMaterialRevealed, MaterialRevealedPayload{
			MaterialID: cmd.Material.MaterialID,
			RevealedBy: from.ParticipantID,
		})

	case CommandEndSession:
		r.end("manual")
	}
}

func (r *Room) onTick() {
	advanced, expired := r.timer.tick()
	if !advanced {
		return
	}
	r.publish(EventTypeTimerTick, TimerTickPayload{
		RemainingSec: r.timer.remainingSec,
		ElapsedSec:   r.timer.elapsedSec,
		TickedAt:     r.clock.Now(),
	})
	if expired {
		r.publish(EventTypeTimerExpired, TimerExpiredPayload{ExpiredAt: r.clock.Now()})
		r.endedReason = "time-over"
		r.publish(EventTypeSessionEnded, SessionEndedPayload{Reason: "time-over"})
		r.idleSince = r.clock.Now()
		log.Info().Str("session_id", r.id).Msg("session timer expired")
	}
}

func (r *Room) onSweep() {
	if r.timer.over {
		// A finished session only waits out its linger period.
		if !r.idleSince.IsZero() && r.clock.Now().Sub(r.idleSince) >= r.cfg.IdleTTL && r.onIdle != nil {
			go r.onIdle(r.id)
		}
		return
	}

	step := int(r.cfg.ToleranceSweep / time.Second)
	for _, pid := range r.tolerance.sweep(step) {
		p, known := r.roster[pid]
		if !known || p.Online {
			continue
		}
		delete(r.roster, pid)
		r.publish(EventTypeParticipantEvicted, ParticipantEvictedPayload{
			ParticipantID: pid,
			Role:          p.Role,
		})
		log.Info().
			Str("session_id", r.id).
			Str("participant_id", pid).
			Str("role", string(p.Role)).
			Msg("participant evicted after tolerance window")
	}

	// Once the last window is gone nothing can clear a disconnect pause
	// anymore, so control of the clock returns to the participants: the
	// pause cause becomes manual and an explicit resume (or ending the
	// session) works.
	if r.timer.disconnectPause && !r.tolerance.pending() {
		r.timer.disconnectPause = false
		r.timer.manualPause = true
	}

	r.markIdleIfAbandoned()
	if !r.idleSince.IsZero() && r.clock.Now().Sub(r.idleSince) >= r.cfg.IdleTTL && r.onIdle != nil {
		go r.onIdle(r.id)
	}
}

// end marks the session terminal. SessionEnded fires exactly once; the
// room lingers for summary reads until the registry drops it.
func (r *Room) end(reason string) {
	r.timer.over = true
	r.endedReason = reason
	r.publish(EventTypeSessionEnded, SessionEndedPayload{Reason: reason})
	r.idleSince = r.clock.Now()
	log.Info().Str("session_id", r.id).Str("reason", reason).Msg("session ended")
}

func (r *Room) markIdleIfAbandoned() {
	for _, p := range r.roster {
		if p.Online {
			return
		}
	}
	if r.idleSince.IsZero() {
		r.idleSince = r.clock.Now()
	}
}

func (r *Room) ack(to Sender, cmd CommandType, reason string) {
	payload := CommandAckPayload{Command: string(cmd), Applied: false, Reason: reason}
	r.sink.PublishTo(r.id, to.ConnectionID, NewEvent(r.id, EventTypeCommandAck, r.clock.Now(), payload))
}

func (r *Room) publish(typ EventType, payload any) {
	r.sink.Publish(r.id, NewEvent(r.id, typ, r.clock.Now(), payload))
}

func (r *Room) publishExcept(connectionID string, typ EventType, payload any) {
	r.sink.PublishExcept(r.id, connectionID, NewEvent(r.id, typ, r.clock.Now(), payload))
}

func (r *Room) rosterCopy() []Participant {
	out := make([]Participant, 0, len(r.roster))
	for _, p := range r.roster {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

func (r *Room) snapshot() *Snapshot {
	revealed := make([]string, 0, len(r.revealed))
	for id := range r.revealed {
		revealed = append(revealed, id)
	}
	sort.Strings(revealed)

	checklist := make(map[string]ItemState, len(r.checklist))
	for id, st := range r.checklist {
		checklist[id] = st
	}

	return &Snapshot{
		SessionID:          r.id,
		StationID:          r.stationID,
		ChecklistID:        r.checklistID,
		CreatedAt:          r.createdAt,
		DurationMinutes:    r.durationMin,
		TimerMode:          r.timer.mode,
		RemainingSec:       r.timer.remainingSec,
		ElapsedSec:         r.timer.elapsedSec,
		Started:            r.timer.started,
		Over:               r.timer.over,
		ManuallyPaused:     r.timer.manualPause,
		PausedByDisconnect: r.timer.disconnectPause,
		Roster:             r.rosterCopy(),
		Checklist:          checklist,
		RevealedMaterials:  revealed,
		ToleranceSec:       r.tolerance.min(),
	}
}
