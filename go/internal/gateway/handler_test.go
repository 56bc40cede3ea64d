package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/oscelab/simcore/go/internal/session"
)

type testGateway struct {
	registry *session.Registry
	server   *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	registry := session.NewRegistry(clockwork.NewFakeClock(), session.DefaultConfig(), cm)
	handler := NewHandler(registry, cm)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return &testGateway{registry: registry, server: server}
}

func (g *testGateway) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws/session?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads frames until an event of the given type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, typ session.EventType) *session.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var ev session.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == typ {
			return &ev
		}
	}
}

func TestHandshakeRejectionReasons(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.registry.Create("sess-A", "station-1", "check-1", 10, session.TimerModeDown); err != nil {
		t.Fatalf("create session: %v", err)
	}

	cases := []struct {
		name       string
		query      string
		wantStatus int
		wantReason RejectReason
	}{
		{"missing session id", "participant_id=p1&role=actor&station_id=station-1", http.StatusBadRequest, RejectMalformedHandshake},
		{"missing participant id", "session_id=sess-A&role=actor&station_id=station-1", http.StatusBadRequest, RejectMalformedHandshake},
		{"unknown role", "session_id=sess-A&participant_id=p1&role=patient&station_id=station-1", http.StatusBadRequest, RejectMalformedHandshake},
		{"unknown session", "session_id=sess-X&participant_id=p1&role=actor&station_id=station-1", http.StatusNotFound, RejectSessionNotFound},
		{"wrong station", "session_id=sess-A&participant_id=p1&role=actor&station_id=station-9", http.StatusConflict, RejectStationMismatch},
	}

	for _, tc := range cases {
		resp, err := http.Get(g.server.URL + "/ws/session?" + tc.query)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if resp.StatusCode != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.wantStatus)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		resp.Body.Close()
		if body["reason"] != string(tc.wantReason) {
			t.Errorf("%s: reason = %q, want %q", tc.name, body["reason"], tc.wantReason)
		}
	}
}

func TestJoinReceivesSnapshot(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.registry.Create("sess-A", "station-1", "check-1", 10, session.TimerModeDown); err != nil {
		t.Fatalf("create session: %v", err)
	}

	conn := g.dial(t, "session_id=sess-A&participant_id=p1&role=actor&station_id=station-1&nickname=Sam")
	ev := readEvent(t, conn, session.EventTypeSnapshot)

	var snap session.Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID != "sess-A" || snap.RemainingSec != 600 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Roster) != 1 || snap.Roster[0].Nickname != "Sam" {
		t.Fatalf("unexpected roster: %+v", snap.Roster)
	}
}

func TestEventsStayWithinTheirSession(t *testing.T) {
	g := newTestGateway(t)
	for _, id := range []string{"sess-A", "sess-B"} {
		if _, err := g.registry.Create(id, "station-1", "check-1", 10, session.TimerModeDown); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	actorA := g.dial(t, "session_id=sess-A&participant_id=actor-a&role=actor&station_id=station-1")
	readEvent(t, actorA, session.EventTypeSnapshot)
	obsA := g.dial(t, "session_id=sess-A&participant_id=obs-a&role=observer&station_id=station-1")
	readEvent(t, obsA, session.EventTypeSnapshot)
	obsB := g.dial(t, "session_id=sess-B&participant_id=obs-b&role=observer&station_id=station-1")
	readEvent(t, obsB, session.EventTypeSnapshot)

	cmd := `{"type":"UpdateChecklistItem","data":{"item_id":"item-1","evaluation":"adequate","score":1}}`
	if err := actorA.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatalf("send command: %v", err)
	}

	ev := readEvent(t, obsA, session.EventTypeChecklistItemUpdated)
	if ev.SessionID != "sess-A" {
		t.Fatalf("event for %q on session A connection", ev.SessionID)
	}

	// Session B must see nothing from session A.
	obsB.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := obsB.ReadMessage(); err == nil {
		t.Fatalf("session B received foreign event: %s", raw)
	}
}

func TestMalformedCommandGetsSenderOnlyRejection(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.registry.Create("sess-A", "station-1", "check-1", 10, session.TimerModeDown); err != nil {
		t.Fatalf("create session: %v", err)
	}

	actor := g.dial(t, "session_id=sess-A&participant_id=p1&role=actor&station_id=station-1")
	readEvent(t, actor, session.EventTypeSnapshot)
	obs := g.dial(t, "session_id=sess-A&participant_id=p2&role=observer&station_id=station-1")
	readEvent(t, obs, session.EventTypeSnapshot)

	if err := actor.WriteMessage(websocket.TextMessage, []byte(`{"type":"MakeCoffee"}`)); err != nil {
		t.Fatalf("send command: %v", err)
	}

	ev := readEvent(t, actor, session.EventTypeCommandAck)
	var ack session.CommandAckPayload
	if err := json.Unmarshal(ev.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Applied {
		t.Fatal("malformed command must not be applied")
	}

	obs.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := obs.ReadMessage(); err == nil {
		t.Fatalf("rejection leaked to another participant: %s", raw)
	}
}

func TestReconnectReusesRosterEntry(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.registry.Create("sess-A", "station-1", "check-1", 10, session.TimerModeDown); err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := g.dial(t, "session_id=sess-A&participant_id=act&role=actor&station_id=station-1&nickname=Sam")
	readEvent(t, first, session.EventTypeSnapshot)
	first.Close()

	// Allow the gateway to report the disconnect to the room.
	time.Sleep(50 * time.Millisecond)

	second := g.dial(t, "session_id=sess-A&participant_id=act&role=observer&station_id=station-1&nickname=Impostor")
	ev := readEvent(t, second, session.EventTypeSnapshot)

	var snap session.Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Roster) != 1 {
		t.Fatalf("reconnect must not grow the roster: %+v", snap.Roster)
	}
	if snap.Roster[0].Role != session.RoleActor || snap.Roster[0].Nickname != "Sam" {
		t.Fatalf("identity not restored: %+v", snap.Roster[0])
	}
}
