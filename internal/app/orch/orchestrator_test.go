package orch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/app"
	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
	"github.com/stagioo/Call-sub001/internal/testsupport"
)

type fixture struct {
	o     *Orchestrator
	store *testsupport.CreatorStoreStub
	conns map[domain.ConnectionID]*testsupport.RecordingConn
}

type allowAll struct{ denied bool }

func (a allowAll) Allow(domain.UserID) bool { return !a.denied }

func newFixture(t *testing.T, engine core.MediaEngine) *fixture {
	t.Helper()
	sessions := app.NewSessions(app.SimplePolicy{})
	rooms := app.NewRooms(0, sessions)
	store := testsupport.NewCreatorStoreStub()
	access := app.NewAccess(rooms, store, nil, app.DefaultAccessPolicy())
	media := app.NewMedia(rooms, engine)
	presence := app.NewPresence(rooms, sessions, media, engine)
	o := New(Orchestrator{
		Rooms:    rooms,
		Sessions: sessions,
		Access:   access,
		Media:    media,
		Presence: presence,
		Engine:   engine,
		Limiter:  allowAll{},
	})
	return &fixture{o: o, store: store, conns: make(map[domain.ConnectionID]*testsupport.RecordingConn)}
}

func (f *fixture) connect(conn domain.ConnectionID, user domain.UserID) *testsupport.RecordingConn {
	rc := testsupport.NewRecordingConn()
	f.o.Sessions.Bind(conn, domain.User{ID: user}, rc, rc.Close)
	f.conns[conn] = rc
	return rc
}

func (f *fixture) send(t *testing.T, conn domain.ConnectionID, msg map[string]any) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	f.o.Handle(t.Context(), conn, b)
}

func (f *fixture) join(t *testing.T, conn domain.ConnectionID, room domain.RoomID) map[string]any {
	t.Helper()
	f.send(t, conn, map[string]any{"type": "join", "roomId": room})
	reply, ok := f.conns[conn].Last("room-participants")
	require.True(t, ok, "join failed: %v", f.conns[conn].Messages())
	return reply
}

// openRoom seeds R1 created by u1, joins c1 (u1) and opens it, then joins c2 (u2).
func openRoom(t *testing.T, f *fixture) {
	t.Helper()
	f.store.Seed("R1", "u1")
	f.connect("c1", "u1")
	f.connect("c2", "u2")
	f.join(t, "c1", "R1")
	f.send(t, "c1", map[string]any{"type": "set-access-mode", "roomId": "R1", "mode": "open"})
	f.join(t, "c2", "R1")
}

func lastError(t *testing.T, rc *testsupport.RecordingConn) map[string]any {
	t.Helper()
	m, ok := rc.Last("error")
	require.True(t, ok, "no error reply in %v", rc.Types())
	return m
}

func TestHandleInvalidJSON(t *testing.T) {
	f := newFixture(t, nil)
	rc := f.connect("c1", "u1")

	f.o.Handle(t.Context(), "c1", []byte("{not json"))

	msgs := rc.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Invalid JSON", msgs[0]["error"])
	assert.False(t, rc.Closed(), "the channel stays open")
}

func TestHandleUnknownTypeIsAcked(t *testing.T) {
	f := newFixture(t, nil)
	rc := f.connect("c1", "u1")

	f.send(t, "c1", map[string]any{"type": "dance", "reqId": "42"})

	m, ok := rc.Last("ack")
	require.True(t, ok)
	assert.Equal(t, "42", m["reqId"])
}

func TestJoinFirstBecomesHost(t *testing.T) {
	f := newFixture(t, nil)
	f.connect("c1", "u1")

	reply := f.join(t, "c1", "R1")

	assert.Equal(t, "c1", reply["hostId"])
	self := reply["self"].(map[string]any)
	assert.Equal(t, "host", self["role"])
	assert.Empty(t, reply["participants"])
}

func TestJoinScenarioRequestApproveJoin(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Seed("R1", "u1")
	host := f.connect("c1", "u1")
	guest := f.connect("c2", "u2")
	f.join(t, "c1", "R1")

	f.send(t, "c2", map[string]any{"type": "join", "roomId": "R1"})
	assert.Equal(t, "AccessDenied", lastError(t, guest)["code"])

	f.send(t, "c2", map[string]any{"type": "request-join", "roomId": "R1", "reqId": "r1"})
	pending, ok := guest.Last("join-request-pending")
	require.True(t, ok)
	assert.Equal(t, "pending", pending["status"])
	assert.Equal(t, "r1", pending["reqId"])

	req, ok := host.Last("join-request")
	require.True(t, ok)
	assert.Equal(t, "u2", req["requesterId"])

	f.send(t, "c1", map[string]any{"type": "acceptJoin", "roomId": "R1", "peerId": "u2"})
	_, ok = guest.Last("acceptJoin")
	require.True(t, ok)

	reply := f.join(t, "c2", "R1")
	others := reply["participants"].([]any)
	require.Len(t, others, 1)
	assert.Equal(t, "c1", others[0].(map[string]any)["connectionId"])
	_, ok = host.Last("user-joined")
	assert.True(t, ok)
}

func TestDecisionByGuestIsRefused(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)

	f.send(t, "c2", map[string]any{"type": "approve-join", "roomId": "R1", "requesterId": "u3"})
	assert.Equal(t, "NotAuthorized", lastError(t, f.conns["c2"])["code"])
}

func TestJoinTwiceIsAlreadyMember(t *testing.T) {
	f := newFixture(t, nil)
	f.connect("c1", "u1")
	f.join(t, "c1", "R1")

	f.send(t, "c1", map[string]any{"type": "join", "roomId": "R1"})
	assert.Equal(t, "AlreadyMember", lastError(t, f.conns["c1"])["code"])
}

func TestJoinAnotherRoomLeavesTheFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.connect("c1", "u1")
	f.join(t, "c1", "R1")
	f.join(t, "c1", "R2")

	room, ok := f.o.Sessions.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("R2"), room)
	_, ok = f.o.Rooms.Info("R1")
	assert.False(t, ok, "the emptied room is gone")
}

func TestDeniedJoinKeepsCurrentRoom(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)
	f.store.Seed("R9", "u9")

	f.send(t, "c2", map[string]any{"type": "join", "roomId": "R9"})
	assert.Equal(t, "AccessDenied", lastError(t, f.conns["c2"])["code"])

	room, ok := f.o.Sessions.RoomOf("c2")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("R1"), room)
	assert.Zero(t, f.conns["c1"].Count("user-left"))
	_, ok = f.o.Rooms.Info("R9")
	assert.False(t, ok)
}

func TestJoinRejectsForeignUserID(t *testing.T) {
	f := newFixture(t, nil)
	f.connect("c1", "u1")

	f.send(t, "c1", map[string]any{"type": "join", "roomId": "R1", "userId": "admin"})
	assert.Equal(t, "NotAuthorized", lastError(t, f.conns["c1"])["code"])
}

func TestJoinAcceptsClientIDWhenTrusted(t *testing.T) {
	f := newFixture(t, nil)
	f.o.TrustClientIDs = true
	f.connect("c1", "")

	f.send(t, "c1", map[string]any{"type": "join", "roomId": "R1", "userId": "u7", "displayName": "Ann"})
	reply, ok := f.conns["c1"].Last("room-participants")
	require.True(t, ok)
	self := reply["self"].(map[string]any)
	assert.Equal(t, "u7", self["userId"])
	assert.Equal(t, "Ann", self["displayName"])
}

func TestJoinMissingRoomID(t *testing.T) {
	f := newFixture(t, nil)
	f.connect("c1", "u1")
	f.send(t, "c1", map[string]any{"type": "join", "reqId": "9"})

	e := lastError(t, f.conns["c1"])
	assert.Equal(t, "InvalidMessage", e["code"])
	assert.Equal(t, "9", e["reqId"])
}

func TestRequestJoinRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	f.o.Limiter = allowAll{denied: true}
	f.connect("c1", "u1")

	f.send(t, "c1", map[string]any{"type": "request-join", "roomId": "R1"})
	assert.Equal(t, "RateLimited", lastError(t, f.conns["c1"])["code"])
}

func TestLeaveNotifiesOthers(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)

	f.send(t, "c1", map[string]any{"type": "leave", "reqId": "x"})

	left, ok := f.conns["c1"].Last("left")
	require.True(t, ok)
	assert.Equal(t, "R1", left["roomId"])
	types := f.conns["c2"].Types()
	assert.Contains(t, types, "user-left")
	assert.Contains(t, types, "host-changed")

	f.send(t, "c1", map[string]any{"type": "leave"})
	assert.Equal(t, "NotMember", lastError(t, f.conns["c1"])["code"])
}

func TestRelayWithinRoom(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)
	f.connect("c3", "u3")

	f.send(t, "c1", map[string]any{"type": "offer", "to": "c2", "sdp": "v=0"})
	offer, ok := f.conns["c2"].Last("offer")
	require.True(t, ok)
	assert.Equal(t, "c1", offer["from"])
	assert.Equal(t, "v=0", offer["sdp"])

	f.send(t, "c1", map[string]any{"type": "ice-candidate", "to": "c3", "candidate": "x"})
	assert.Equal(t, "UnknownPeer", lastError(t, f.conns["c1"])["code"])
	assert.Zero(t, f.conns["c3"].Count("ice-candidate"))

	f.send(t, "c1", map[string]any{"type": "answer"})
	assert.Equal(t, "InvalidMessage", lastError(t, f.conns["c1"])["code"])
}

func TestPingAndWhoAmI(t *testing.T) {
	f := newFixture(t, nil)
	rc := f.connect("c1", "u1")
	f.join(t, "c1", "R1")

	f.send(t, "c1", map[string]any{"type": "ping", "reqId": "p"})
	pong, ok := rc.Last("pong")
	require.True(t, ok)
	assert.Equal(t, "p", pong["reqId"])

	f.send(t, "c1", map[string]any{"type": "whoami"})
	who, ok := rc.Last("whoami")
	require.True(t, ok)
	assert.Equal(t, "c1", who["connectionId"])
	assert.Equal(t, "u1", who["userId"])
	assert.Equal(t, "R1", who["roomId"])
}

func TestProducerSignalsWithoutEngine(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)

	f.send(t, "c1", map[string]any{"type": "newProducer", "id": "prod-1", "kind": "video"})
	ev, ok := f.conns["c2"].Last("newProducer")
	require.True(t, ok)
	assert.Equal(t, "prod-1", ev["id"])
	assert.Equal(t, "c1", ev["peerId"])
	ack, ok := f.conns["c1"].Last("newProducer")
	require.True(t, ok)
	_, announced := ack["peerId"]
	assert.False(t, announced, "the owner only gets its acknowledgement")

	f.send(t, "c2", map[string]any{"type": "getProducers"})
	list, ok := f.conns["c2"].Last("producers")
	require.True(t, ok)
	assert.Len(t, list["producers"], 1)

	f.send(t, "c1", map[string]any{"type": "producerMuted", "producerId": "prod-1", "muted": true})
	_, ok = f.conns["c2"].Last("producerMuted")
	assert.True(t, ok)

	f.send(t, "c1", map[string]any{"type": "producerClosed", "producerId": "prod-1"})
	_, ok = f.conns["c2"].Last("producerClosed")
	assert.True(t, ok)

	f.send(t, "c1", map[string]any{"type": "createWebRtcTransport"})
	assert.Equal(t, "MediaEngineFailure", lastError(t, f.conns["c1"])["code"])
}

func TestMistypedFieldsAreInvalid(t *testing.T) {
	f := newFixture(t, nil)
	openRoom(t, f)

	f.send(t, "c1", map[string]any{"type": "approve-join", "roomId": 5, "requesterId": "u3"})
	assert.Equal(t, "InvalidMessage", lastError(t, f.conns["c1"])["code"])

	f.send(t, "c1", map[string]any{"type": "acceptJoin", "roomId": "R1", "peerId": []string{"u3"}})
	assert.Equal(t, "InvalidMessage", lastError(t, f.conns["c1"])["code"])

	f.send(t, "c1", map[string]any{"type": "offer", "to": 42, "sdp": "v=0"})
	assert.Equal(t, "InvalidMessage", lastError(t, f.conns["c1"])["code"])
	assert.Zero(t, f.conns["c2"].Count("offer"))
	assert.Equal(t, 3, f.conns["c1"].Count("error"))
}
