package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
	"github.com/stagioo/Call-sub001/internal/testsupport"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	clock    *clock
	sessions *Sessions
	rooms    *Rooms
	access   *Access
	media    *Media
	presence *Presence
	store    *testsupport.CreatorStoreStub
	notifier *testsupport.NotifierStub
	conns    map[domain.ConnectionID]*testsupport.RecordingConn
}

func newHarness(t *testing.T, engine core.MediaEngine, policy AccessPolicy) *harness {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:    c,
		sessions: NewSessions(SimplePolicy{}),
		store:    testsupport.NewCreatorStoreStub(),
		notifier: &testsupport.NotifierStub{},
		conns:    make(map[domain.ConnectionID]*testsupport.RecordingConn),
	}
	h.rooms = NewRooms(0, h.sessions)
	h.rooms.now = c.now
	h.access = NewAccess(h.rooms, h.store, h.notifier, policy)
	h.access.now = c.now
	h.media = NewMedia(h.rooms, engine)
	h.presence = NewPresence(h.rooms, h.sessions, h.media, engine)
	h.presence.RequestTTL = policy.RequestTTL
	return h
}

// connect binds a recording channel for conn with the given user id.
func (h *harness) connect(conn domain.ConnectionID, user domain.UserID) *testsupport.RecordingConn {
	rc := testsupport.NewRecordingConn()
	h.sessions.Bind(conn, domain.User{ID: user}, rc, func() { rc.Close() })
	h.conns[conn] = rc
	return rc
}

// enter admits conn into room the way the dispatcher does, after access
// was checked.
func (h *harness) enter(t *testing.T, room domain.RoomID, conn domain.ConnectionID) domain.Participant {
	t.Helper()
	user, ok := h.sessions.User(conn)
	require.True(t, ok)
	identity := Identity(conn, user)
	creator, err := h.access.Claim(t.Context(), room, user.ID)
	require.NoError(t, err)

	var self domain.Participant
	err = h.rooms.Do(room, true, func(r *core.Room, out *core.Outbox) error {
		if creator != "" {
			r.SetCreator(creator)
		}
		res := h.access.Evaluate(r, creator, identity)
		if !res.HasAccess {
			return domain.ErrAccessDenied
		}
		p, err := r.Admit(conn, user, res.IsCreator, h.clock.now())
		if err != nil {
			return err
		}
		require.True(t, h.sessions.UpdateRoom(conn, room))
		h.access.Consume(r, identity)
		out.Broadcast(r, conn, ParticipantEvent{Type: EventUserJoined, RoomID: room, Participant: p})
		self = p
		return nil
	})
	require.NoError(t, err)
	return self
}
