package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
	"github.com/stagioo/Call-sub001/internal/testsupport"
)

type countingPolicy struct {
	action BackpressureAction
	calls  int
}

func (p *countingPolicy) OnBackPressure(domain.ConnectionID) BackpressureAction {
	p.calls++
	return p.action
}

func TestSessionsDeliver(t *testing.T) {
	s := NewSessions(nil)
	rc := testsupport.NewRecordingConn()
	s.Bind("c1", domain.User{ID: "u1"}, rc, nil)

	require.NoError(t, s.Deliver("c1", map[string]string{"type": "hello"}))
	assert.Equal(t, []string{"hello"}, rc.Types())

	assert.ErrorIs(t, s.Deliver("nobody", "x"), domain.ErrConnectionClosed)

	s.Close("c1")
	assert.ErrorIs(t, s.Deliver("c1", "x"), domain.ErrConnectionClosed)
}

func TestSessionsBackpressureKicks(t *testing.T) {
	s := NewSessions(SimplePolicy{})
	rc := testsupport.NewRecordingConn()
	cancelled := false
	s.Bind("c1", domain.User{}, rc, func() { cancelled = true })
	rc.SetFull(true)

	err := s.Deliver("c1", "x")
	assert.ErrorIs(t, err, core.ErrBackpressure)
	assert.True(t, cancelled)
}

func TestSessionsBackpressurePolicyIsConsulted(t *testing.T) {
	p := &countingPolicy{action: MarkSlow}
	s := NewSessions(p)
	rc := testsupport.NewRecordingConn()
	cancelled := false
	s.Bind("c1", domain.User{}, rc, func() { cancelled = true })
	rc.SetFull(true)

	_ = s.Deliver("c1", "x")
	_ = s.Deliver("c1", "y")
	assert.Equal(t, 2, p.calls)
	assert.False(t, cancelled)
}

func TestSessionsDeliverToUserReachesWaitingChannels(t *testing.T) {
	s := NewSessions(nil)
	waiting := testsupport.NewRecordingConn()
	other := testsupport.NewRecordingConn()
	anon := testsupport.NewRecordingConn()
	s.Bind("c1", domain.User{ID: "u2"}, waiting, nil)
	s.Bind("c2", domain.User{ID: "u2"}, other, nil)
	s.Bind("c3", domain.User{}, anon, nil)
	s.Wait("c1", "R1")
	s.Wait("c3", "R1")

	assert.Equal(t, 1, s.DeliverToUser("u2", "R1", map[string]string{"type": "acceptJoin"}))
	assert.Equal(t, 1, waiting.Count("acceptJoin"))
	assert.Zero(t, other.Count("acceptJoin"))

	assert.Equal(t, 1, s.DeliverToUser("c3", "R1", map[string]string{"type": "acceptJoin"}), "a guest is addressed by its connection")

	require.True(t, s.UpdateRoom("c1", "R1"))
	assert.Zero(t, s.DeliverToUser("u2", "R1", "x"), "admission ends the wait")
}

func TestSessionsRoomTracking(t *testing.T) {
	s := NewSessions(nil)
	s.Bind("c1", domain.User{ID: "u1"}, testsupport.NewRecordingConn(), nil)

	_, ok := s.RoomOf("c1")
	assert.False(t, ok)
	require.True(t, s.UpdateRoom("c1", "R1"))
	room, ok := s.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("R1"), room)

	s.RemoveRoom("c1", "R2")
	_, ok = s.RoomOf("c1")
	assert.True(t, ok, "a stale room id does not clear the current one")
	s.RemoveRoom("c1", "R1")
	_, ok = s.RoomOf("c1")
	assert.False(t, ok)

	assert.False(t, s.Cancel("ghost"))
	s.Unbind("c1")
	assert.Zero(t, s.Count())
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, domain.UserID("u1"), Identity("c1", domain.User{ID: "u1"}))
	assert.Equal(t, domain.UserID("c1"), Identity("c1", domain.User{}))
}
