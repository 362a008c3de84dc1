package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

func TestRoomsConcurrentAdmitsYieldOneHost(t *testing.T) {
	rooms := NewRooms(0, nil)
	const n = 64

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := domain.ConnectionID(fmt.Sprintf("c%02d", i))
			_, err := rooms.Admit("r1", conn, domain.User{ID: domain.UserID(conn)}, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	hosts := 0
	rooms.Peek("r1", func(r *core.Room) {
		assert.Equal(t, n, r.Len())
		for _, p := range r.Participants() {
			if p.IsHost() {
				hosts++
			}
		}
	})
	assert.Equal(t, 1, hosts)
}

func TestRoomsEvictWhenLastLeaves(t *testing.T) {
	rooms := NewRooms(0, nil)
	_, err := rooms.Admit("r1", "c1", domain.User{ID: "alice"}, false)
	require.NoError(t, err)
	require.Equal(t, 1, rooms.Count())

	_, err = rooms.Remove("r1", "c1")
	require.NoError(t, err)
	assert.Zero(t, rooms.Count())

	_, err = rooms.Remove("r1", "c1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomsRemoveUnknownParticipant(t *testing.T) {
	rooms := NewRooms(0, nil)
	_, err := rooms.Admit("r1", "c1", domain.User{}, false)
	require.NoError(t, err)

	_, err = rooms.Remove("r1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotMember)
	assert.Equal(t, 1, rooms.Count())
}

func TestRoomsCapacity(t *testing.T) {
	rooms := NewRooms(1, nil)
	_, err := rooms.Admit("r1", "c1", domain.User{}, false)
	require.NoError(t, err)
	_, err = rooms.Admit("r1", "c2", domain.User{}, false)
	assert.ErrorIs(t, err, domain.ErrRoomFullOrClosed)
}

func TestRoomsDoWithoutCreateOnMissingRoom(t *testing.T) {
	rooms := NewRooms(0, nil)
	called := false
	err := rooms.Do("nope", false, func(*core.Room, *core.Outbox) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.False(t, called)
}

func TestRoomsDoEvictsUntouchedIdleRoom(t *testing.T) {
	rooms := NewRooms(0, nil)
	err := rooms.Do("r1", true, func(*core.Room, *core.Outbox) error {
		return domain.ErrAccessDenied
	})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.Zero(t, rooms.Count(), "a denied first join leaves nothing behind")
}

func TestRoomsDoRetriesAfterEviction(t *testing.T) {
	rooms := NewRooms(0, nil)
	stale := rooms.GetOrCreate("r1")
	stale.Lock()
	rooms.evictLocked(stale)
	stale.Unlock()

	_, err := rooms.Admit("r1", "c1", domain.User{}, false)
	require.NoError(t, err)
	fresh := rooms.GetOrCreate("r1")
	assert.NotSame(t, stale, fresh)
}

func TestRoomsListAndInfo(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rooms := NewRooms(0, nil)
	rooms.now = c.now

	_, err := rooms.Admit("b", "c1", domain.User{ID: "alice"}, false)
	require.NoError(t, err)
	c.advance(time.Second)
	_, err = rooms.Admit("a", "c2", domain.User{ID: "bob"}, false)
	require.NoError(t, err)

	list := rooms.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoomID("b"), list[0].ID)
	assert.Equal(t, domain.RoomID("a"), list[1].ID)

	info, ok := rooms.Info("a")
	require.True(t, ok)
	assert.Equal(t, 1, info.Participants)
	assert.Equal(t, domain.ConnectionID("c2"), info.Host)
	assert.Equal(t, domain.AccessApprovalRequired, info.Mode)

	_, ok = rooms.Info("zzz")
	assert.False(t, ok)
}

func TestRoomsSweepEvictsIdleAfterGrace(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rooms := NewRooms(0, nil)
	rooms.now = c.now

	require.NoError(t, rooms.Do("pending", true, func(r *core.Room, _ *core.Outbox) error {
		r.PutRequest(&domain.JoinRequest{RoomID: "pending", RequesterID: "u", Status: domain.RequestPending, CreatedAt: c.now()})
		return nil
	}))
	_, err := rooms.Admit("busy", "c1", domain.User{}, false)
	require.NoError(t, err)

	live, evicted := rooms.Sweep(time.Minute, 10*time.Minute)
	assert.Zero(t, evicted)
	assert.ElementsMatch(t, []domain.RoomID{"pending", "busy"}, live)

	c.advance(11 * time.Minute)
	live, evicted = rooms.Sweep(time.Minute, 10*time.Minute)
	assert.Equal(t, 1, evicted, "the request expired and the room went idle")
	assert.Equal(t, []domain.RoomID{"busy"}, live)
}

func TestRoomsCacheCreator(t *testing.T) {
	rooms := NewRooms(0, nil)

	rooms.CacheCreator("r1", "alice")
	assert.Zero(t, rooms.Count(), "no room is created")

	_, err := rooms.Admit("r1", "c1", domain.User{ID: "bob"}, false)
	require.NoError(t, err)
	rooms.CacheCreator("r1", "alice")
	rooms.CacheCreator("r1", "mallory")

	info, ok := rooms.Info("r1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), info.Creator)
}
