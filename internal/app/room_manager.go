package app

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// Rooms is the room registry. The map lock only guards lookup, insert and
// delete; each room carries its own mutex so unrelated rooms never contend.
// Lock order is always room, then map.
type Rooms struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*core.Room
	capacity int
	out      core.Deliverer
	now      func() time.Time
}

// NewRooms builds a registry. capacity <= 0 means unlimited participants.
func NewRooms(capacity int, out core.Deliverer) *Rooms {
	return &Rooms{
		rooms:    make(map[domain.RoomID]*core.Room),
		capacity: capacity,
		out:      out,
		now:      time.Now,
	}
}

// GetOrCreate returns the live room for id, creating it on first use.
func (f *Rooms) GetOrCreate(id domain.RoomID) *core.Room {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoom(id, f.capacity, f.now())
	f.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room created")
	return room
}

func (f *Rooms) lookup(id domain.RoomID) (*core.Room, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

// Do runs fn as one linearizable step on room id. Messages queued on the
// outbox are delivered before the room lock is released. A step that empties
// the room, leaves it idle or closes it evicts it in the same step.
func (f *Rooms) Do(id domain.RoomID, create bool, fn func(*core.Room, *core.Outbox) error) error {
	for {
		var room *core.Room
		if create {
			room = f.GetOrCreate(id)
		} else {
			r, ok := f.lookup(id)
			if !ok {
				return domain.ErrRoomNotFound
			}
			room = r
		}

		room.Lock()
		if room.Evicted() {
			// Lost a race with eviction; retry against the fresh registration.
			room.Unlock()
			continue
		}
		before := room.Len()
		var out core.Outbox
		err := fn(room, &out)
		if room.Len() == 0 && (before > 0 || room.Idle() || room.Closed()) {
			f.evictLocked(room)
		}
		out.Flush(f.out)
		room.Unlock()
		return err
	}
}

// Peek runs a read-only fn on room id without evicting or delivering.
func (f *Rooms) Peek(id domain.RoomID, fn func(*core.Room)) bool {
	room, ok := f.lookup(id)
	if !ok {
		return false
	}
	room.Lock()
	defer room.Unlock()
	if room.Evicted() {
		return false
	}
	fn(room)
	return true
}

// CacheCreator records creator on the live room id, if there is one. It
// never creates or evicts a room and the room keeps its first creator.
func (f *Rooms) CacheCreator(id domain.RoomID, creator domain.UserID) {
	room, ok := f.lookup(id)
	if !ok {
		return
	}
	room.Lock()
	defer room.Unlock()
	if !room.Evicted() {
		room.SetCreator(creator)
	}
}

func (f *Rooms) evictLocked(room *core.Room) {
	room.MarkEvicted()
	f.mu.Lock()
	if f.rooms[room.ID()] == room {
		delete(f.rooms, room.ID())
	}
	f.mu.Unlock()
	log.Info().Str("module", "app.rooms").Str("room_id", string(room.ID())).Msg("room evicted")
}

// Admit inserts a participant into room id, creating the room if needed.
func (f *Rooms) Admit(id domain.RoomID, conn domain.ConnectionID, user domain.User, asHost bool) (domain.Participant, error) {
	var p domain.Participant
	err := f.Do(id, true, func(r *core.Room, _ *core.Outbox) error {
		var err error
		p, err = r.Admit(conn, user, asHost, f.now())
		return err
	})
	if err == nil {
		log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("conn_id", string(conn)).Str("role", string(p.Role)).Msg("participant admitted")
	}
	return p, err
}

// Remove deletes a participant. The room is evicted in the same step when
// it becomes empty.
func (f *Rooms) Remove(id domain.RoomID, conn domain.ConnectionID) (core.RemovalOutcome, error) {
	var outcome core.RemovalOutcome
	err := f.Do(id, false, func(r *core.Room, _ *core.Outbox) error {
		o, ok := r.Remove(conn)
		if !ok {
			return domain.ErrNotMember
		}
		outcome = o
		return nil
	})
	return outcome, err
}

// ListOthers returns the participants of id except exclude.
func (f *Rooms) ListOthers(id domain.RoomID, exclude domain.ConnectionID) []domain.Participant {
	var out []domain.Participant
	f.Peek(id, func(r *core.Room) { out = r.Others(exclude) })
	return out
}

// Info returns the operator view of one room.
func (f *Rooms) Info(id domain.RoomID) (core.RoomInfo, bool) {
	var info core.RoomInfo
	ok := f.Peek(id, func(r *core.Room) { info = r.Info() })
	return info, ok
}

func (f *Rooms) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := make([]*core.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.Lock()
		if !r.Evicted() {
			out = append(out, r.Info())
		}
		r.Unlock()
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (f *Rooms) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

// Sweep purges expired requests in every room and evicts rooms that have
// stayed idle for longer than grace. It returns the rooms still live.
func (f *Rooms) Sweep(grace, ttl time.Duration) (live []domain.RoomID, evicted int) {
	f.mu.RLock()
	rooms := make([]*core.Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	now := f.now()
	for _, r := range rooms {
		r.Lock()
		if r.Evicted() {
			r.Unlock()
			continue
		}
		if n := r.PurgeExpired(now, ttl); n > 0 {
			log.Debug().Str("module", "app.rooms").Str("room_id", string(r.ID())).Int("purged", n).Msg("expired join requests")
		}
		if r.Idle() && now.Sub(r.CreatedAt()) >= grace {
			f.evictLocked(r)
			evicted++
		} else {
			live = append(live, r.ID())
		}
		r.Unlock()
	}
	return live, evicted
}
