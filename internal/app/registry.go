package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

type sessionEntry struct {
	User    domain.User
	Room    domain.RoomID
	Waiting map[domain.RoomID]struct{}
	Signal  core.SignalConnection
	Cancel  context.CancelFunc
	closed  bool
}

// Sessions tracks live signaling channels and routes outbound messages to
// them. It implements core.Deliverer.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*sessionEntry
	policy   Policy
}

func NewSessions(policy Policy) *Sessions {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Sessions{
		sessions: make(map[domain.ConnectionID]*sessionEntry),
		policy:   policy,
	}
}

// Bind registers a freshly opened channel.
func (s *Sessions) Bind(conn domain.ConnectionID, user domain.User, sig core.SignalConnection, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conn] = &sessionEntry{
		User:    user,
		Waiting: make(map[domain.RoomID]struct{}),
		Signal:  sig,
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.sessions").Str("conn_id", string(conn)).Str("user_id", string(user.ID)).Msg("bound signal")
}

func (s *Sessions) Unbind(conn domain.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conn)
	log.Info().Str("module", "app.sessions").Str("conn_id", string(conn)).Msg("unbind session")
}

// Close marks the channel closed and returns the room it was in. Any
// admission racing with Close observes Alive() == false and backs out.
func (s *Sessions) Close(conn domain.ConnectionID) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[conn]
	if !ok || e.closed {
		return "", false
	}
	e.closed = true
	clear(e.Waiting)
	return e.Room, true
}

func (s *Sessions) Alive(conn domain.ConnectionID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[conn]
	return ok && !e.closed
}

func (s *Sessions) User(conn domain.ConnectionID) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[conn]
	if !ok {
		return domain.User{}, false
	}
	return e.User, true
}

func (s *Sessions) UpdateUser(conn domain.ConnectionID, user domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[conn]
	if !ok {
		return false
	}
	e.User = user
	return true
}

func (s *Sessions) RoomOf(conn domain.ConnectionID) (domain.RoomID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[conn]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (s *Sessions) UpdateRoom(conn domain.ConnectionID, room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[conn]
	if !ok || e.closed {
		return false
	}
	e.Room = room
	delete(e.Waiting, room)
	log.Info().Str("module", "app.sessions").Str("conn_id", string(conn)).Str("room_id", string(room)).Msg("updated room")
	return true
}

// RemoveRoom clears the room association if it still points at room.
func (s *Sessions) RemoveRoom(conn domain.ConnectionID, room domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[conn]; ok && e.Room == room {
		e.Room = ""
	}
}

// Wait registers conn as waiting for a decision on room.
func (s *Sessions) Wait(conn domain.ConnectionID, room domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[conn]; ok && !e.closed {
		e.Waiting[room] = struct{}{}
	}
}

func (s *Sessions) Cancel(conn domain.ConnectionID) bool {
	s.mu.RLock()
	e, ok := s.sessions[conn]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("conn_id", string(conn)).Msg("canceled session")
	return true
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Deliver serializes msg and queues it on the channel of conn without
// blocking. A full buffer is handed to the backpressure policy.
func (s *Sessions) Deliver(conn domain.ConnectionID, msg any) error {
	s.mu.RLock()
	e, ok := s.sessions[conn]
	var sig core.SignalConnection
	if ok && !e.closed {
		sig = e.Signal
	}
	s.mu.RUnlock()
	if sig == nil {
		return domain.ErrConnectionClosed
	}
	return s.send(conn, sig, msg)
}

// DeliverToUser pushes msg to every channel of user waiting on room.
func (s *Sessions) DeliverToUser(user domain.UserID, room domain.RoomID, msg any) int {
	type target struct {
		conn domain.ConnectionID
		sig  core.SignalConnection
	}
	s.mu.RLock()
	var targets []target
	for conn, e := range s.sessions {
		if e.closed || e.Signal == nil {
			continue
		}
		if _, waiting := e.Waiting[room]; !waiting {
			continue
		}
		if Identity(conn, e.User) == user {
			targets = append(targets, target{conn, e.Signal})
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(targets, func(a, b target) int {
		switch {
		case a.conn < b.conn:
			return -1
		case a.conn > b.conn:
			return 1
		}
		return 0
	})

	n := 0
	for _, t := range targets {
		if err := s.send(t.conn, t.sig, msg); err == nil {
			n++
		}
	}
	return n
}

func (s *Sessions) send(conn domain.ConnectionID, sig core.SignalConnection, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}
	err = sig.TrySend(b)
	if errors.Is(err, core.ErrBackpressure) {
		switch s.policy.OnBackPressure(conn) {
		case KickMember:
			log.Warn().Str("module", "app.sessions").Str("conn_id", string(conn)).Msg("backpressure, kicking")
			s.Cancel(conn)
		case MarkSlow:
			log.Warn().Str("module", "app.sessions").Str("conn_id", string(conn)).Msg("slow consumer")
		}
	}
	return err
}

// Identity is the user id behind a channel, or the connection id for an
// anonymous guest.
func Identity(conn domain.ConnectionID, u domain.User) domain.UserID {
	if u.ID == "" {
		return domain.UserID(conn)
	}
	return u.ID
}
