package testsupport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// CreatorStoreStub is an in-memory core.CreatorStore that counts lookups and
// can be told to fail.
type CreatorStoreStub struct {
	mu       sync.Mutex
	creators map[domain.RoomID]domain.UserID
	err      error

	Lookups atomic.Int64
}

func NewCreatorStoreStub() *CreatorStoreStub {
	return &CreatorStoreStub{creators: make(map[domain.RoomID]domain.UserID)}
}

// Seed records creator for room.
func (s *CreatorStoreStub) Seed(room domain.RoomID, creator domain.UserID) {
	s.mu.Lock()
	s.creators[room] = creator
	s.mu.Unlock()
}

// FailWith makes every call return err until cleared with nil.
func (s *CreatorStoreStub) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *CreatorStoreStub) CreatorOf(_ context.Context, room domain.RoomID) (domain.UserID, bool, error) {
	s.Lookups.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	c, ok := s.creators[room]
	return c, ok, nil
}

func (s *CreatorStoreStub) ClaimCreator(_ context.Context, room domain.RoomID, user domain.UserID) (domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if c, ok := s.creators[room]; ok {
		return c, nil
	}
	s.creators[room] = user
	return user, nil
}

// NotifierStub records notifications.
type NotifierStub struct {
	mu   sync.Mutex
	sent []core.Notification
}

func (n *NotifierStub) Notify(_ context.Context, msg core.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	return nil
}

func (n *NotifierStub) Sent() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.sent...)
}
