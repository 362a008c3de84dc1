// Package store holds creator-of-record stores.
package store

import (
	"context"
	"sync"

	"github.com/stagioo/Call-sub001/internal/domain"
)

// MemoryStore keeps creators in process memory. Facts are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	creators map[domain.RoomID]domain.UserID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creators: make(map[domain.RoomID]domain.UserID)}
}

func (s *MemoryStore) CreatorOf(_ context.Context, room domain.RoomID) (domain.UserID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.creators[room]
	return u, ok, nil
}

func (s *MemoryStore) ClaimCreator(_ context.Context, room domain.RoomID, user domain.UserID) (domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.creators[room]; ok {
		return cur, nil
	}
	s.creators[room] = user
	return user, nil
}
