package sfu

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/domain"
)

// RelayManager owns every running relay, keyed by producer.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ProducerID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ProducerID]*Relay),
	}
}

// ErrProducerTaken is returned when another connection already relays a
// producer with the same id.
var ErrProducerTaken = errors.New("producer id relayed by another connection")

// StartRelay creates a relay for producer id and starts its loop. A running
// relay of the same owner is replaced; one of another owner is left alone
// and ErrProducerTaken returned. onEnd runs once when the loop exits on its
// own while the relay is still registered.
func (m *RelayManager) StartRelay(ctx context.Context, room domain.RoomID, owner domain.ConnectionID, id domain.ProducerID, track *webrtc.TrackRemote, onEnd func()) (*Relay, error) {
	logger := log.With().
		Str("module", "relay").
		Str("room_id", string(room)).
		Str("conn_id", string(owner)).
		Str("producer_id", string(id)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(id, room, owner, track, cancel)
	if err := m.register(relay, &logger); err != nil {
		cancel()
		return nil, err
	}

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger, func() { m.finish(relay, onEnd) })
	return relay, nil
}

func (m *RelayManager) register(relay *Relay, logger *zerolog.Logger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.relays[relay.ID]; ok {
		if old.Owner != relay.Owner {
			logger.Warn().Str("holder", string(old.Owner)).Msg("producer id already relayed")
			return ErrProducerTaken
		}
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[relay.ID] = relay
	return nil
}

// finish unregisters relay after its loop ended. A relay that was replaced
// or stopped no longer owns its id, so onEnd stays silent for it.
func (m *RelayManager) finish(relay *Relay, onEnd func()) {
	if m.remove(relay.ID, relay) && onEnd != nil {
		onEnd()
	}
}

func (m *RelayManager) remove(id domain.ProducerID, relay *Relay) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relays[id] != relay {
		return false
	}
	delete(m.relays, id)
	return true
}

func (m *RelayManager) Relay(id domain.ProducerID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[id]
	return relay, ok
}

// AddSubscriber attaches an OutTrack for dst to the relay of producer id.
func (m *RelayManager) AddSubscriber(id domain.ProducerID, dst domain.ConnectionID, consumerID string, localTrack *webrtc.TrackLocalStaticRTP) bool {
	relay, ok := m.Relay(id)
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(consumerID, localTrack))
	return true
}

// MarkSubscriberDelete marks the OutTrack of dst on producer id as deleted.
func (m *RelayManager) MarkSubscriberDelete(id domain.ProducerID, dst domain.ConnectionID) {
	relay, ok := m.Relay(id)
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(dst); ok {
		ot.MarkDelete()
	}
}

// DropSubscriber detaches dst from every relay.
func (m *RelayManager) DropSubscriber(dst domain.ConnectionID) {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()
	for _, r := range relays {
		if ot, ok := r.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(id domain.ProducerID) bool {
	m.mu.Lock()
	relay, ok := m.relays[id]
	if ok {
		delete(m.relays, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
	return true
}

// StopOwner stops every relay published by owner.
func (m *RelayManager) StopOwner(owner domain.ConnectionID) []domain.ProducerID {
	m.mu.RLock()
	var ids []domain.ProducerID
	for id, r := range m.relays {
		if r.Owner == owner {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.StopRelay(id)
	}
	return ids
}

// HasRelay reports whether a relay exists for producer id.
func (m *RelayManager) HasRelay(id domain.ProducerID) bool {
	_, ok := m.Relay(id)
	return ok
}

// SrcTrack returns the source track for a given relay.
func (m *RelayManager) SrcTrack(id domain.ProducerID) (*webrtc.TrackRemote, bool) {
	relay, ok := m.Relay(id)
	if !ok {
		return nil, false
	}
	return relay.Src, true
}

// Producers lists producers relayed in room, sorted.
func (m *RelayManager) Producers(room domain.RoomID) []domain.ProducerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ProducerID
	for id, r := range m.relays {
		if r.Room == room {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
