package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// reconcileMisses is how many consecutive reconciliation passes a producer
// may be missing from the engine before its record is dropped.
const reconcileMisses = 2

// Media keeps the per-room producer view and decides who is told to
// consume what. The records live on core.Room and die with it.
type Media struct {
	rooms  *Rooms
	engine core.MediaEngine
}

func NewMedia(rooms *Rooms, engine core.MediaEngine) *Media {
	return &Media{rooms: rooms, engine: engine}
}

// AddProducer registers p and announces it to every participant but its
// owner. A producer whose owner is no longer in the room is refused.
func (m *Media) AddProducer(room domain.RoomID, p domain.Producer) error {
	if p.ID == "" || p.Owner == "" {
		return domain.ErrInvalidMessage
	}
	if p.Kind == "" {
		p.Kind = domain.KindAudio
	}
	if !p.Kind.Valid() {
		return domain.ErrInvalidMessage
	}
	added := false
	err := m.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		var err error
		added, err = m.AddProducerLocked(r, out, p)
		return err
	})
	if err != nil {
		return err
	}
	if added {
		log.Info().Str("module", "app.media").Str("room_id", string(room)).Str("conn_id", string(p.Owner)).
			Str("producer_id", string(p.ID)).Str("kind", string(p.Kind)).Msg("producer added")
	}
	return nil
}

// AddProducerLocked is AddProducer for a caller already holding r.
// Re-announcing a known producer by its owner is a no-op.
func (m *Media) AddProducerLocked(r *core.Room, out *core.Outbox, p domain.Producer) (bool, error) {
	if _, ok := r.Participant(p.Owner); !ok {
		return false, domain.ErrNotMember
	}
	if cur, ok := r.Producer(p.ID); ok {
		if cur.Owner != p.Owner {
			return false, fmt.Errorf("%w: producer %s owned by another peer", domain.ErrInvalidMessage, p.ID)
		}
		return false, nil
	}
	r.PutProducer(p)
	out.Broadcast(r, p.Owner, newProducerEvent(r.ID(), p))
	return true, nil
}

// CloseProducer removes producer id once and announces it. by, when set,
// must be the owner. The engine side is released after the room step.
func (m *Media) CloseProducer(ctx context.Context, room domain.RoomID, id domain.ProducerID, by domain.ConnectionID) error {
	if err := m.dropProducer(room, id, by); err != nil {
		return err
	}
	if m.engine != nil {
		if err := m.engine.CloseProducer(ctx, id); err != nil {
			log.Warn().Err(err).Str("module", "app.media").Str("producer_id", string(id)).Msg("engine close producer")
		}
	}
	return nil
}

func (m *Media) dropProducer(room domain.RoomID, id domain.ProducerID, by domain.ConnectionID) error {
	return m.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		p, ok := r.Producer(id)
		if !ok {
			return domain.ErrProducerNotFound
		}
		if by != "" && p.Owner != by {
			return domain.ErrNotAuthorized
		}
		r.DeleteProducer(id)
		out.Broadcast(r, p.Owner, producerClosedEvent(r.ID(), p))
		log.Info().Str("module", "app.media").Str("room_id", string(room)).Str("producer_id", string(id)).Msg("producer closed")
		return nil
	})
}

// SetMuted flips the muted flag of a producer owned by by and pauses its
// forwarding in the engine.
func (m *Media) SetMuted(ctx context.Context, room domain.RoomID, id domain.ProducerID, muted bool, by domain.ConnectionID) error {
	changed := false
	err := m.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		p, ok := r.Producer(id)
		if !ok {
			return domain.ErrProducerNotFound
		}
		if by != "" && p.Owner != by {
			return domain.ErrNotAuthorized
		}
		if p.Muted == muted {
			return nil
		}
		p.Muted = muted
		r.PutProducer(p)
		changed = true
		ev := newProducerEvent(r.ID(), p)
		ev.Type = EventProducerMuted
		out.Broadcast(r, p.Owner, ev)
		return nil
	})
	if err != nil || !changed || m.engine == nil {
		return err
	}
	if err := m.engine.PauseProducer(ctx, id, muted); err != nil {
		log.Debug().Err(err).Str("module", "app.media").Str("producer_id", string(id)).Msg("engine pause producer")
	}
	return nil
}

// ProducersFor lists the producers of room that exclude should consume.
// The excluded connection's own producers are never included.
func (m *Media) ProducersFor(room domain.RoomID, exclude domain.ConnectionID) []domain.Producer {
	var out []domain.Producer
	m.rooms.Peek(room, func(r *core.Room) { out = r.ProducersExcept(exclude) })
	if out == nil {
		out = []domain.Producer{}
	}
	return out
}

// AnnounceClosedLocked broadcasts producerClosed for producers already
// dropped from r by a participant removal.
func (m *Media) AnnounceClosedLocked(r *core.Room, out *core.Outbox, producers []domain.Producer) {
	for _, p := range producers {
		out.Broadcast(r, p.Owner, producerClosedEvent(r.ID(), p))
	}
}

// Reconcile drops producer records the engine stopped relaying. A record is
// an orphan only once the engine has reported it and then left it out of
// reconcileMisses consecutive passes; records the engine never reported,
// such as one just announced or one that sends no media, are left alone.
// Records added after the engine snapshot was taken are left alone too.
func (m *Media) Reconcile(ctx context.Context, room domain.RoomID) (int, error) {
	if m.engine == nil {
		return 0, nil
	}
	var known []domain.ProducerID
	m.rooms.Peek(room, func(r *core.Room) {
		for _, p := range r.ProducersExcept("") {
			known = append(known, p.ID)
		}
	})
	if len(known) == 0 {
		return 0, nil
	}
	live, err := m.engine.LiveProducers(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}
	alive := make(map[domain.ProducerID]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}

	dropped := 0
	err = m.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		for _, id := range known {
			_, ok := alive[id]
			if r.ObserveProducer(id, ok) < reconcileMisses {
				continue
			}
			if p, ok := r.DeleteProducer(id); ok {
				out.Broadcast(r, p.Owner, producerClosedEvent(r.ID(), p))
				dropped++
			}
		}
		return nil
	})
	if dropped > 0 {
		log.Warn().Str("module", "app.media").Str("room_id", string(room)).Int("dropped", dropped).Msg("reconciled orphaned producers")
	}
	return dropped, err
}

// EndProducer drops a producer the engine reports as gone. The engine side
// is already released.
func (m *Media) EndProducer(room domain.RoomID, id domain.ProducerID) error {
	return m.dropProducer(room, id, "")
}
