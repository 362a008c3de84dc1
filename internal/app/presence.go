package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// Presence reacts to channel loss and keeps rooms tidy.
type Presence struct {
	rooms    *Rooms
	sessions *Sessions
	media    *Media
	engine   core.MediaEngine

	SweepInterval time.Duration
	IdleGrace     time.Duration
	RequestTTL    time.Duration
}

func NewPresence(rooms *Rooms, sessions *Sessions, media *Media, engine core.MediaEngine) *Presence {
	return &Presence{
		rooms:         rooms,
		sessions:      sessions,
		media:         media,
		engine:        engine,
		SweepInterval: 30 * time.Second,
		IdleGrace:     time.Minute,
	}
}

// Disconnect cleans up after a channel that is gone. The session is marked
// closed first so an admission in flight for it is discarded.
func (p *Presence) Disconnect(ctx context.Context, conn domain.ConnectionID) {
	room, ok := p.sessions.Close(conn)
	if ok && room != "" {
		if _, err := p.leave(room, conn); err != nil && !errors.Is(err, domain.ErrNotMember) && !errors.Is(err, domain.ErrRoomNotFound) {
			log.Warn().Err(err).Str("module", "app.presence").Str("conn_id", string(conn)).Msg("leave on disconnect")
		}
	}
	p.releaseMedia(ctx, conn)
	p.sessions.Unbind(conn)
	log.Info().Str("module", "app.presence").Str("conn_id", string(conn)).Str("room_id", string(room)).Msg("disconnected")
}

// Leave removes conn from room while its channel stays open.
func (p *Presence) Leave(ctx context.Context, room domain.RoomID, conn domain.ConnectionID) (core.RemovalOutcome, error) {
	o, err := p.leave(room, conn)
	if err != nil {
		return o, err
	}
	p.releaseMedia(ctx, conn)
	return o, nil
}

func (p *Presence) leave(room domain.RoomID, conn domain.ConnectionID) (core.RemovalOutcome, error) {
	var outcome core.RemovalOutcome
	err := p.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		o, ok := r.Remove(conn)
		if !ok {
			return domain.ErrNotMember
		}
		outcome = o
		p.leaveLocked(r, out, o)
		p.sessions.RemoveRoom(conn, room)
		return nil
	})
	if err == nil {
		log.Info().Str("module", "app.presence").Str("room_id", string(room)).Str("conn_id", string(conn)).
			Bool("was_host", outcome.WasHost).Int("remaining", outcome.Remaining).Msg("participant left")
	}
	return outcome, err
}

// leaveLocked fans out a removal: producerClosed for each cascaded
// producer, then user-left, then host-changed if a new host was promoted.
func (p *Presence) leaveLocked(r *core.Room, out *core.Outbox, o core.RemovalOutcome) {
	p.media.AnnounceClosedLocked(r, out, o.Producers)
	out.Broadcast(r, "", UserLeftEvent{
		Type:         EventUserLeft,
		RoomID:       r.ID(),
		ConnectionID: o.Removed.ConnectionID,
		UserID:       o.Removed.UserID,
	})
	if !o.WasHost {
		return
	}
	if next, ok := r.PromoteEarliest(); ok {
		out.Broadcast(r, "", HostChangedEvent{Type: EventHostChanged, RoomID: r.ID(), HostID: next.ConnectionID, Participant: next})
		log.Info().Str("module", "app.presence").Str("room_id", string(r.ID())).Str("conn_id", string(next.ConnectionID)).Msg("host promoted")
	}
}

// EvictRoom closes room, removes everyone and releases their media.
func (p *Presence) EvictRoom(ctx context.Context, room domain.RoomID) error {
	var conns []domain.ConnectionID
	err := p.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		r.Close()
		out.Broadcast(r, "", RoomClosedEvent{Type: EventRoomClosed, RoomID: room})
		for _, part := range r.Participants() {
			r.Remove(part.ConnectionID)
			p.sessions.RemoveRoom(part.ConnectionID, room)
			conns = append(conns, part.ConnectionID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range conns {
		p.releaseMedia(ctx, c)
	}
	log.Info().Str("module", "app.presence").Str("room_id", string(room)).Int("participants", len(conns)).Msg("room closed by operator")
	return nil
}

func (p *Presence) releaseMedia(ctx context.Context, conn domain.ConnectionID) {
	if p.engine == nil {
		return
	}
	if err := p.engine.CloseConnection(ctx, conn); err != nil {
		log.Debug().Err(err).Str("module", "app.presence").Str("conn_id", string(conn)).Msg("close media")
	}
}

// Sweep runs one maintenance pass.
func (p *Presence) Sweep(ctx context.Context) {
	live, evicted := p.rooms.Sweep(p.IdleGrace, p.RequestTTL)
	for _, room := range live {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.media.Reconcile(ctx, room); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			log.Warn().Err(err).Str("module", "app.presence").Str("room_id", string(room)).Msg("reconcile")
		}
	}
	if evicted > 0 {
		log.Info().Str("module", "app.presence").Int("evicted", evicted).Int("live", len(live)).Msg("sweep")
	}
}

// Run sweeps every SweepInterval until ctx is done.
func (p *Presence) Run(ctx context.Context) {
	if p.SweepInterval <= 0 {
		return
	}
	t := time.NewTicker(p.SweepInterval)
	defer t.Stop()
	log.Info().Str("module", "app.presence").Dur("interval", p.SweepInterval).Msg("supervisor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.presence").Msg("supervisor stopped")
			return
		case <-t.C:
			p.Sweep(ctx)
		}
	}
}
