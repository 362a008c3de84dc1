package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

type TransportReply struct {
	Reply
	core.TransportInfo
}

type SessionReply struct {
	Reply
	TransportID string                    `json:"transportId,omitempty"`
	SDP         webrtc.SessionDescription `json:"sdp"`
}

type ProducerReply struct {
	Reply
	ProducerID domain.ProducerID `json:"producerId"`
	Muted      bool              `json:"muted"`
}

type ProducersReply struct {
	Reply
	RoomID    domain.RoomID     `json:"roomId"`
	Producers []domain.Producer `json:"producers"`
}

type ConsumerOfferReply struct {
	Reply
	ConsumerID string                    `json:"consumerId"`
	ProducerID domain.ProducerID         `json:"producerId"`
	Kind       domain.MediaKind          `json:"kind"`
	SDP        webrtc.SessionDescription `json:"sdp"`
}

type CandidateEvent struct {
	Type        string                  `json:"type"`
	TransportID string                  `json:"transportId"`
	Candidate   webrtc.ICECandidateInit `json:"candidate"`
}

func (o *Orchestrator) engine() (core.MediaEngine, error) {
	if o.Engine == nil {
		return nil, fmt.Errorf("%w: no media engine configured", domain.ErrMediaEngine)
	}
	return o.Engine, nil
}

// handleCreateTransport calls the engine without any room lock held. If the
// connection left the room meanwhile the transport is released and the
// result dropped.
func (o *Orchestrator) handleCreateTransport(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var opts core.TransportOptions
	if err := req.decode(&opts); err != nil {
		return nil, err
	}
	eng, err := o.engine()
	if err != nil {
		return nil, err
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	info, err := eng.CreateTransport(ctx, room, conn, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}

	still := false
	o.Rooms.Peek(room, func(r *core.Room) {
		_, still = r.Participant(conn)
	})
	if !still || !o.Sessions.Alive(conn) {
		if err := eng.CloseConnection(ctx, conn); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn_id", string(conn)).Msg("release orphan transport")
		}
		return nil, domain.ErrConnectionClosed
	}
	return TransportReply{Reply: req.reply(""), TransportInfo: info}, nil
}

func (o *Orchestrator) handleConnectTransport(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		TransportID string                    `json:"transportId"`
		SDP         webrtc.SessionDescription `json:"sdp"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	if m.TransportID == "" || m.SDP.SDP == "" {
		return nil, domain.ErrInvalidMessage
	}
	eng, err := o.engine()
	if err != nil {
		return nil, err
	}
	if _, err := o.roomOf(conn); err != nil {
		return nil, err
	}
	answer, err := eng.ConnectTransport(ctx, conn, m.TransportID, m.SDP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}
	return SessionReply{Reply: req.reply(""), TransportID: m.TransportID, SDP: answer}, nil
}

func (o *Orchestrator) handleTransportCandidate(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		TransportID string                  `json:"transportId"`
		Candidate   webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	eng, err := o.engine()
	if err != nil {
		return nil, err
	}
	if err := eng.AddCandidate(ctx, conn, m.TransportID, m.Candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}
	return nil, nil
}

func (o *Orchestrator) handleNewProducer(_ context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		ID    domain.ProducerID `json:"id"`
		Kind  domain.MediaKind  `json:"kind"`
		Muted bool              `json:"muted"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	p := domain.Producer{ID: m.ID, Owner: conn, Kind: m.Kind, Muted: m.Muted}
	if err := o.Media.AddProducer(room, p); err != nil {
		return nil, err
	}
	return ProducerReply{Reply: req.reply(""), ProducerID: m.ID, Muted: m.Muted}, nil
}

func (o *Orchestrator) handleProducerClosed(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		ProducerID domain.ProducerID `json:"producerId"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	if err := o.Media.CloseProducer(ctx, room, m.ProducerID, conn); err != nil {
		return nil, err
	}
	return ProducerReply{Reply: req.reply(""), ProducerID: m.ProducerID}, nil
}

func (o *Orchestrator) handleProducerMuted(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		ProducerID domain.ProducerID `json:"producerId"`
		Muted      bool              `json:"muted"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	if err := o.Media.SetMuted(ctx, room, m.ProducerID, m.Muted, conn); err != nil {
		return nil, err
	}
	return ProducerReply{Reply: req.reply(""), ProducerID: m.ProducerID, Muted: m.Muted}, nil
}

func (o *Orchestrator) handleGetProducers(_ context.Context, conn domain.ConnectionID, req request) (any, error) {
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	return ProducersReply{Reply: req.reply("producers"), RoomID: room, Producers: o.Media.ProducersFor(room, conn)}, nil
}

func (o *Orchestrator) handleConsume(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		ProducerID domain.ProducerID `json:"producerId"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	var (
		p     domain.Producer
		found bool
	)
	o.Rooms.Peek(room, func(r *core.Room) { p, found = r.Producer(m.ProducerID) })
	if !found {
		return nil, domain.ErrProducerNotFound
	}
	if p.Owner == conn {
		return nil, fmt.Errorf("%w: cannot consume own producer", domain.ErrInvalidMessage)
	}
	eng, err := o.engine()
	if err != nil {
		return nil, err
	}
	info, err := eng.Consume(ctx, conn, m.ProducerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}
	kind := info.Kind
	if kind == "" {
		kind = p.Kind
	}
	return ConsumerOfferReply{
		Reply:      req.reply("consumerOffer"),
		ConsumerID: info.ID,
		ProducerID: m.ProducerID,
		Kind:       kind,
		SDP:        info.Offer,
	}, nil
}

func (o *Orchestrator) handleConsumerAnswer(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		SDP webrtc.SessionDescription `json:"sdp"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	if m.SDP.SDP == "" {
		return nil, domain.ErrInvalidMessage
	}
	eng, err := o.engine()
	if err != nil {
		return nil, err
	}
	if err := eng.CompleteConsume(ctx, conn, m.SDP); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaEngine, err)
	}
	return nil, nil
}

// TransportCandidate pushes an engine-side ICE candidate to the peer.
func (o *Orchestrator) TransportCandidate(conn domain.ConnectionID, transportID string, c webrtc.ICECandidateInit) {
	o.send(conn, CandidateEvent{Type: "transportCandidate", TransportID: transportID, Candidate: c})
}

// ProducerStarted registers a producer the engine began relaying.
func (o *Orchestrator) ProducerStarted(room domain.RoomID, p domain.Producer) {
	if err := o.Media.AddProducer(room, p); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room_id", string(room)).Str("producer_id", string(p.ID)).Msg("engine producer refused")
		if o.Engine != nil && errors.Is(err, domain.ErrNotMember) {
			if err := o.Engine.CloseProducer(context.Background(), p.ID); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("room_id", string(room)).Str("producer_id", string(p.ID)).Msg("release refused producer")
			}
		}
	}
}

// ProducerEnded drops a producer the engine stopped relaying.
func (o *Orchestrator) ProducerEnded(room domain.RoomID, id domain.ProducerID) {
	if err := o.Media.EndProducer(room, id); err != nil && !errors.Is(err, domain.ErrProducerNotFound) && !errors.Is(err, domain.ErrRoomNotFound) {
		log.Debug().Err(err).Str("module", "orch").Str("room_id", string(room)).Str("producer_id", string(id)).Msg("engine producer end")
	}
}
