package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/app/sfu"
	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrNoTransport      = errors.New("connection has no transport")
)

type transport struct {
	id        string
	room      domain.RoomID
	conn      domain.ConnectionID
	direction string
	rtc       *WebRTCConnection
}

// Engine is an in-process media relay built on pion. Every transport is a
// PeerConnection; every incoming track becomes a producer relayed by sfu.
type Engine struct {
	cfg    webrtc.Configuration
	relays *sfu.RelayManager
	base   context.Context

	mu         sync.RWMutex
	transports map[string]*transport
	byConn     map[domain.ConnectionID][]string
	observer   core.MediaObserver
}

func NewEngine(ctx context.Context, cfg webrtc.Configuration, relays *sfu.RelayManager) *Engine {
	if relays == nil {
		relays = sfu.NewRelayManager()
	}
	return &Engine{
		cfg:        cfg,
		relays:     relays,
		base:       ctx,
		transports: make(map[string]*transport),
		byConn:     make(map[domain.ConnectionID][]string),
	}
}

func (e *Engine) SetObserver(o core.MediaObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *Engine) obs() core.MediaObserver {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.observer
}

func (e *Engine) CreateTransport(_ context.Context, room domain.RoomID, conn domain.ConnectionID, opts core.TransportOptions) (core.TransportInfo, error) {
	id := uuid.NewString()
	wc, err := NewWebRTCConnection(e.cfg, conn, id)
	if err != nil {
		return core.TransportInfo{}, fmt.Errorf("new peer connection: %w", err)
	}
	t := &transport{id: id, room: room, conn: conn, direction: opts.Direction, rtc: wc}

	wc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if o := e.obs(); o != nil {
			o.TransportCandidate(conn, id, c)
		}
	})
	wc.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.onTrack(ctx, t, track)
	})
	wc.OnClosed(func() { e.dropTransport(id) })
	if err := wc.Start(e.base); err != nil {
		wc.Close()
		return core.TransportInfo{}, err
	}

	e.mu.Lock()
	e.transports[id] = t
	e.byConn[conn] = append(e.byConn[conn], id)
	e.mu.Unlock()

	log.Info().Str("module", "rtc.engine").Str("room_id", string(room)).Str("conn_id", string(conn)).
		Str("transport_id", id).Str("direction", opts.Direction).Msg("transport created")
	return core.TransportInfo{ID: id, Direction: opts.Direction, ICEServers: e.cfg.ICEServers}, nil
}

func (e *Engine) onTrack(ctx context.Context, t *transport, track *webrtc.TrackRemote) {
	id := domain.ProducerID(track.ID())
	relay, err := e.relays.StartRelay(ctx, t.room, t.conn, id, track, func() {
		if o := e.obs(); o != nil {
			o.ProducerEnded(t.room, id)
		}
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "rtc.engine").Str("room_id", string(t.room)).Str("conn_id", string(t.conn)).
			Str("producer_id", string(id)).Msg("track not relayed")
		return
	}
	if o := e.obs(); o != nil {
		o.ProducerStarted(t.room, domain.Producer{ID: id, Owner: t.conn, Kind: relay.Kind()})
	}
}

func (e *Engine) transport(conn domain.ConnectionID, id string) (*transport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.transports[id]
	if !ok || t.conn != conn {
		return nil, ErrUnknownTransport
	}
	return t, nil
}

// recvTransport picks the transport consumers are attached to: the newest
// "recv" one, else the newest of any direction.
func (e *Engine) recvTransport(conn domain.ConnectionID) (*transport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.byConn[conn]
	var fallback *transport
	for i := len(ids) - 1; i >= 0; i-- {
		t := e.transports[ids[i]]
		if t == nil {
			continue
		}
		if t.direction == "recv" {
			return t, nil
		}
		if fallback == nil {
			fallback = t
		}
	}
	if fallback == nil {
		return nil, ErrNoTransport
	}
	return fallback, nil
}

func (e *Engine) ConnectTransport(ctx context.Context, conn domain.ConnectionID, transportID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	t, err := e.transport(conn, transportID)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := t.rtc.ApplyOfferAndCreateAnswer(ctx, offer)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return *answer, nil
}

func (e *Engine) AddCandidate(_ context.Context, conn domain.ConnectionID, transportID string, c webrtc.ICECandidateInit) error {
	t, err := e.transport(conn, transportID)
	if err != nil {
		return err
	}
	return t.rtc.AddICECandidate(c)
}

func (e *Engine) Consume(ctx context.Context, conn domain.ConnectionID, producer domain.ProducerID) (core.ConsumerInfo, error) {
	relay, ok := e.relays.Relay(producer)
	if !ok {
		return core.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	if relay.Owner == conn {
		return core.ConsumerInfo{}, errors.New("cannot consume own producer")
	}
	t, err := e.recvTransport(conn)
	if err != nil {
		return core.ConsumerInfo{}, err
	}
	if relay.Room != t.room {
		return core.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	local, err := webrtc.NewTrackLocalStaticRTP(relay.Src.Codec().RTPCodecCapability, string(producer), string(relay.Owner))
	if err != nil {
		return core.ConsumerInfo{}, fmt.Errorf("local track: %w", err)
	}
	if _, err := t.rtc.AddLocalTrack(local); err != nil {
		return core.ConsumerInfo{}, fmt.Errorf("add track: %w", err)
	}
	consumerID := uuid.NewString()
	if !e.relays.AddSubscriber(producer, conn, consumerID, local) {
		return core.ConsumerInfo{}, domain.ErrProducerNotFound
	}
	offer, err := t.rtc.CreateOffer(ctx)
	if err != nil {
		e.relays.MarkSubscriberDelete(producer, conn)
		return core.ConsumerInfo{}, fmt.Errorf("offer: %w", err)
	}
	log.Info().Str("module", "rtc.engine").Str("conn_id", string(conn)).Str("producer_id", string(producer)).
		Str("consumer_id", consumerID).Msg("consumer created")
	return core.ConsumerInfo{ID: consumerID, ProducerID: producer, Kind: relay.Kind(), Offer: *offer}, nil
}

func (e *Engine) CompleteConsume(_ context.Context, conn domain.ConnectionID, answer webrtc.SessionDescription) error {
	t, err := e.recvTransport(conn)
	if err != nil {
		return err
	}
	return t.rtc.ApplyAnswer(answer)
}

func (e *Engine) CloseProducer(_ context.Context, producer domain.ProducerID) error {
	e.relays.StopRelay(producer)
	return nil
}

func (e *Engine) PauseProducer(_ context.Context, producer domain.ProducerID, paused bool) error {
	relay, ok := e.relays.Relay(producer)
	if !ok {
		return domain.ErrProducerNotFound
	}
	relay.SetPaused(paused)
	return nil
}

// CloseConnection tears down every transport of conn along with the relays
// it published and its subscriptions.
func (e *Engine) CloseConnection(_ context.Context, conn domain.ConnectionID) error {
	e.mu.Lock()
	ids := e.byConn[conn]
	delete(e.byConn, conn)
	ts := make([]*transport, 0, len(ids))
	for _, id := range ids {
		if t, ok := e.transports[id]; ok {
			ts = append(ts, t)
			delete(e.transports, id)
		}
	}
	e.mu.Unlock()

	stopped := e.relays.StopOwner(conn)
	e.relays.DropSubscriber(conn)
	for _, t := range ts {
		t.rtc.Close()
	}
	if len(ts) > 0 || len(stopped) > 0 {
		log.Info().Str("module", "rtc.engine").Str("conn_id", string(conn)).Int("transports", len(ts)).
			Int("producers", len(stopped)).Msg("connection media closed")
	}
	return nil
}

func (e *Engine) LiveProducers(_ context.Context, room domain.RoomID) ([]domain.ProducerID, error) {
	return e.relays.Producers(room), nil
}

func (e *Engine) dropTransport(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transports[id]
	if !ok {
		return
	}
	delete(e.transports, id)
	ids := e.byConn[t.conn]
	for i, v := range ids {
		if v == id {
			e.byConn[t.conn] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(e.byConn[t.conn]) == 0 {
		delete(e.byConn, t.conn)
	}
}

// Close releases every transport. Used on shutdown.
func (e *Engine) Close() {
	e.mu.RLock()
	conns := make([]domain.ConnectionID, 0, len(e.byConn))
	for c := range e.byConn {
		conns = append(conns, c)
	}
	e.mu.RUnlock()
	for _, c := range conns {
		_ = e.CloseConnection(context.Background(), c)
	}
}

func (e *Engine) Transports() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.transports)
}
