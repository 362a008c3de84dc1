package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/stagioo/Call-sub001/internal/domain"
)

type TransportOptions struct {
	// Direction is "send", "recv" or empty for both.
	Direction string `json:"direction,omitempty"`
}

type TransportInfo struct {
	ID         string             `json:"id"`
	Direction  string             `json:"direction,omitempty"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type ConsumerInfo struct {
	ID         string                    `json:"consumerId"`
	ProducerID domain.ProducerID         `json:"producerId"`
	Kind       domain.MediaKind          `json:"kind"`
	Offer      webrtc.SessionDescription `json:"offer"`
}

//go:generate mockgen -source=media_iface.go -destination=mocks/media_engine_mock.go -package=mocks

// MediaEngine is the external media-relay engine. Calls may be slow or fail
// and are never made while a room lock is held.
type MediaEngine interface {
	// CreateTransport allocates a transport for conn in room.
	CreateTransport(ctx context.Context, room domain.RoomID, conn domain.ConnectionID, opts TransportOptions) (TransportInfo, error)
	// ConnectTransport applies the remote offer and returns the engine answer.
	ConnectTransport(ctx context.Context, conn domain.ConnectionID, transportID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// AddCandidate applies a remote ICE candidate.
	AddCandidate(ctx context.Context, conn domain.ConnectionID, transportID string, c webrtc.ICECandidateInit) error
	// Consume subscribes conn to producer and returns the renegotiation offer.
	Consume(ctx context.Context, conn domain.ConnectionID, producer domain.ProducerID) (ConsumerInfo, error)
	// CompleteConsume applies the client answer to a consume offer.
	CompleteConsume(ctx context.Context, conn domain.ConnectionID, answer webrtc.SessionDescription) error
	CloseProducer(ctx context.Context, producer domain.ProducerID) error
	// PauseProducer stops or resumes forwarding of producer to consumers.
	PauseProducer(ctx context.Context, producer domain.ProducerID, paused bool) error
	// CloseConnection releases every transport, producer and consumer of conn.
	CloseConnection(ctx context.Context, conn domain.ConnectionID) error
	// LiveProducers lists producers the engine still relays for room.
	LiveProducers(ctx context.Context, room domain.RoomID) ([]domain.ProducerID, error)
	SetObserver(o MediaObserver)
}

// MediaObserver receives engine-originated events.
type MediaObserver interface {
	TransportCandidate(conn domain.ConnectionID, transportID string, c webrtc.ICECandidateInit)
	ProducerStarted(room domain.RoomID, p domain.Producer)
	ProducerEnded(room domain.RoomID, id domain.ProducerID)
}
