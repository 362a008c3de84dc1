package app

import (
	"time"

	"github.com/stagioo/Call-sub001/internal/domain"
)

// Outbound event types broadcast to signaling channels.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventHostChanged    = "host-changed"
	EventNewProducer    = "newProducer"
	EventProducerClosed = "producerClosed"
	EventProducerMuted  = "producerMuted"
	EventJoinRequest    = "join-request"
	EventAcceptJoin     = "acceptJoin"
	EventRejectJoin     = "rejectJoin"
	EventRoomClosed     = "room-closed"
)

type ParticipantEvent struct {
	Type        string             `json:"type"`
	RoomID      domain.RoomID      `json:"roomId"`
	Participant domain.Participant `json:"participant"`
}

type UserLeftEvent struct {
	Type         string              `json:"type"`
	RoomID       domain.RoomID       `json:"roomId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	UserID       domain.UserID       `json:"userId,omitempty"`
}

type ProducerEvent struct {
	Type   string              `json:"type"`
	RoomID domain.RoomID       `json:"roomId"`
	ID     domain.ProducerID   `json:"id"`
	PeerID domain.ConnectionID `json:"peerId"`
	Kind   domain.MediaKind    `json:"kind,omitempty"`
	Muted  bool                `json:"muted"`
}

type ProducerClosedEvent struct {
	Type       string              `json:"type"`
	RoomID     domain.RoomID       `json:"roomId"`
	ProducerID domain.ProducerID   `json:"producerId"`
	PeerID     domain.ConnectionID `json:"peerId"`
}

type JoinRequestEvent struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	RequesterID domain.UserID `json:"requesterId"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type JoinDecisionEvent struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"roomId"`
	PeerID    domain.UserID `json:"peerId"`
	DecidedBy domain.UserID `json:"decidedBy,omitempty"`
}

type RoomClosedEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

func newProducerEvent(room domain.RoomID, p domain.Producer) ProducerEvent {
	return ProducerEvent{Type: EventNewProducer, RoomID: room, ID: p.ID, PeerID: p.Owner, Kind: p.Kind, Muted: p.Muted}
}

func producerClosedEvent(room domain.RoomID, p domain.Producer) ProducerClosedEvent {
	return ProducerClosedEvent{Type: EventProducerClosed, RoomID: room, ProducerID: p.ID, PeerID: p.Owner}
}

type HostChangedEvent struct {
	Type        string              `json:"type"`
	RoomID      domain.RoomID       `json:"roomId"`
	HostID      domain.ConnectionID `json:"hostId"`
	Participant domain.Participant  `json:"participant"`
}
