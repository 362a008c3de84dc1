package core

import (
	"context"
	"errors"
	"time"

	"github.com/stagioo/Call-sub001/internal/domain"
)

// ErrBackpressure is returned by TrySend when the send buffer is full.
var ErrBackpressure = errors.New("backpressure")

// Frame is a serialized signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Deliverer routes outbound messages to live signaling channels.
// Implementations must not block: they are called under a room lock.
type Deliverer interface {
	Deliver(to domain.ConnectionID, msg any) error
	// DeliverToUser reaches every channel of user waiting on room and
	// reports how many were reached.
	DeliverToUser(user domain.UserID, room domain.RoomID, msg any) int
}

// CreatorStore is the durable creator-of-record fact store.
type CreatorStore interface {
	CreatorOf(ctx context.Context, room domain.RoomID) (domain.UserID, bool, error)
	// ClaimCreator records user as creator unless one exists, and returns
	// the effective creator.
	ClaimCreator(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.UserID, error)
}

const (
	NotifyJoinRequested = "join-requested"
	NotifyJoinApproved  = "join-approved"
	NotifyJoinRejected  = "join-rejected"
)

// Notification is an out-of-band event for a user who may not hold a
// signaling channel to the room.
type Notification struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"roomId"`
	Recipient domain.UserID `json:"recipient"`
	Requester domain.UserID `json:"requester,omitempty"`
	At        time.Time     `json:"at"`
}

// Notifier fans notifications out to external surfaces. Best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// RoomInfo is a read-only view for operator APIs.
type RoomInfo struct {
	ID           domain.RoomID       `json:"id"`
	Participants int                 `json:"participants"`
	Pending      int                 `json:"pending"`
	Host         domain.ConnectionID `json:"hostConnectionId,omitempty"`
	Creator      domain.UserID       `json:"creatorId,omitempty"`
	Mode         domain.AccessMode   `json:"accessMode"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// AccessResult is the outcome of an access check.
type AccessResult struct {
	IsCreator bool `json:"isCreator"`
	HasAccess bool `json:"hasAccess"`
}
