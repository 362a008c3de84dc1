package domain

import "github.com/google/uuid"

type (
	RoomID       string
	ConnectionID string
	ProducerID   string
)

// NewConnectionID returns an identifier for a live channel. Ids are never
// reused, so a reconnect always gets a new one.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// NewRoomID returns a shareable call code.
func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}
