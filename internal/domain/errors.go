package domain

import "errors"

var (
	ErrAlreadyMember     = errors.New("already a member of this room")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrAccessDenied      = errors.New("access denied")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFullOrClosed  = errors.New("room is full or closed")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrMediaEngine       = errors.New("media engine failure")
	ErrRequestNotFound   = errors.New("join request not found")
	ErrNotMember         = errors.New("not a participant of this room")
	ErrUnknownPeer       = errors.New("unknown peer")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrRateLimited       = errors.New("too many requests")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrCreatorStoreError = errors.New("creator store failure")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyMember, "AlreadyMember"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrAccessDenied, "AccessDenied"},
	{ErrRoomNotFound, "RoomNotFound"},
	{ErrRoomFullOrClosed, "RoomFullOrClosed"},
	{ErrInvalidMessage, "InvalidMessage"},
	{ErrMediaEngine, "MediaEngineFailure"},
	{ErrRequestNotFound, "RequestNotFound"},
	{ErrNotMember, "NotMember"},
	{ErrUnknownPeer, "UnknownPeer"},
	{ErrProducerNotFound, "ProducerNotFound"},
	{ErrRateLimited, "RateLimited"},
	{ErrConnectionClosed, "ConnectionClosed"},
	{ErrCreatorStoreError, "StoreFailure"},
}

// Code maps an error to its wire code. Unknown errors map to "Internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}
