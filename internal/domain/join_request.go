package domain

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool { return d == DecisionApprove || d == DecisionReject }

// JoinRequest is the ask of a non-authorized user to enter an
// approval-required room. At most one exists per (room, requester).
type JoinRequest struct {
	RoomID      RoomID        `json:"roomId"`
	RequesterID UserID        `json:"requesterId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	DecidedAt   time.Time     `json:"decidedAt,omitzero"`
	DecidedBy   UserID        `json:"decidedBy,omitempty"`
}

// Expired reports whether the request is older than ttl at now.
// A zero ttl never expires.
func (r *JoinRequest) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	ref := r.CreatedAt
	if r.Status.Terminal() && !r.DecidedAt.IsZero() {
		ref = r.DecidedAt
	}
	return now.Sub(ref) > ttl
}
