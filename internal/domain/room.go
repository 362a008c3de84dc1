package domain

import "time"

type AccessMode string

const (
	AccessApprovalRequired AccessMode = "approval-required"
	AccessOpen             AccessMode = "open"
)

func (m AccessMode) Valid() bool {
	return m == AccessApprovalRequired || m == AccessOpen
}

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant is one connected endpoint inside a room.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	UserID       UserID       `json:"userId,omitempty"`
	DisplayName  string       `json:"displayName,omitempty"`
	Role         Role         `json:"role"`
	AdmittedAt   time.Time    `json:"admittedAt"`
	Producers    []Producer   `json:"producers,omitempty"`

	seq uint64
}

// Identity is the user id, or the connection id for anonymous guests.
func (p *Participant) Identity() UserID {
	if p.UserID == "" {
		return UserID(p.ConnectionID)
	}
	return p.UserID
}

func (p *Participant) IsHost() bool { return p.Role == RoleHost }

// Seq is the admission order inside the room.
func (p *Participant) Seq() uint64 { return p.seq }

func (p *Participant) SetSeq(seq uint64) { p.seq = seq }

// AdmittedBefore orders participants by admission time, then sequence.
func (p *Participant) AdmittedBefore(o *Participant) bool {
	if !p.AdmittedAt.Equal(o.AdmittedAt) {
		return p.AdmittedAt.Before(o.AdmittedAt)
	}
	return p.seq < o.seq
}
