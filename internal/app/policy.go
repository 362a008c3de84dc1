package app

import (
	"time"

	"github.com/stagioo/Call-sub001/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a channel whose send buffer is full.
type Policy interface {
	OnBackPressure(conn domain.ConnectionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnectionID) BackpressureAction {
	return KickMember
}

// AccessPolicy holds the configurable parts of the join workflow.
type AccessPolicy struct {
	// RequireReapproval consumes an approval on the admission it enables.
	// When false the approval becomes standing access for the room's life.
	RequireReapproval bool
	// ClaimUnowned lets the first identified user joining a room without a
	// creator of record become its creator.
	ClaimUnowned bool
	// RequestTTL expires requests at read time. Zero disables expiry.
	RequestTTL time.Duration
}

func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		RequireReapproval: true,
		ClaimUnowned:      true,
		RequestTTL:        10 * time.Minute,
	}
}
