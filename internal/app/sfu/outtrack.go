package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one consumer of a relayed producer.
type OutTrack struct {
	ConsumerID string
	Track      *webrtc.TrackLocalStaticRTP
	state      atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(consumerID string, track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{ConsumerID: consumerID, Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

// MarkDelete is terminal.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
