package sfu

import (
	"context"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/domain"
)

func localTrack(t *testing.T, id string) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "stream")
	require.NoError(t, err)
	return tr
}

func TestOutTrackStates(t *testing.T) {
	ot := NewOutTrack("k1", nil)
	assert.Equal(t, TrackStateOk, ot.GetState())

	ot.MarkMuted()
	assert.Equal(t, TrackStateMuted, ot.GetState())
	ot.MarkOk()
	assert.Equal(t, TrackStateOk, ot.GetState())

	ot.MarkDelete()
	ot.MarkOk()
	ot.MarkMuted()
	assert.Equal(t, TrackStateDelete, ot.GetState(), "delete is terminal")
}

func TestRelayPauseAppliesToLateSubscribers(t *testing.T) {
	r := NewRelay("p1", "R1", "c1", nil, nil)
	first := NewOutTrack("k1", localTrack(t, "a"))
	r.AddOutTrack("c2", first)

	r.SetPaused(true)
	assert.Equal(t, TrackStateMuted, first.GetState())

	late := NewOutTrack("k2", localTrack(t, "b"))
	r.AddOutTrack("c3", late)
	assert.Equal(t, TrackStateMuted, late.GetState())

	r.SetPaused(false)
	assert.Equal(t, TrackStateOk, first.GetState())
	assert.Equal(t, TrackStateOk, late.GetState())
	assert.Equal(t, domain.KindAudio, r.Kind())
}

func TestRelayReplacesSubscriberTrack(t *testing.T) {
	r := NewRelay("p1", "R1", "c1", nil, nil)
	old := NewOutTrack("k1", localTrack(t, "a"))
	r.AddOutTrack("c2", old)
	r.AddOutTrack("c2", NewOutTrack("k2", localTrack(t, "b")))

	assert.Equal(t, TrackStateDelete, old.GetState())
	assert.Equal(t, 1, r.Subscribers())
}

func TestRelayForwardDropsDeleted(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRelay("p1", "R1", "c1", nil, nil)
	live := NewOutTrack("k1", localTrack(t, "a"))
	gone := NewOutTrack("k2", localTrack(t, "b"))
	r.AddOutTrack("c2", live)
	r.AddOutTrack("c3", gone)
	gone.MarkDelete()

	r.forward(&rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 1}}, &logger)

	assert.Equal(t, 1, r.Subscribers())
	_, ok := r.outTrack("c3")
	assert.False(t, ok)
	assert.Equal(t, TrackStateOk, live.GetState())
}

func TestRelayManagerWithoutRelays(t *testing.T) {
	m := NewRelayManager()
	assert.False(t, m.HasRelay("p1"))
	assert.False(t, m.StopRelay("p1"))
	assert.False(t, m.AddSubscriber("p1", "c2", "k1", localTrack(t, "a")))
	assert.Empty(t, m.Producers("R1"))
	assert.Empty(t, m.StopOwner("c1"))
	_, ok := m.SrcTrack("p1")
	assert.False(t, ok)
	m.MarkSubscriberDelete("p1", "c2")
	m.DropSubscriber("c2")
}

func TestRelayManagerBookkeeping(t *testing.T) {
	m := NewRelayManager()
	_, cancel := context.WithCancel(context.Background())
	r1 := NewRelay("p2", "R1", "c1", nil, cancel)
	r2 := NewRelay("p1", "R1", "c1", nil, cancel)
	r3 := NewRelay("p3", "R2", "c9", nil, cancel)
	for _, r := range []*Relay{r1, r2, r3} {
		m.relays[r.ID] = r
	}

	assert.Equal(t, []domain.ProducerID{"p1", "p2"}, m.Producers("R1"))

	require.True(t, m.AddSubscriber("p3", "c2", "k1", localTrack(t, "a")))
	m.DropSubscriber("c2")
	ot, ok := r3.outTrack("c2")
	require.True(t, ok)
	assert.Equal(t, TrackStateDelete, ot.GetState())

	stopped := m.StopOwner("c1")
	assert.ElementsMatch(t, []domain.ProducerID{"p1", "p2"}, stopped)
	assert.Empty(t, m.Producers("R1"))
	assert.True(t, m.HasRelay("p3"))

	assert.False(t, m.remove("p3", r1))
	assert.True(t, m.HasRelay("p3"), "remove only drops the relay it was given")
	assert.True(t, m.remove("p3", r3))
	assert.False(t, m.HasRelay("p3"))
}

func TestRelayManagerRefusesForeignOwner(t *testing.T) {
	logger := zerolog.Nop()
	m := NewRelayManager()

	ctxA, cancelA := context.WithCancel(t.Context())
	mine := NewRelay("mic", "R1", "c1", nil, cancelA)
	sub := NewOutTrack("k1", localTrack(t, "a"))
	mine.AddOutTrack("c2", sub)
	require.NoError(t, m.register(mine, &logger))

	_, cancelB := context.WithCancel(t.Context())
	t.Cleanup(cancelB)
	impostor := NewRelay("mic", "R2", "c9", nil, cancelB)
	assert.ErrorIs(t, m.register(impostor, &logger), ErrProducerTaken)

	got, ok := m.Relay("mic")
	require.True(t, ok)
	assert.Same(t, mine, got)
	assert.NoError(t, ctxA.Err(), "the holder keeps running")
	assert.Equal(t, TrackStateOk, sub.GetState())
	assert.Equal(t, []domain.ProducerID{"mic"}, m.Producers("R1"))
	assert.Empty(t, m.Producers("R2"))
}

func TestRelayManagerReplaceBySameOwnerIsSilent(t *testing.T) {
	logger := zerolog.Nop()
	m := NewRelayManager()

	ctxOld, cancelOld := context.WithCancel(t.Context())
	old := NewRelay("mic", "R1", "c1", nil, cancelOld)
	sub := NewOutTrack("k1", localTrack(t, "a"))
	old.AddOutTrack("c2", sub)
	require.NoError(t, m.register(old, &logger))

	_, cancelNew := context.WithCancel(t.Context())
	t.Cleanup(cancelNew)
	fresh := NewRelay("mic", "R1", "c1", nil, cancelNew)
	require.NoError(t, m.register(fresh, &logger))

	assert.Error(t, ctxOld.Err())
	assert.Equal(t, TrackStateDelete, sub.GetState())

	ended := 0
	onEnd := func() { ended++ }
	m.finish(old, onEnd)
	assert.Zero(t, ended, "a replaced relay does not end the producer")
	assert.True(t, m.HasRelay("mic"))

	m.finish(fresh, onEnd)
	assert.Equal(t, 1, ended)
	assert.False(t, m.HasRelay("mic"))

	stopped := NewRelay("mic", "R1", "c1", nil, nil)
	require.NoError(t, m.register(stopped, &logger))
	require.True(t, m.StopRelay("mic"))
	m.finish(stopped, onEnd)
	assert.Equal(t, 1, ended, "a stopped relay does not end the producer")
}
