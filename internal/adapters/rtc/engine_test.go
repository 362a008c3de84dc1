package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

func TestEngineTransportLifecycle(t *testing.T) {
	e := NewEngine(t.Context(), webrtc.Configuration{}, nil)
	t.Cleanup(e.Close)

	info, err := e.CreateTransport(t.Context(), "R1", "c1", core.TransportOptions{Direction: "recv"})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "recv", info.Direction)
	assert.Equal(t, 1, e.Transports())

	_, err = e.ConnectTransport(t.Context(), "c2", info.ID, webrtc.SessionDescription{})
	assert.ErrorIs(t, err, ErrUnknownTransport, "a transport belongs to its connection")

	tr, err := e.recvTransport("c1")
	require.NoError(t, err)
	assert.Equal(t, info.ID, tr.id)

	require.NoError(t, e.CloseConnection(t.Context(), "c1"))
	assert.Zero(t, e.Transports())
	_, err = e.recvTransport("c1")
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestEngineUnknownProducer(t *testing.T) {
	e := NewEngine(t.Context(), webrtc.Configuration{}, nil)

	_, err := e.Consume(t.Context(), "c1", "p1")
	assert.ErrorIs(t, err, domain.ErrProducerNotFound)
	assert.ErrorIs(t, e.PauseProducer(t.Context(), "p1", true), domain.ErrProducerNotFound)
	require.NoError(t, e.CloseProducer(t.Context(), "p1"))

	live, err := e.LiveProducers(t.Context(), "R1")
	require.NoError(t, err)
	assert.Empty(t, live)

	assert.ErrorIs(t, e.CompleteConsume(t.Context(), "c1", webrtc.SessionDescription{}), ErrNoTransport)
}

func TestConfigFromURLs(t *testing.T) {
	assert.Equal(t, DefaultWebRTCConfig(), ConfigFromURLs(nil))
	cfg := ConfigFromURLs([]string{"stun:example.org:3478"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}
