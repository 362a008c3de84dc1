package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
)

type recordingNotifier struct {
	got []core.Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n core.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiNotifiesAllAndReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingNotifier{err: boom}
	b := &recordingNotifier{}
	n := core.Notification{Type: core.NotifyJoinRequested, RoomID: "r1", Recipient: "u1"}

	err := Multi{a, b, LogNotifier{}}.Notify(context.Background(), n)
	require.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestNewRedisNotifierDefaults(t *testing.T) {
	_, err := NewRedisNotifier(RedisConfig{})
	require.Error(t, err)

	r, err := NewRedisNotifier(RedisConfig{Addr: "127.0.0.1:6379"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	assert.Equal(t, "call:notifications", r.Channel())
}

func TestRedisNotifierRejectsUntypedNotification(t *testing.T) {
	r, err := NewRedisNotifier(RedisConfig{Addr: "127.0.0.1:6379"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.Error(t, r.Notify(context.Background(), core.Notification{}))
}
