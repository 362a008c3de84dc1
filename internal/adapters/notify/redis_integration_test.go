//go:build redis

package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/core"
)

func TestRedisNotifierPublishes(t *testing.T) {
	addr := os.Getenv("CALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CALL_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := NewRedisNotifier(RedisConfig{Addr: addr, Channel: "call:test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = sub.Close() })
	ps := sub.Subscribe(ctx, "call:test")
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	n := core.Notification{Type: core.NotifyJoinApproved, RoomID: "r1", Recipient: "u2", At: time.Now().UTC()}
	require.NoError(t, r.Notify(ctx, n))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got core.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, n.Type, got.Type)
	assert.Equal(t, n.Recipient, got.Recipient)
}
