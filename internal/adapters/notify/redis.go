package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/stagioo/Call-sub001/internal/core"
)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Channel     string
	DialTimeout time.Duration
}

// RedisNotifier publishes notifications as JSON on a pub/sub channel. A
// separate notification service owns delivery and persistence.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(cfg RedisConfig) (*RedisNotifier, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = "call:notifications"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  2,
	})
	return &RedisNotifier{client: client, channel: channel}, nil
}

// Ping checks the broker is reachable.
func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisNotifier) Notify(ctx context.Context, n core.Notification) error {
	if n.Type == "" {
		return errors.New("notification type is required")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisNotifier) Channel() string { return r.channel }

func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
