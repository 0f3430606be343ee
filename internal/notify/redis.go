package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/seatwatch/internal/status"
)

// Redis appends change messages to a Redis stream.
type Redis struct {
	client    *redis.Client
	stream    string
	eventName string
	now       func() time.Time
}

// NewRedis connects to url (redis:// form, or a bare host:port) and pings it.
func NewRedis(url, stream, eventName string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, stream: stream, eventName: eventName, now: time.Now}, nil
}

// Notify XADDs the message under field "data".
func (r *Redis) Notify(ctx context.Context, event status.ChangeEvent, snap status.Snapshot) error {
	msg := NewMessage(event, snap, r.eventName, r.now())
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		ID:     "*",
		Values: map[string]any{
			"id":   msg.ID,
			"kind": string(msg.Kind),
			"data": data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", r.stream, err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
