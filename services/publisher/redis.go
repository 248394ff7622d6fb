package publisher

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"sjsage522/promobot/internal/audit"
	"sjsage522/promobot/pkg/errors"
)

// RedisStreamMirror appends every published offer to a Redis stream so
// other services can follow the channel
type RedisStreamMirror struct {
	client    *redis.Client
	stream    string
	maxLength int64
	owned     bool
}

// NewRedisStreamMirror connects to addr
func NewRedisStreamMirror(addr string, db int, stream string, maxLength int) *RedisStreamMirror {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	m := NewRedisStreamMirrorFromClient(client, stream, maxLength)
	m.owned = true
	return m
}

// NewRedisStreamMirrorFromClient reuses an existing client
func NewRedisStreamMirrorFromClient(client *redis.Client, stream string, maxLength int) *RedisStreamMirror {
	return &RedisStreamMirror{
		client:    client,
		stream:    stream,
		maxLength: int64(maxLength),
	}
}

// RecordPublished adds rec to the stream as a JSON "offer" field
func (m *RedisStreamMirror) RecordPublished(ctx context.Context, rec audit.Published) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.NewPersistence("stream", "encode record", err)
	}

	err = m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]interface{}{
			"run_id": rec.RunID,
			"offer":  string(payload),
		},
	}).Err()
	if err != nil {
		return errors.NewPersistence("stream", "xadd", err)
	}
	return m.Trim(ctx)
}

// Trim caps the stream to the configured maximum length
func (m *RedisStreamMirror) Trim(ctx context.Context) error {
	if m.maxLength <= 0 {
		return nil
	}
	if err := m.client.XTrimMaxLen(ctx, m.stream, m.maxLength).Err(); err != nil {
		return errors.NewPersistence("stream", "xtrim", err)
	}
	return nil
}

// Close closes the connection when the mirror created it
func (m *RedisStreamMirror) Close() error {
	if !m.owned {
		return nil
	}
	return m.client.Close()
}
