package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"sjsage522/promobot/pkg/errors"
)

// RedisBackend keeps state in redis under a key prefix:
//
//	<prefix>:seen        hash  canonical key -> RFC3339 time
//	<prefix>:titles      set   title hashes
//	<prefix>:recent      list  recent normalized titles
//	<prefix>:key_titles  hash  canonical key -> published title
//	<prefix>:affiliates  hash  url -> referral link
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to redis and checks the connection
func NewRedisBackend(ctx context.Context, addr string, db int, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewNetwork("redis-store", "ping "+addr, err)
	}
	return NewRedisBackendFromClient(client, prefix), nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(name string) string {
	return b.prefix + ":" + name
}

// LoadSeen reads the seen hash, the title set and the recent titles
func (b *RedisBackend) LoadSeen(ctx context.Context) (*SeenSnapshot, error) {
	snap := NewSeenSnapshot()

	keys, err := b.client.HGetAll(ctx, b.key("seen")).Result()
	if err != nil {
		return nil, errors.NewPersistence("redis-store", "load seen keys", err)
	}
	for k, ts := range keys {
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			at = time.Time{}
		}
		snap.Keys[k] = at
	}

	if snap.TitleHashes, err = b.client.SMembers(ctx, b.key("titles")).Result(); err != nil {
		return nil, errors.NewPersistence("redis-store", "load title hashes", err)
	}
	if snap.RecentTitles, err = b.client.LRange(ctx, b.key("recent"), 0, -1).Result(); err != nil {
		return nil, errors.NewPersistence("redis-store", "load recent titles", err)
	}
	titles, err := b.client.HGetAll(ctx, b.key("key_titles")).Result()
	if err != nil {
		return nil, errors.NewPersistence("redis-store", "load key titles", err)
	}
	for k, title := range titles {
		snap.Titles[k] = title
	}
	return snap, nil
}

// SaveSeen replaces the seen state inside a MULTI/EXEC block
func (b *RedisBackend) SaveSeen(ctx context.Context, snap *SeenSnapshot) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key("seen"), b.key("titles"), b.key("recent"), b.key("key_titles"))

		if len(snap.Keys) > 0 {
			values := make(map[string]interface{}, len(snap.Keys))
			for k, at := range snap.Keys {
				values[k] = at.UTC().Format(time.RFC3339)
			}
			pipe.HSet(ctx, b.key("seen"), values)
		}
		if len(snap.TitleHashes) > 0 {
			members := make([]interface{}, len(snap.TitleHashes))
			for i, h := range snap.TitleHashes {
				members[i] = h
			}
			pipe.SAdd(ctx, b.key("titles"), members...)
		}
		if len(snap.RecentTitles) > 0 {
			titles := make([]interface{}, len(snap.RecentTitles))
			for i, t := range snap.RecentTitles {
				titles[i] = t
			}
			pipe.RPush(ctx, b.key("recent"), titles...)
		}
		if len(snap.Titles) > 0 {
			values := make(map[string]interface{}, len(snap.Titles))
			for k, title := range snap.Titles {
				values[k] = title
			}
			pipe.HSet(ctx, b.key("key_titles"), values)
		}
		return nil
	})
	if err != nil {
		return errors.NewPersistence("redis-store", "save seen state", err)
	}
	return nil
}

// LoadAffiliates reads the referral link hash
func (b *RedisBackend) LoadAffiliates(ctx context.Context) (map[string]string, error) {
	links, err := b.client.HGetAll(ctx, b.key("affiliates")).Result()
	if err != nil {
		return nil, errors.NewPersistence("redis-store", "load affiliates", err)
	}
	return links, nil
}

// PutAffiliate stores one referral link
func (b *RedisBackend) PutAffiliate(ctx context.Context, key, link string) error {
	if err := b.client.HSet(ctx, b.key("affiliates"), key, link).Err(); err != nil {
		return errors.NewPersistence("redis-store", "put affiliate", err)
	}
	return nil
}

// Close closes the Redis connection
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
