package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sasgpt:session:"

// Redis keeps each transcript as a list of JSON messages. Every write
// refreshes the key's TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) History(ctx context.Context, id string) ([]model.ChatMessage, error) {
	raw, err := r.client.LRange(ctx, keyPrefix+id, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	out := make([]model.ChatMessage, 0, len(raw))
	for _, s := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("decode session message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Redis) Append(ctx context.Context, id string, msgs ...model.ChatMessage) error {
	return r.write(ctx, id, false, msgs)
}

func (r *Redis) Reset(ctx context.Context, id string, msgs ...model.ChatMessage) error {
	return r.write(ctx, id, true, msgs)
}

func (r *Redis) write(ctx context.Context, id string, reset bool, msgs []model.ChatMessage) error {
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := keyPrefix + id
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if reset {
			pipe.Del(ctx, key)
		}
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
