// Package session stores the chat transcript of each browser or terminal session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/model"
	"github.com/redis/go-redis/v9"
)

// Store keeps an ordered message list per session id. An unknown id has an
// empty history.
type Store interface {
	History(ctx context.Context, id string) ([]model.ChatMessage, error)
	Append(ctx context.Context, id string, msgs ...model.ChatMessage) error
	Reset(ctx context.Context, id string, msgs ...model.ChatMessage) error
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.SessionConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return NewRedis(client, time.Duration(cfg.TTLSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]model.ChatMessage
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]model.ChatMessage)}
}

func (m *Memory) History(_ context.Context, id string) ([]model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ChatMessage(nil), m.sessions[id]...), nil
}

func (m *Memory) Append(_ context.Context, id string, msgs ...model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = append(m.sessions[id], msgs...)
	return nil
}

func (m *Memory) Reset(_ context.Context, id string, msgs ...model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = append([]model.ChatMessage(nil), msgs...)
	return nil
}

func (m *Memory) Close() error { return nil }
