package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-interview-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps session records in Redis under "session:<token>"
// with a fixed TTL that is refreshed on every write. Each operation is an
// independent round trip; there is no in-process cache above it.
type RedisSessionStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.ILogger
}

var _ SessionStore = &RedisSessionStore{}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *RedisSessionStore {
	return &RedisSessionStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: log,
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*SessionState, bool, error) {
	raw, err := s.rdb.Get(ctx, Key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session store get: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// A corrupt record is unreadable; treat it the same as absent
		// but leave a trace for debugging.
		s.logger.Warn("SessionStore", "Dropping corrupt session record", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
		return nil, false, nil
	}
	return &state, true, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, token string, state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session store marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, Key(token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session store set: %w", err)
	}
	return nil
}

// Update is read-merge-write, not atomic. Last writer wins.
func (s *RedisSessionStore) Update(ctx context.Context, token string, patch SessionPatch) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		patch.apply(state)
	})
}

func (s *RedisSessionStore) AppendMessage(ctx context.Context, token, role, content string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		appendBounded(state, TranscriptMessage{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
	})
}

func (s *RedisSessionStore) AdvanceQuestion(ctx context.Context, token string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, advance)
}

func (s *RedisSessionStore) IncrementFollowup(ctx context.Context, token string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.FollowupsUsedCurrent++
	})
}

func (s *RedisSessionStore) UpdateStatus(ctx context.Context, token, status string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.Status = status
	})
}

func (s *RedisSessionStore) SetFilesSummary(ctx context.Context, token, text string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.CandidateFilesSummary = text
	})
}

func (s *RedisSessionStore) Invalidate(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, Key(token)).Err(); err != nil {
		return fmt.Errorf("session store invalidate: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) mutate(ctx context.Context, token string, fn func(*SessionState)) (*SessionState, bool, error) {
	state, found, err := s.Get(ctx, token)
	if err != nil || !found {
		return nil, false, err
	}
	fn(state)
	if err := s.Set(ctx, token, state); err != nil {
		return nil, false, err
	}
	return state, true, nil
}
