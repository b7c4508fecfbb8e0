package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemorySessionStore is an in-process SessionStore on go-cache, used for
// tests and single-node deployments. Records are stored as JSON so the
// copy semantics match the Redis implementation (callers never share a
// pointer with the cache).
type MemorySessionStore struct {
	cache *cache.Cache
}

var _ SessionStore = &MemorySessionStore{}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, token string) (*SessionState, bool, error) {
	raw, found := s.cache.Get(Key(token))
	if !found {
		return nil, false, nil
	}
	var state SessionState
	if err := json.Unmarshal(raw.([]byte), &state); err != nil {
		return nil, false, nil
	}
	return &state, true, nil
}

func (s *MemorySessionStore) Set(ctx context.Context, token string, state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.cache.Set(Key(token), data, cache.DefaultExpiration)
	return nil
}

func (s *MemorySessionStore) Update(ctx context.Context, token string, patch SessionPatch) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		patch.apply(state)
	})
}

func (s *MemorySessionStore) AppendMessage(ctx context.Context, token, role, content string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		appendBounded(state, TranscriptMessage{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
	})
}

func (s *MemorySessionStore) AdvanceQuestion(ctx context.Context, token string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, advance)
}

func (s *MemorySessionStore) IncrementFollowup(ctx context.Context, token string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.FollowupsUsedCurrent++
	})
}

func (s *MemorySessionStore) UpdateStatus(ctx context.Context, token, status string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.Status = status
	})
}

func (s *MemorySessionStore) SetFilesSummary(ctx context.Context, token, text string) (*SessionState, bool, error) {
	return s.mutate(ctx, token, func(state *SessionState) {
		state.CandidateFilesSummary = text
	})
}

func (s *MemorySessionStore) Invalidate(ctx context.Context, token string) error {
	s.cache.Delete(Key(token))
	return nil
}

func (s *MemorySessionStore) mutate(ctx context.Context, token string, fn func(*SessionState)) (*SessionState, bool, error) {
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
