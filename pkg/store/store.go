package store

import (
	"context"
	"fmt"
)

// KeyPrefix is the cache key namespace for live interview sessions.
const KeyPrefix = "session:"

// Key builds the backing-store key for a session token.
func Key(token string) string {
	return fmt.Sprintf("%s%s", KeyPrefix, token)
}

// SessionPatch is a shallow partial update. Nil fields are left untouched.
type SessionPatch struct {
	CurrentQuestionIndex  *int
	FollowupsUsedCurrent  *int
	Status                *string
	RecentTranscript      *[]TranscriptMessage
	CandidateFilesSummary *string
}

// SessionStore is the keyed, TTL-bounded cache holding one session's live
// interview state. All operations fail softly: an absent key returns
// (nil, false, nil), and an error is returned only when the backing store
// itself is unavailable.
//
// Update and the other read-modify-write operations are NOT atomic:
// concurrent writers on the same token can lose a write (last-writer-wins).
// This is an accepted trade-off because each session has exactly one
// writer, the orchestrator. Do not add a second writer per session.
type SessionStore interface {
	Get(ctx context.Context, token string) (*SessionState, bool, error)

	// Set overwrites the whole record and resets the TTL.
	Set(ctx context.Context, token string, state *SessionState) error

	// Update reads the record, merges the patch shallowly and writes back.
	Update(ctx context.Context, token string, patch SessionPatch) (*SessionState, bool, error)

	// AppendMessage pushes one turn into RecentTranscript, truncating to
	// the window size N (oldest dropped first).
	AppendMessage(ctx context.Context, token, role, content string) (*SessionState, bool, error)

	// AdvanceQuestion increments the question index, zeroes the follow-up
	// counter and clears the transcript window.
	AdvanceQuestion(ctx context.Context, token string) (*SessionState, bool, error)

	IncrementFollowup(ctx context.Context, token string) (*SessionState, bool, error)
	UpdateStatus(ctx context.Context, token, status string) (*SessionState, bool, error)
	SetFilesSummary(ctx context.Context, token, text string) (*SessionState, bool, error)

	// Invalidate deletes the key immediately, not waiting for TTL expiry.
	Invalidate(ctx context.Context, token string) error
}

// apply merges a patch into a state in place.
func (p SessionPatch) apply(s *SessionState) {
	if p.CurrentQuestionIndex != nil {
		s.CurrentQuestionIndex = *p.CurrentQuestionIndex
	}
	if p.FollowupsUsedCurrent != nil {
		s.FollowupsUsedCurrent = *p.FollowupsUsedCurrent
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.RecentTranscript != nil {
		s.RecentTranscript = *p.RecentTranscript
	}
	if p.CandidateFilesSummary != nil {
		s.CandidateFilesSummary = *p.CandidateFilesSummary
	}
}

// appendBounded pushes a message and enforces the window cap.
func appendBounded(s *SessionState, msg TranscriptMessage) {
	s.RecentTranscript = append(s.RecentTranscript, msg)
	if n := len(s.RecentTranscript); n > TranscriptWindowSize {
		s.RecentTranscript = s.RecentTranscript[n-TranscriptWindowSize:]
	}
}

// advance applies the question-advance transition to a state.
func advance(s *SessionState) {
	s.CurrentQuestionIndex++
	s.FollowupsUsedCurrent = 0
	s.RecentTranscript = nil
}
