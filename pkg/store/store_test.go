package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemorySessionStore {
	return NewMemorySessionStore(1 * time.Hour)
}

func seedSession(t *testing.T, s SessionStore, token string) *SessionState {
	t.Helper()
	state := &SessionState{
		SessionId:  token,
		TemplateId: "tpl-1",
		Status:     StatusInProgress,
		Mode:       ModeStructured,
		Questions: []Question{
			{Id: "q0", Text: "Tell me about your last project.", Rubric: "ownership, impact", MaxFollowups: 2},
			{Id: "q1", Text: "How do you debug a production incident?", Rubric: "method, tooling", MaxFollowups: 1},
			{Id: "q2", Text: "Describe a conflict you resolved.", Rubric: "communication", MaxFollowups: 0},
		},
	}
	require.NoError(t, s.Set(context.Background(), token, state))
	return state
}

func TestGetAbsent(t *testing.T) {
	s := newTestStore()
	state, found, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)
}

func TestGetIdempotent(t *testing.T) {
	s := newTestStore()
	seedSession(t, s, "tok")

	first, found, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	require.True(t, found)

	second, found, err := s.Get(context.Background(), "tok")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, first, second)
}

func TestAdvanceQuestionResetsCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	_, _, err := s.IncrementFollowup(ctx, "tok")
	require.NoError(t, err)
	_, _, err = s.AppendMessage(ctx, "tok", RoleCandidate, "my answer")
	require.NoError(t, err)

	state, found, err := s.AdvanceQuestion(ctx, "tok")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, 1, state.CurrentQuestionIndex)
	assert.Equal(t, 0, state.FollowupsUsedCurrent)
	assert.Empty(t, state.RecentTranscript)
}

func TestQuestionIndexMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	prev := 0
	for i := 0; i < 5; i++ {
		state, found, err := s.AdvanceQuestion(ctx, "tok")
		require.NoError(t, err)
		require.True(t, found)
		assert.GreaterOrEqual(t, state.CurrentQuestionIndex, prev)
		prev = state.CurrentQuestionIndex
	}
}

func TestTranscriptWindowBound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	total := TranscriptWindowSize + 1
	for i := 0; i < total; i++ {
		_, found, err := s.AppendMessage(ctx, "tok", RoleCandidate, fmt.Sprintf("msg-%d", i))
		require.NoError(t, err)
		require.True(t, found)
	}

	state, _, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, state.RecentTranscript, TranscriptWindowSize)

	// The window must hold the N most recent entries in original order.
	for i, msg := range state.RecentTranscript {
		assert.Equal(t, fmt.Sprintf("msg-%d", total-TranscriptWindowSize+i), msg.Content)
	}
}

func TestUpdateShallowMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	status := StatusCompleted
	idx := 2
	state, found, err := s.Update(ctx, "tok", SessionPatch{
		Status:               &status,
		CurrentQuestionIndex: &idx,
	})
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, StatusCompleted, state.Status)
	assert.Equal(t, 2, state.CurrentQuestionIndex)
	// Untouched fields survive the merge.
	assert.Equal(t, "tpl-1", state.TemplateId)
	assert.Len(t, state.Questions, 3)
}

func TestSetFilesSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	state, found, err := s.SetFilesSummary(ctx, "tok", "CV: 5y backend, Go and Postgres")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "CV: 5y backend, Go and Postgres", state.CandidateFilesSummary)
}

func TestInvalidateThenGetAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	require.NoError(t, s.Invalidate(ctx, "tok"))

	state, found, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)
}

func TestMutateOnAbsentIsSoftMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	state, found, err := s.IncrementFollowup(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	seedSession(t, s, "tok")

	state, _, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	state.Status = "mutated-locally"

	fresh, _, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, fresh.Status)
}

func TestCurrentQuestionHelpers(t *testing.T) {
	state := &SessionState{
		Questions: []Question{{Id: "q0"}, {Id: "q1"}},
	}
	require.NotNil(t, state.CurrentQuestion())
	assert.Equal(t, "q0", state.CurrentQuestion().Id)
	assert.True(t, state.HasNextQuestion())

	state.CurrentQuestionIndex = 1
	assert.False(t, state.HasNextQuestion())

	state.CurrentQuestionIndex = 2
	assert.Nil(t, state.CurrentQuestion())
}
