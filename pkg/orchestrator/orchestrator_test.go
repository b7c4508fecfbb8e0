package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/audit"
	"ai-interview-be/pkg/knowledge"
	"ai-interview-be/pkg/llm"
	"ai-interview-be/pkg/store"
	"ai-interview-be/pkg/transport/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

// fakeProvider replays scripted responses; Stream chops the next
// response into word-ish chunks unless failMidStream is set.
type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	err       error

	failMidStream bool
	calls         int
}

func (f *fakeProvider) next() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fakeProvider: out of responses")
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r, nil
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.next()
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.next()
}

func (f *fakeProvider) Stream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errc)
		text, err := f.next()
		if err != nil {
			errc <- err
			return
		}
		half := len(text) / 2
		for _, part := range []string{text[:half], text[half:]} {
			if part != "" {
				chunks <- part
			}
			if f.failMidStream {
				errc <- errors.New("stream torn down")
				return
			}
		}
	}()
	return chunks, errc
}

type fakeRetriever struct {
	passages []knowledge.Passage
	gotTopK  int
	gotQuery string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]knowledge.Passage, error) {
	f.gotQuery = query
	f.gotTopK = topK
	return f.passages, nil
}

type emitted struct {
	event   string
	payload interface{}
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeEmitter) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeEmitter) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.event
	}
	return out
}

func (f *fakeEmitter) fullTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if end, ok := e.payload.(wire.AiMessageEnd); ok {
			out = append(out, end.FullText)
		}
	}
	return out
}

type fakeJobs struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakeJobs) EnqueueSummary(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return nil
}

// --- Helpers ---

func decisionJSON(action string, extra map[string]interface{}) string {
	m := map[string]interface{}{
		"turn_type":     "answer",
		"is_sufficient": false,
		"next_action":   action,
	}
	for k, v := range extra {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func seedStructured(t *testing.T, sessions store.SessionStore, token string) {
	t.Helper()
	require.NoError(t, sessions.Set(context.Background(), token, &store.SessionState{
		SessionId:  token,
		TemplateId: "tpl",
		Status:     store.StatusInProgress,
		Mode:       store.ModeStructured,
		Questions: []store.Question{
			{Id: "q0", Text: "Walk me through your most complex project.", Rubric: "scope, role, outcome", MaxFollowups: 2},
			{Id: "q1", Text: "How do you handle a failing deploy?", Rubric: "rollback, comms", MaxFollowups: 1},
			{Id: "q2", Text: "Why this role?", Rubric: "motivation", MaxFollowups: 0},
		},
	}))
}

func newOrchestrator(sessions store.SessionStore, decider, responder *fakeProvider, retriever knowledge.Retriever, jobs JobQueue) *Orchestrator {
	return New(sessions, decider, responder, retriever, audit.NoopSink{}, jobs, logger.NoopLogger{}, Config{
		EndGraceDelay: 10 * time.Millisecond,
	})
}

// --- Tests ---

func TestFollowupBudgetScenario(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{
		decisionJSON("ask_followup", map[string]interface{}{"followup_question": "What was your exact role?"}),
		decisionJSON("ask_followup", map[string]interface{}{"followup_question": "What was the measurable outcome?"}),
		decisionJSON("ask_followup", map[string]interface{}{"followup_question": "Anything else?"}),
	}}
	responder := &fakeProvider{responses: []string{
		"Could you tell me more about your exact role?",
		"And what was the measurable outcome?",
	}}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, nil, nil)

	// Two insufficient answers: two follow-ups, index stays 0.
	require.NoError(t, o.HandleTranscript(ctx, "tok", "we did a project", em))
	require.NoError(t, o.HandleTranscript(ctx, "tok", "it went fine", em))

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
	assert.Equal(t, 2, state.FollowupsUsedCurrent)

	// Budget exhausted: the third ask_followup decision advances instead.
	require.NoError(t, o.HandleTranscript(ctx, "tok", "nothing more", em))

	state, _, err = sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
	assert.Equal(t, 0, state.FollowupsUsedCurrent)

	assert.Contains(t, em.names(), wire.EventQuestionAdvanced)
	// The next question is delivered verbatim.
	assert.Contains(t, em.fullTexts(), "How do you handle a failing deploy?")
}

func TestDecisionFailureFallsBackToAdvance(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{err: errors.New("model timeout")}
	responder := &fakeProvider{}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "my answer", em))

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
}

func TestUnparseableDecisionFallsBackToAdvance(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{"I think you should probably ask another question maybe?"}}
	responder := &fakeProvider{}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "my answer", em))

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
}

func TestFallbackPastLastQuestionEndsInterview(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	idx := 2
	_, _, err := sessions.Update(ctx, "tok", store.SessionPatch{CurrentQuestionIndex: &idx})
	require.NoError(t, err)

	decider := &fakeProvider{err: errors.New("model down")}
	jobs := &fakeJobs{}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, &fakeProvider{}, nil, jobs)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "final answer", em))

	state, found, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.StatusCompleted, state.Status)
	assert.Contains(t, em.names(), wire.EventInterviewEnded)
	assert.Equal(t, []string{"tok"}, jobs.tokens)

	// Grace delay keeps the record readable briefly, then invalidates.
	assert.Eventually(t, func() bool {
		_, found, err := sessions.Get(ctx, "tok")
		return err == nil && !found
	}, time.Second, 10*time.Millisecond)
}

func TestCompletedSessionIsNoOp(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")
	_, _, err := sessions.UpdateStatus(ctx, "tok", store.StatusCompleted)
	require.NoError(t, err)

	decider := &fakeProvider{}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, &fakeProvider{}, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "anyone there?", em))
	assert.Empty(t, em.names())
	assert.Equal(t, 0, decider.calls)
}

func TestAbsentSessionIsNoOp(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)

	em := &fakeEmitter{}
	o := newOrchestrator(sessions, &fakeProvider{}, &fakeProvider{}, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "ghost", "hello", em))
	assert.Empty(t, em.names())
}

func TestAnswerCandidateQuestionKeepsState(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{decisionJSON("answer_candidate_question", map[string]interface{}{
		"turn_type":                   "question",
		"detected_candidate_question": "What is the team size?",
		"kb_answer":                   "The platform team has eight engineers.",
		"kb_citations":                []string{"handbook#3"},
	})}}
	responder := &fakeProvider{responses: []string{"We're eight engineers on the platform team. Anything else before we continue?"}}
	retriever := &fakeRetriever{passages: []knowledge.Passage{{Citation: "handbook#3", Content: "Platform team: 8 engineers."}}}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, retriever, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "What is the team size?", em))

	// A detected question retrieves deeper.
	assert.Equal(t, knowledge.TopKQuestion, retriever.gotTopK)

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
	assert.Equal(t, 0, state.FollowupsUsedCurrent)
}

func TestAnswerCandidateQuestionHonestMiss(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{decisionJSON("answer_candidate_question", map[string]interface{}{
		"turn_type":                   "question",
		"detected_candidate_question": "What is the parking situation?",
		"kb_answer":                   "",
	})}}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, &fakeProvider{}, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "What is the parking situation?", em))
	require.Len(t, em.fullTexts(), 1)
	assert.Equal(t, fallbackNoAnswer, em.fullTexts()[0])
}

func TestNonQuestionUsesDefaultTopK(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{decisionJSON("handle_meta", nil)}}
	responder := &fakeProvider{responses: []string{"No problem, take your time."}}
	retriever := &fakeRetriever{}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, retriever, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "sorry, I need a second to think", em))
	assert.Equal(t, knowledge.TopKDefault, retriever.gotTopK)
}

func TestMidStreamFailureSubstitutesApology(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{decisionJSON("handle_meta", nil)}}
	responder := &fakeProvider{responses: []string{"this stream will tear"}, failMidStream: true}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, nil, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "by the way, nice weather", em))

	names := em.names()
	// The transport still receives a well-formed end event.
	assert.Equal(t, wire.EventAiMessageEnd, names[len(names)-1])
	require.Len(t, em.fullTexts(), 1)
	assert.Equal(t, fallbackApology, em.fullTexts()[0])
}

func TestTimeExpiredEndsInterview(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	em := &fakeEmitter{}
	o := newOrchestrator(sessions, &fakeProvider{}, &fakeProvider{}, nil, nil)

	require.NoError(t, o.HandleTimeExpired(ctx, "tok", em))

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, state.Status)
	assert.Contains(t, em.names(), wire.EventInterviewEnded)
}

func TestInquiryModeAnswersDirectly(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	require.NoError(t, sessions.Set(ctx, "tok", &store.SessionState{
		SessionId: "tok",
		Status:    store.StatusInProgress,
		Mode:      store.ModeInquiry,
	}))

	decider := &fakeProvider{} // must never be called in inquiry mode
	responder := &fakeProvider{responses: []string{"The role is fully remote within EU time zones."}}
	retriever := &fakeRetriever{passages: []knowledge.Passage{{Citation: "handbook#1", Content: "Remote-first, EU time zones."}}}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, retriever, nil)

	require.NoError(t, o.HandleTranscript(ctx, "tok", "Is the role remote?", em))

	assert.Equal(t, 0, decider.calls)
	require.Len(t, em.fullTexts(), 1)
	assert.Equal(t, "The role is fully remote within EU time zones.", em.fullTexts()[0])

	state, _, err := sessions.Get(ctx, "tok")
	require.NoError(t, err)
	// Both turns land in the transcript window.
	require.Len(t, state.RecentTranscript, 2)
	assert.Equal(t, store.RoleCandidate, state.RecentTranscript[0].Role)
	assert.Equal(t, store.RoleInterviewer, state.RecentTranscript[1].Role)
}

func TestQuestionIndexNeverDecreases(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemorySessionStore(time.Hour)
	seedStructured(t, sessions, "tok")

	decider := &fakeProvider{responses: []string{
		decisionJSON("advance_question", nil),
		decisionJSON("handle_meta", nil),
		decisionJSON("advance_question", nil),
	}}
	responder := &fakeProvider{responses: []string{"Sure, go on."}}
	em := &fakeEmitter{}
	o := newOrchestrator(sessions, decider, responder, nil, &fakeJobs{})

	prev := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, o.HandleTranscript(ctx, "tok", fmt.Sprintf("answer %d", i), em))
		state, found, err := sessions.Get(ctx, "tok")
		require.NoError(t, err)
		if !found {
			break
		}
		require.GreaterOrEqual(t, state.CurrentQuestionIndex, prev)
		prev = state.CurrentQuestionIndex
	}
}

func TestParseDecisionVariants(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Action
		wantErr bool
	}{
		{
			name: "plain object",
			raw:  decisionJSON("advance_question", nil),
			want: ActionAdvanceQuestion,
		},
		{
			name: "fenced object",
			raw:  "```json\n" + decisionJSON("handle_meta", nil) + "\n```",
			want: ActionHandleMeta,
		},
		{
			name: "prose around object",
			raw:  "Here is my decision: " + decisionJSON("end_interview", nil) + " hope that helps",
			want: ActionEndInterview,
		},
		{
			name:    "no json",
			raw:     "just advance please",
			wantErr: true,
		},
		{
			name:    "unknown action",
			raw:     decisionJSON("do_a_backflip", nil),
			wantErr: true,
		},
		{
			name:    "followup without text",
			raw:     decisionJSON("ask_followup", nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Action)
		})
	}
}
