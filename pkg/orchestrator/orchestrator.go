package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/audit"
	"ai-interview-be/pkg/knowledge"
	"ai-interview-be/pkg/llm"
	"ai-interview-be/pkg/store"
	"ai-interview-be/pkg/transport/wire"

	"github.com/google/uuid"
)

// Emitter is the narrow transport capability the orchestrator needs.
// The concrete websocket session implements it server-side; tests use a
// recording fake.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// JobQueue enqueues post-interview processing (summary generation).
type JobQueue interface {
	EnqueueSummary(ctx context.Context, sessionToken string) error
}

// Canned utterances for paths where the response model is unavailable or
// must not be trusted.
const (
	fallbackApology  = "Sorry, I lost my train of thought for a moment. Let's keep going."
	fallbackFarewell = "That's everything I had for today. Thank you for your time, the team will be in touch soon."
	fallbackNoAnswer = "I don't have that information at hand, but I'll note your question for the team. Let's continue."
)

// Config tunes one orchestrator instance. Zero values get sensible
// defaults in New.
type Config struct {
	// EndGraceDelay keeps a completed session readable for in-flight
	// client reads before invalidation.
	EndGraceDelay time.Duration

	QuestionDetector knowledge.QuestionDetector
	QueryExtractor   knowledge.QueryExtractor
}

// Orchestrator runs the per-turn state machine of a live interview. One
// instance serves all sessions; all per-session state lives in the
// session store, and the transport delivers each session's turns
// sequentially, so there is exactly one writer per session key.
type Orchestrator struct {
	sessions  store.SessionStore
	decider   llm.LLMProvider
	responder llm.LLMProvider
	retriever knowledge.Retriever
	sink      audit.DecisionSink
	jobs      JobQueue
	logger    logger.ILogger
	cfg       Config
}

func New(
	sessions store.SessionStore,
	decider llm.LLMProvider,
	responder llm.LLMProvider,
	retriever knowledge.Retriever,
	sink audit.DecisionSink,
	jobs JobQueue,
	log logger.ILogger,
	cfg Config,
) *Orchestrator {
	if cfg.QuestionDetector == nil {
		cfg.QuestionDetector = knowledge.DefaultQuestionDetector
	}
	if cfg.QueryExtractor == nil {
		cfg.QueryExtractor = knowledge.DefaultQueryExtractor
	}
	if cfg.EndGraceDelay == 0 {
		cfg.EndGraceDelay = 30 * time.Second
	}
	return &Orchestrator{
		sessions:  sessions,
		decider:   decider,
		responder: responder,
		retriever: retriever,
		sink:      sink,
		jobs:      jobs,
		logger:    log,
		cfg:       cfg,
	}
}

// HandleTranscript processes one finalized candidate utterance. This is
// the only entry point that mutates interview state; the transport must
// call it sequentially per session.
func (o *Orchestrator) HandleTranscript(ctx context.Context, token, utterance string, em Emitter) error {
	state, found, err := o.sessions.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("read session %s: %w", token, err)
	}
	if !found || state.Status == store.StatusCompleted {
		// Late transcript after the interview ended; nothing to do.
		return nil
	}

	if state.Mode == store.ModeInquiry {
		return o.handleInquiryTurn(ctx, token, state, utterance, em)
	}

	state, found, err = o.sessions.AppendMessage(ctx, token, store.RoleCandidate, utterance)
	if err != nil || !found {
		return err
	}

	// 1. Assemble context
	tc := o.assembleContext(ctx, token, state, utterance)

	// 2. Decision call with deterministic fallback
	decision, fellBack := o.decide(ctx, token, tc)

	// 3. Audit, fire-and-forget
	o.recordDecision(token, state, decision, fellBack)

	// 4. Enforce the follow-up budget upstream of the bookkeeping
	if decision.Action == ActionAskFollowup {
		if q := state.CurrentQuestion(); q != nil && state.FollowupsUsedCurrent >= q.MaxFollowups {
			o.logger.Info("Orchestrator", "Follow-up budget exhausted, advancing instead", map[string]interface{}{
				"token":          token,
				"question_index": state.CurrentQuestionIndex,
			})
			decision.Action = ActionAdvanceQuestion
		}
	}

	// 5. Dispatch (closed set, exhaustive)
	switch decision.Action {
	case ActionAskFollowup:
		return o.askFollowup(ctx, token, tc, decision, em)
	case ActionAdvanceQuestion:
		return o.advanceQuestion(ctx, token, em)
	case ActionAnswerCandidateQuestion:
		return o.answerCandidateQuestion(ctx, token, tc, decision, em)
	case ActionHandleMeta:
		return o.handleMeta(ctx, token, tc, em)
	case ActionEndInterview:
		return o.endInterview(ctx, token, "decided", em)
	default:
		// Unreachable: ParseAction rejects anything outside the set.
		return o.advanceQuestion(ctx, token, em)
	}
}

// HandleTimeExpired is invoked by the session timer; expiry is treated
// exactly like an end-interview action.
func (o *Orchestrator) HandleTimeExpired(ctx context.Context, token string, em Emitter) error {
	state, found, err := o.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	if !found || state.Status == store.StatusCompleted {
		return nil
	}
	return o.endInterview(ctx, token, "time_expired", em)
}

// HandleEndRequest is the explicit client end signal.
func (o *Orchestrator) HandleEndRequest(ctx context.Context, token string, em Emitter) error {
	state, found, err := o.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	if !found || state.Status == store.StatusCompleted {
		return nil
	}
	return o.endInterview(ctx, token, "candidate_request", em)
}

// assembleContext gathers everything the decision model sees, including
// conditional knowledge retrieval.
func (o *Orchestrator) assembleContext(ctx context.Context, token string, state *store.SessionState, utterance string) *turnContext {
	tc := &turnContext{
		state:      state,
		utterance:  utterance,
		isQuestion: o.cfg.QuestionDetector(utterance),
	}

	if o.retriever == nil {
		return tc
	}

	topK := knowledge.TopKDefault
	query := utterance
	if tc.isQuestion {
		topK = knowledge.TopKQuestion
		query = o.cfg.QueryExtractor(utterance)
	}

	passages, err := o.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		// Retrieval is best-effort context; the turn proceeds without it.
		o.logger.Warn("Orchestrator", "Knowledge retrieval failed", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
		return tc
	}
	tc.passages = passages
	return tc
}

// decide runs the decision model; any failure collapses to the
// deterministic advance fallback.
func (o *Orchestrator) decide(ctx context.Context, token string, tc *turnContext) (*Decision, bool) {
	raw, err := o.decider.Generate(ctx, buildDecisionPrompt(tc), llm.WithTemperature(0.0))
	if err != nil {
		o.logger.Warn("Orchestrator", "Decision call failed, applying fallback", map[string]interface{}{
			"token":          token,
			"question_index": tc.state.CurrentQuestionIndex,
			"error":          err.Error(),
		})
		return FallbackDecision(), true
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		o.logger.Warn("Orchestrator", "Decision output unparseable, applying fallback", map[string]interface{}{
			"token":          token,
			"question_index": tc.state.CurrentQuestionIndex,
			"error":          err.Error(),
		})
		return FallbackDecision(), true
	}
	return decision, false
}

func (o *Orchestrator) recordDecision(token string, state *store.SessionState, d *Decision, fellBack bool) {
	record := audit.EvaluationDecision{
		SessionToken:    token,
		QuestionIndex:   state.CurrentQuestionIndex,
		TurnType:        d.TurnType,
		IsSufficient:    d.IsSufficient,
		MissingPoints:   d.MissingPoints,
		ChosenAction:    d.Action.String(),
		FollowupText:    d.FollowupQuestion,
		FallbackApplied: fellBack,
		DecidedAt:       time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.sink.Record(ctx, record); err != nil {
			o.logger.Warn("Orchestrator", "Audit record write failed", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
		}
	}()
}

func (o *Orchestrator) askFollowup(ctx context.Context, token string, tc *turnContext, d *Decision, em Emitter) error {
	if _, _, err := o.sessions.IncrementFollowup(ctx, token); err != nil {
		return err
	}

	text, err := o.streamUtterance(ctx, em, buildFollowupPrompt(tc, d.FollowupQuestion), d.FollowupQuestion)
	if err != nil {
		return err
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, text)
	return err
}

// advanceQuestion moves to the next stored question, or ends when none
// remain. The question text is streamed verbatim: the response model
// never rephrases fixed questions.
func (o *Orchestrator) advanceQuestion(ctx context.Context, token string, em Emitter) error {
	state, found, err := o.sessions.AdvanceQuestion(ctx, token)
	if err != nil || !found {
		return err
	}

	q := state.CurrentQuestion()
	if q == nil {
		return o.endInterview(ctx, token, "questions_exhausted", em)
	}

	if err := em.Emit(wire.EventQuestionAdvanced, wire.QuestionAdvanced{
		QuestionIndex:  state.CurrentQuestionIndex,
		TotalQuestions: len(state.Questions),
	}); err != nil {
		return err
	}

	if err := o.emitVerbatim(em, q.Text); err != nil {
		return err
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, q.Text)
	return err
}

func (o *Orchestrator) answerCandidateQuestion(ctx context.Context, token string, tc *turnContext, d *Decision, em Emitter) error {
	question := d.DetectedCandidateQuestion
	if question == "" {
		question = tc.utterance
	}

	var text string
	var err error
	if strings.TrimSpace(d.KbAnswer) == "" {
		// Honest miss: nothing grounded to say.
		text = fallbackNoAnswer
		if emitErr := o.emitVerbatim(em, text); emitErr != nil {
			return emitErr
		}
	} else {
		text, err = o.streamUtterance(ctx, em, buildKbAnswerPrompt(question, d.KbAnswer, d.KbCitations), d.KbAnswer)
		if err != nil {
			return err
		}
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, text)
	return err
}

func (o *Orchestrator) handleMeta(ctx context.Context, token string, tc *turnContext, em Emitter) error {
	text, err := o.streamUtterance(ctx, em, buildMetaPrompt(tc.utterance), fallbackApology)
	if err != nil {
		return err
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, text)
	return err
}

// handleInquiryTurn serves unstructured inquiry sessions: every turn is
// a direct grounded answer, no follow-up/advance machinery.
func (o *Orchestrator) handleInquiryTurn(ctx context.Context, token string, state *store.SessionState, utterance string, em Emitter) error {
	state, found, err := o.sessions.AppendMessage(ctx, token, store.RoleCandidate, utterance)
	if err != nil || !found {
		return err
	}

	var passages []knowledge.Passage
	if o.retriever != nil {
		passages, err = o.retriever.Retrieve(ctx, o.cfg.QueryExtractor(utterance), knowledge.TopKQuestion)
		if err != nil {
			o.logger.Warn("Orchestrator", "Knowledge retrieval failed", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
		}
	}

	text, err := o.streamUtterance(ctx, em, buildInquiryPrompt(state, utterance, passages), fallbackNoAnswer)
	if err != nil {
		return err
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, text)
	return err
}

// DeliverQuestion streams the current fixed question verbatim, without
// touching the question index. Used for the opening turn.
func (o *Orchestrator) DeliverQuestion(ctx context.Context, token string, em Emitter) error {
	state, found, err := o.sessions.Get(ctx, token)
	if err != nil || !found {
		return err
	}
	q := state.CurrentQuestion()
	if q == nil {
		return nil
	}
	if err := o.emitVerbatim(em, q.Text); err != nil {
		return err
	}
	_, _, err = o.sessions.AppendMessage(ctx, token, store.RoleInterviewer, q.Text)
	return err
}

// endInterview runs the terminal transition: farewell, completed status,
// post-processing job, interview_ended event, delayed invalidation.
// Every step that can fail still leaves the session in a deterministic
// final state.
func (o *Orchestrator) endInterview(ctx context.Context, token, reason string, em Emitter) error {
	if err := o.emitVerbatim(em, fallbackFarewell); err != nil {
		o.logger.Warn("Orchestrator", "Farewell emit failed", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}

	if _, _, err := o.sessions.UpdateStatus(ctx, token, store.StatusCompleted); err != nil {
		return fmt.Errorf("mark session %s completed: %w", token, err)
	}

	if o.jobs != nil {
		if err := o.jobs.EnqueueSummary(ctx, token); err != nil {
			o.logger.Warn("Orchestrator", "Summary job enqueue failed", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
		}
	}

	if err := em.Emit(wire.EventInterviewEnded, wire.InterviewEnded{Reason: reason}); err != nil {
		o.logger.Warn("Orchestrator", "interview_ended emit failed", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}

	// Grace delay lets in-flight client reads finish before the record
	// disappears.
	time.AfterFunc(o.cfg.EndGraceDelay, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.sessions.Invalidate(cctx, token); err != nil {
			o.logger.Warn("Orchestrator", "Session invalidation failed", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
		}
	})

	return nil
}

// streamUtterance streams a model response token by token to the
// transport. A mid-stream failure substitutes a short apology so the
// client always receives a well-formed end event.
func (o *Orchestrator) streamUtterance(ctx context.Context, em Emitter, prompt, fallbackText string) (string, error) {
	messageId := uuid.NewString()
	if err := em.Emit(wire.EventAiMessageStart, wire.AiMessageStart{MessageId: messageId}); err != nil {
		return "", err
	}

	var full strings.Builder
	chunks, errc := o.responder.Stream(ctx, []llm.Message{{Role: "user", Content: prompt}})
	for chunk := range chunks {
		if err := em.Emit(wire.EventAiMessageToken, wire.AiMessageToken{MessageId: messageId, Token: chunk}); err != nil {
			return "", err
		}
		full.WriteString(chunk)
	}

	if err := <-errc; err != nil {
		o.logger.Warn("Orchestrator", "Response stream failed, substituting apology", map[string]interface{}{
			"message_id": messageId,
			"error":      err.Error(),
		})
		sub := fallbackApology
		if full.Len() == 0 && fallbackText != "" {
			sub = fallbackText
		}
		if err := em.Emit(wire.EventAiMessageToken, wire.AiMessageToken{MessageId: messageId, Token: sub}); err != nil {
			return "", err
		}
		full.Reset()
		full.WriteString(sub)
	}

	text := full.String()
	if err := em.Emit(wire.EventAiMessageEnd, wire.AiMessageEnd{MessageId: messageId, FullText: text}); err != nil {
		return "", err
	}
	return text, nil
}

// emitVerbatim sends fixed text through the same start/token/end frames
// the streamed path uses, so the client handles both identically.
func (o *Orchestrator) emitVerbatim(em Emitter, text string) error {
	messageId := uuid.NewString()
	if err := em.Emit(wire.EventAiMessageStart, wire.AiMessageStart{MessageId: messageId}); err != nil {
		return err
	}
	if err := em.Emit(wire.EventAiMessageToken, wire.AiMessageToken{MessageId: messageId, Token: text}); err != nil {
		return err
	}
	return em.Emit(wire.EventAiMessageEnd, wire.AiMessageEnd{MessageId: messageId, FullText: text})
}
