package audit

import (
	"context"
	"time"
)

// EvaluationDecision is the append-only audit record written once per
// turn: what the decision model saw, what it answered and what the
// orchestrator did with it.
type EvaluationDecision struct {
	SessionToken    string    `json:"session_token"`
	QuestionIndex   int       `json:"question_index"`
	TurnType        string    `json:"turn_type"`
	IsSufficient    bool      `json:"is_sufficient"`
	MissingPoints   []string  `json:"missing_points,omitempty"`
	ChosenAction    string    `json:"chosen_action"`
	FollowupText    string    `json:"followup_text,omitempty"`
	FallbackApplied bool      `json:"fallback_applied"`
	DecidedAt       time.Time `json:"decided_at"`
}

// DecisionSink receives audit records. Implementations must be safe to
// call fire-and-forget: a sink failure is logged by the caller and never
// blocks the turn.
type DecisionSink interface {
	Record(ctx context.Context, decision EvaluationDecision) error
}

// NoopSink discards records; used in tests and when auditing is disabled.
type NoopSink struct{}

var _ DecisionSink = NoopSink{}

func (NoopSink) Record(ctx context.Context, decision EvaluationDecision) error {
	return nil
}
