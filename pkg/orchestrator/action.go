package orchestrator

import "fmt"

// Action is the closed set of things a turn can resolve to. Modeled as a
// typed enum so every dispatch site is an exhaustive switch; adding an
// action is a compile-visible change.
type Action int

const (
	ActionAskFollowup Action = iota
	ActionAdvanceQuestion
	ActionAnswerCandidateQuestion
	ActionHandleMeta
	ActionEndInterview
)

// Wire values used by the decision-model contract.
const (
	actionAskFollowupWire    = "ask_followup"
	actionAdvanceWire        = "advance_question"
	actionAnswerQuestionWire = "answer_candidate_question"
	actionHandleMetaWire     = "handle_meta"
	actionEndInterviewWire   = "end_interview"
)

func (a Action) String() string {
	switch a {
	case ActionAskFollowup:
		return actionAskFollowupWire
	case ActionAdvanceQuestion:
		return actionAdvanceWire
	case ActionAnswerCandidateQuestion:
		return actionAnswerQuestionWire
	case ActionHandleMeta:
		return actionHandleMetaWire
	case ActionEndInterview:
		return actionEndInterviewWire
	default:
		return fmt.Sprintf("unknown_action_%d", int(a))
	}
}

// ParseAction maps a decision-model string to an Action. Anything
// outside the closed set is an error so the caller can apply the
// deterministic fallback.
func ParseAction(s string) (Action, error) {
	switch s {
	case actionAskFollowupWire:
		return ActionAskFollowup, nil
	case actionAdvanceWire:
		return ActionAdvanceQuestion, nil
	case actionAnswerQuestionWire:
		return ActionAnswerCandidateQuestion, nil
	case actionHandleMetaWire:
		return ActionHandleMeta, nil
	case actionEndInterviewWire:
		return ActionEndInterview, nil
	default:
		return 0, fmt.Errorf("unknown next_action %q", s)
	}
}
