package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision is the strict structured-output contract of the fast decision
// model. Field names are part of the model prompt; keep them stable.
type Decision struct {
	TurnType                  string   `json:"turn_type"`
	IsSufficient              bool     `json:"is_sufficient"`
	MissingPoints             []string `json:"missing_points"`
	NextAction                string   `json:"next_action"`
	FollowupQuestion          string   `json:"followup_question"`
	CandidateAnswerSummary    string   `json:"candidate_answer_summary"`
	DetectedCandidateQuestion string   `json:"detected_candidate_question"`
	KbAnswer                  string   `json:"kb_answer"`
	KbCitations               []string `json:"kb_citations"`
	FileReference             string   `json:"file_reference"`

	// Action is the parsed NextAction, filled by ParseDecision.
	Action Action `json:"-"`
}

// ParseDecision extracts and validates the decision JSON. Models wrap
// JSON in prose or code fences often enough that we scan for the first
// balanced object instead of unmarshalling the raw response.
func ParseDecision(raw string) (*Decision, error) {
	jsonStr := extractJSONObject(raw)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in decision response")
	}

	var d Decision
	if err := json.Unmarshal([]byte(jsonStr), &d); err != nil {
		return nil, fmt.Errorf("decision unmarshal: %w", err)
	}

	action, err := ParseAction(d.NextAction)
	if err != nil {
		return nil, err
	}
	d.Action = action

	if d.Action == ActionAskFollowup && strings.TrimSpace(d.FollowupQuestion) == "" {
		return nil, fmt.Errorf("ask_followup without followup_question")
	}

	return &d, nil
}

// FallbackDecision is the deterministic default applied whenever the
// decision call errors or returns unparseable output: never stall the
// interview, just move on.
func FallbackDecision() *Decision {
	return &Decision{
		TurnType:     "answer",
		IsSufficient: true,
		NextAction:   actionAdvanceWire,
		Action:       ActionAdvanceQuestion,
	}
}

// extractJSONObject returns the first balanced top-level {...} in s,
// ignoring braces inside JSON strings.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
