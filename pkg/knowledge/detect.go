package knowledge

import "strings"

// QuestionDetector decides whether a candidate utterance is a question
// directed at the interviewer rather than an answer. Pluggable so the
// orchestrator can swap in a model-backed detector later.
type QuestionDetector func(utterance string) bool

// QueryExtractor turns a question-like utterance into a retrieval query.
type QueryExtractor func(utterance string) string

var interrogativeLeads = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"can you", "could you", "do you", "does the", "is there",
	"are there", "will i", "would i",
}

// DefaultQuestionDetector is a cheap lexical heuristic: a trailing
// question mark, or an interrogative lead on a short utterance.
func DefaultQuestionDetector(utterance string) bool {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}

	lower := strings.ToLower(trimmed)
	// Long utterances that merely open with "what I did was..." are
	// answers, not questions. Only short ones count.
	if len(strings.Fields(lower)) > 20 {
		return false
	}
	for _, lead := range interrogativeLeads {
		if strings.HasPrefix(lower, lead+" ") || lower == lead {
			return true
		}
	}
	return false
}

// DefaultQueryExtractor strips filler prefixes and the trailing question
// mark so the retrieval query carries only the informative part.
func DefaultQueryExtractor(utterance string) string {
	q := strings.TrimSpace(utterance)
	q = strings.TrimSuffix(q, "?")

	lower := strings.ToLower(q)
	for _, prefix := range []string{
		"i was wondering", "quick question", "can i ask", "may i ask",
		"sorry but", "just curious",
	} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			q = strings.TrimPrefix(q, ",")
			q = strings.TrimPrefix(q, ":")
			q = strings.TrimSpace(q)
			break
		}
	}
	return q
}
