package wire

import "encoding/json"

// Event names are a cross-cutting contract between server and client.
// They are wire identifiers, not Go identifiers: never rename them.
const (
	// Server -> client
	EventSessionStarted   = "session_started"
	EventAiMessageStart   = "ai_message_start"
	EventAiMessageToken   = "ai_message_token"
	EventAiMessageEnd     = "ai_message_end"
	EventQuestionAdvanced = "question_advanced"
	EventFileReady        = "file_ready"
	EventTimeWarning      = "time_warning"
	EventTimeExpired      = "time_expired"
	EventInterviewEnded   = "interview_ended"
	EventError            = "error"

	// Client -> server
	EventCandidateTranscriptFinal   = "candidate_transcript_final"
	EventCandidateTranscriptPartial = "candidate_transcript_partial"
	EventCandidateInterrupt         = "candidate_interrupt"
	EventMicMuted                   = "mic_muted"
	EventEndInterview               = "end_interview"
)

// Error codes carried by the error event.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeSessionEnded    = "session_ended"
	ErrCodeInternal        = "internal_error"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// --- Server -> client payloads ---

type SessionStarted struct {
	SessionToken   string `json:"session_token"`
	Mode           string `json:"mode"`
	QuestionIndex  int    `json:"question_index"`
	TotalQuestions int    `json:"total_questions"`
	QuestionText   string `json:"question_text,omitempty"`
}

type AiMessageStart struct {
	MessageId string `json:"message_id"`
}

type AiMessageToken struct {
	MessageId string `json:"message_id"`
	Token     string `json:"token"`
}

type AiMessageEnd struct {
	MessageId string `json:"message_id"`
	FullText  string `json:"full_text"`
}

type QuestionAdvanced struct {
	QuestionIndex  int `json:"question_index"`
	TotalQuestions int `json:"total_questions"`
}

type FileReady struct {
	FileId  string `json:"file_id"`
	Summary string `json:"summary,omitempty"`
}

type TimeWarning struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

type InterviewEnded struct {
	Reason string `json:"reason"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Client -> server payloads ---

type CandidateTranscriptFinal struct {
	Content string `json:"content"`
}

type MicMuted struct {
	Muted bool `json:"muted"`
}

// Encode wraps an event name and payload into a marshalled envelope.
func Encode(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
