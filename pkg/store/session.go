package store

import "time"

// TranscriptMessage is one turn of the recent-conversation window.
type TranscriptMessage struct {
	Role      string    `json:"role"` // "interviewer" | "candidate"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Question is one immutable entry of the session's question snapshot,
// taken from template storage when the interview begins.
type Question struct {
	Id           string `json:"id"`
	Text         string `json:"text"`
	Rubric       string `json:"rubric"`
	MaxFollowups int    `json:"max_followups"`
}

// SessionState is the full live state of one interview session.
// It is owned exclusively by the orchestrator: every mutation is a
// read-modify-write of the whole record (last-writer-wins).
type SessionState struct {
	SessionId  string `json:"session_id"`
	TemplateId string `json:"template_id"`

	// CurrentQuestionIndex never decreases within a session.
	CurrentQuestionIndex int `json:"current_question_index"`

	// FollowupsUsedCurrent resets to 0 whenever the question advances.
	FollowupsUsedCurrent int `json:"followups_used_current"`

	Status string `json:"status"` // StatusInProgress | StatusCompleted

	// Mode selects the structured question flow or free-form inquiry.
	Mode string `json:"mode"`

	Questions []Question `json:"questions"`

	// RecentTranscript holds at most TranscriptWindowSize turns,
	// oldest dropped first. Cleared entirely on question advance.
	RecentTranscript []TranscriptMessage `json:"recent_transcript"`

	// CandidateFilesSummary accumulates summaries of uploaded reference
	// documents. Append-only until the session is invalidated.
	CandidateFilesSummary string `json:"candidate_files_summary,omitempty"`
}

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	// Session modes
	ModeStructured = "STRUCTURED"
	ModeInquiry    = "INQUIRY"

	RoleInterviewer = "interviewer"
	RoleCandidate   = "candidate"

	// TranscriptWindowSize is N, the context window cap.
	TranscriptWindowSize = 12
)

// CurrentQuestion returns the active question, or nil when the index has
// run past the snapshot (or the session is an inquiry session).
func (s *SessionState) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// HasNextQuestion reports whether advancing would land on a real question.
func (s *SessionState) HasNextQuestion() bool {
	return s.CurrentQuestionIndex+1 < len(s.Questions)
}
