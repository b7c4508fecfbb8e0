package dto

import "time"

type StartSessionRequest struct {
	TemplateId    string `json:"template_id" validate:"required,uuid4"`
	CandidateName string `json:"candidate_name" validate:"required,min=1,max=200"`
	// Mode selects "structured" (fixed question list) or "inquiry".
	Mode string `json:"mode" validate:"omitempty,oneof=structured inquiry"`
}

type StartSessionResponse struct {
	SessionToken string `json:"session_token"`
	WebsocketURL string `json:"websocket_url"`
	// SpeechCredential is the short-lived token for the recognition
	// service; the browser uses it directly.
	SpeechCredential string    `json:"speech_credential"`
	Mode             string    `json:"mode"`
	TotalQuestions   int       `json:"total_questions"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type SessionStatusResponse struct {
	SessionToken         string `json:"session_token"`
	Status               string `json:"status"`
	Mode                 string `json:"mode"`
	CurrentQuestionIndex int    `json:"current_question_index"`
	TotalQuestions       int    `json:"total_questions"`
}

type AttachFileRequest struct {
	FileId  string `json:"file_id" validate:"required"`
	Summary string `json:"summary" validate:"required,min=1"`
}

// PublishSummaryMessage is the post-interview job payload on the event
// bus.
type PublishSummaryMessage struct {
	SessionToken string `json:"session_token"`
}
