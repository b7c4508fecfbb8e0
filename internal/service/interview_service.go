package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/pkg/serverutils"
	"ai-interview-be/internal/repository/contract"
	"ai-interview-be/pkg/orchestrator"
	"ai-interview-be/pkg/store"
	"ai-interview-be/pkg/transport/wire"

	"github.com/google/uuid"
)

type IInterviewService interface {
	StartSession(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	SessionStatus(ctx context.Context, token string) (*dto.SessionStatusResponse, error)
	AttachFile(ctx context.Context, token string, req *dto.AttachFileRequest) error
	// OpeningTurn delivers the session_started event and the first
	// question once the websocket is up.
	OpeningTurn(ctx context.Context, token string, em orchestrator.Emitter) error
}

type interviewService struct {
	cfg          *config.Config
	sessions     store.SessionStore
	templates    contract.TemplateRepository
	orchestrator *orchestrator.Orchestrator
	timers       *SessionTimer
	logger       logger.ILogger
}

func NewInterviewService(
	cfg *config.Config,
	sessions store.SessionStore,
	templates contract.TemplateRepository,
	orch *orchestrator.Orchestrator,
	timers *SessionTimer,
	log logger.ILogger,
) IInterviewService {
	return &interviewService{
		cfg:          cfg,
		sessions:     sessions,
		templates:    templates,
		orchestrator: orch,
		timers:       timers,
		logger:       log,
	}
}

// StartSession seeds a fresh session record from the template snapshot
// and mints the credentials the client needs to connect.
func (s *interviewService) StartSession(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	templateId, err := uuid.Parse(req.TemplateId)
	if err != nil {
		return nil, serverutils.NewApiError(400, "Invalid template id")
	}

	template, err := s.templates.FindById(ctx, templateId)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, serverutils.NewApiError(404, "Template not found")
	}

	mode := store.ModeStructured
	if strings.EqualFold(req.Mode, "inquiry") || (req.Mode == "" && template.Mode == store.ModeInquiry) {
		mode = store.ModeInquiry
	}

	token := uuid.NewString()
	state := &store.SessionState{
		SessionId:  token,
		TemplateId: template.Id.String(),
		Status:     store.StatusInProgress,
		Mode:       mode,
	}
	if mode == store.ModeStructured {
		// Snapshot the questions now; template edits never reach a running
		// interview.
		for _, q := range template.Questions {
			state.Questions = append(state.Questions, store.Question{
				Id:           q.Id.String(),
				Text:         q.Text,
				Rubric:       q.Rubric,
				MaxFollowups: q.MaxFollowups,
			})
		}
		if len(state.Questions) == 0 {
			return nil, serverutils.NewApiError(422, "Template has no questions")
		}
	}

	if err := s.sessions.Set(ctx, token, state); err != nil {
		return nil, fmt.Errorf("seed session: %w", err)
	}

	credential, err := serverutils.MintSpeechCredential(s.cfg.Keys.SessionSecret, token, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("mint speech credential: %w", err)
	}

	s.logger.Info("InterviewService", "Session started", map[string]interface{}{
		"token":       token,
		"template_id": template.Id.String(),
		"mode":        mode,
		"questions":   len(state.Questions),
	})

	return &dto.StartSessionResponse{
		SessionToken:     token,
		WebsocketURL:     websocketURL(s.cfg.App.BaseURL, token),
		SpeechCredential: credential,
		Mode:             mode,
		TotalQuestions:   len(state.Questions),
		ExpiresAt:        time.Now().Add(s.cfg.Interview.Duration),
	}, nil
}

func (s *interviewService) SessionStatus(ctx context.Context, token string) (*dto.SessionStatusResponse, error) {
	state, found, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, serverutils.ErrSessionNotFound
	}
	return &dto.SessionStatusResponse{
		SessionToken:         token,
		Status:               state.Status,
		Mode:                 state.Mode,
		CurrentQuestionIndex: state.CurrentQuestionIndex,
		TotalQuestions:       len(state.Questions),
	}, nil
}

// AttachFile records an uploaded document's summary on the session and
// notifies the client the file is usable. Summaries accumulate; a later
// upload never erases the context an earlier one contributed.
func (s *interviewService) AttachFile(ctx context.Context, token string, req *dto.AttachFileRequest) error {
	state, found, err := s.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return serverutils.ErrSessionNotFound
	}

	combined := req.Summary
	if state.CandidateFilesSummary != "" {
		combined = state.CandidateFilesSummary + "\n\n" + req.Summary
	}
	if _, found, err = s.sessions.SetFilesSummary(ctx, token, combined); err != nil {
		return err
	}
	if !found {
		return serverutils.ErrSessionNotFound
	}

	return s.timers.hub.Emit(token, wire.EventFileReady, wire.FileReady{
		FileId:  req.FileId,
		Summary: req.Summary,
	})
}

// OpeningTurn runs when the transport connects: session_started, then
// the first fixed question verbatim (structured mode only). The session
// timer starts on the first connect, not on reconnects.
func (s *interviewService) OpeningTurn(ctx context.Context, token string, em orchestrator.Emitter) error {
	state, found, err := s.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return serverutils.ErrSessionNotFound
	}
	if state.Status == store.StatusCompleted {
		return serverutils.ErrSessionEnded
	}

	started := wire.SessionStarted{
		SessionToken:   token,
		Mode:           state.Mode,
		QuestionIndex:  state.CurrentQuestionIndex,
		TotalQuestions: len(state.Questions),
	}
	if q := state.CurrentQuestion(); q != nil {
		started.QuestionText = q.Text
	}
	if err := em.Emit(wire.EventSessionStarted, started); err != nil {
		return err
	}

	if !s.timers.Started(token) {
		s.timers.Start(token)

		if q := state.CurrentQuestion(); q != nil && len(state.RecentTranscript) == 0 {
			if err := s.orchestrator.DeliverQuestion(ctx, token, em); err != nil {
				return err
			}
		}
	}
	return nil
}

func websocketURL(baseURL, token string) string {
	wsBase := strings.Replace(baseURL, "http", "ws", 1)
	return fmt.Sprintf("%s/ws/interview/%s", wsBase, token)
}
