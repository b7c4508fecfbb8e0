package contract

import (
	"context"

	"ai-interview-be/internal/model"

	"github.com/google/uuid"
)

// TemplateRepository reads interview templates. Templates are external
// collaborators from the orchestrator's point of view: they are read
// exactly once, at session start, to seed the question snapshot.
type TemplateRepository interface {
	FindById(ctx context.Context, id uuid.UUID) (*model.InterviewTemplate, error)
}
