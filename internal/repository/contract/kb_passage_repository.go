package contract

import (
	"context"

	"ai-interview-be/internal/model"
)

// KbPassageRepository does vector search over stored reference passages.
type KbPassageRepository interface {
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]model.KbPassage, error)
}
