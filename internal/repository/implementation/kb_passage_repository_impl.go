package implementation

import (
	"context"

	"ai-interview-be/internal/model"
	"ai-interview-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type KbPassageRepositoryImpl struct {
	db *gorm.DB
}

func NewKbPassageRepository(db *gorm.DB) contract.KbPassageRepository {
	return &KbPassageRepositoryImpl{db: db}
}

func (r *KbPassageRepositoryImpl) FindNearest(ctx context.Context, embedding []float32, limit int) ([]model.KbPassage, error) {
	var passages []model.KbPassage

	// Using pgvector cosine distance: embedding_value <=> vector
	queryVector := pgvector.NewVector(embedding)
	err := r.db.WithContext(ctx).
		Model(&model.KbPassage{}).
		Order(gorm.Expr("embedding_value <=> ?", queryVector)).
		Limit(limit).
		Find(&passages).Error
	if err != nil {
		return nil, err
	}

	return passages, nil
}
