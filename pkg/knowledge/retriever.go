package knowledge

import (
	"context"
	"fmt"

	"ai-interview-be/internal/repository/contract"
	"ai-interview-be/pkg/embedding"
)

// Default top-K values. A detected candidate question pulls deeper into
// the knowledge base than the routine sufficiency check does.
const (
	TopKQuestion = 7
	TopKDefault  = 5
)

// Passage is one retrieved reference chunk plus its citation handle.
type Passage struct {
	Citation string
	Content  string
	Score    float32
}

// Retriever looks up reference passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// PgVectorRetriever embeds the query and runs a cosine nearest-neighbour
// search over the kb_passages table.
type PgVectorRetriever struct {
	passages contract.KbPassageRepository
	embedder embedding.EmbeddingProvider
}

var _ Retriever = &PgVectorRetriever{}

func NewPgVectorRetriever(passages contract.KbPassageRepository, embedder embedding.EmbeddingProvider) *PgVectorRetriever {
	return &PgVectorRetriever{
		passages: passages,
		embedder: embedder,
	}
}

func (r *PgVectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = TopKDefault
	}

	embedded, err := r.embedder.Generate(query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed retrieval query: %w", err)
	}

	rows, err := r.passages.FindNearest(ctx, embedded.Embedding.Values, topK)
	if err != nil {
		return nil, fmt.Errorf("kb nearest search: %w", err)
	}

	result := make([]Passage, 0, len(rows))
	for _, row := range rows {
		result = append(result, Passage{
			Citation: fmt.Sprintf("%s#%d", row.SourceTitle, row.ChunkIndex),
			Content:  row.Content,
		})
	}
	return result, nil
}
