package main

import (
	"log"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/model"
	"ai-interview-be/pkg/database"
	"ai-interview-be/pkg/embedding"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Seeds one demo interview template and a small knowledge base so a
// fresh environment can run an end-to-end interview.
func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	var embedder embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embedder = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	} else {
		embedder = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
	}

	if err := seedTemplate(db); err != nil {
		log.Fatal("Error: Failed to seed interview template:", err)
	}
	if err := seedKnowledgeBase(db, embedder); err != nil {
		log.Fatal("Error: Failed to seed knowledge base:", err)
	}

	log.Println("Seeding completed.")
}

func seedTemplate(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.InterviewTemplate{}).Where("name = ?", "Backend Engineer Screen").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Interview template already seeded, skipping.")
		return nil
	}

	template := model.InterviewTemplate{
		Name: "Backend Engineer Screen",
		Mode: "STRUCTURED",
		Questions: []model.TemplateQuestion{
			{
				Position:     0,
				Text:         "Tell me about a backend system you built that you are proud of. What did it do and what was your role?",
				Rubric:       "Looking for ownership of a concrete system, clear articulation of scope and personal contribution.",
				MaxFollowups: 2,
			},
			{
				Position:     1,
				Text:         "Walk me through how you would design a rate limiter for a public API.",
				Rubric:       "Expects token bucket or sliding window, discussion of distributed state, and tradeoffs around fairness and burst handling.",
				MaxFollowups: 2,
			},
			{
				Position:     2,
				Text:         "Describe a production incident you were involved in. How was it detected and resolved?",
				Rubric:       "Looking for structured incident response, honest reflection, and concrete prevention follow-up.",
				MaxFollowups: 1,
			},
			{
				Position:     3,
				Text:         "Do you have any remaining questions for us?",
				Rubric:       "Closing question, no evaluation.",
				MaxFollowups: 0,
			},
		},
	}

	if err := db.Create(&template).Error; err != nil {
		return err
	}
	log.Printf("Seeded template %s with %d questions.", template.Id, len(template.Questions))
	return nil
}

var kbSeedPassages = []struct {
	SourceTitle string
	Chunks      []string
}{
	{
		SourceTitle: "Company Overview",
		Chunks: []string{
			"We are a remote-first company of around 80 people building developer tooling for data teams. Engineering is organized into small product squads of four to six people, each owning a service end to end.",
			"Our interview process has three stages: this screening interview, a take-home exercise reviewed together in a follow-up call, and a final conversation with the hiring manager. Most candidates hear back within five business days of each stage.",
		},
	},
	{
		SourceTitle: "Engineering Practices",
		Chunks: []string{
			"The backend is primarily written in Go, with PostgreSQL for storage and Redis for caching and ephemeral state. Services communicate over NATS and expose HTTP APIs behind a shared gateway.",
			"We deploy continuously from the main branch. Every change requires one approving review, and squads run their own on-call rotation with a weekly handoff.",
		},
	},
	{
		SourceTitle: "Benefits and Compensation",
		Chunks: []string{
			"Compensation bands are published internally per level and location tier. The offer for this role includes equity, and salary specifics are discussed with the recruiter after the final stage rather than during technical interviews.",
		},
	},
}

func seedKnowledgeBase(db *gorm.DB, embedder embedding.EmbeddingProvider) error {
	var count int64
	if err := db.Model(&model.KbPassage{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Knowledge base already seeded, skipping.")
		return nil
	}

	total := 0
	for _, source := range kbSeedPassages {
		for i, chunk := range source.Chunks {
			res, err := embedder.Generate(chunk, embedding.TaskRetrievalDocument)
			if err != nil {
				return err
			}
			passage := model.KbPassage{
				SourceTitle:    source.SourceTitle,
				Content:        chunk,
				EmbeddingValue: pgvector.NewVector(res.Embedding.Values),
				ChunkIndex:     i,
			}
			if err := db.Create(&passage).Error; err != nil {
				return err
			}
			total++
		}
	}
	log.Printf("Seeded %d knowledge base passages.", total)
	return nil
}
