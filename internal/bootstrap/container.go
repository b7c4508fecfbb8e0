package bootstrap

import (
	"context"
	"log"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/controller"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/repository/implementation"
	"ai-interview-be/internal/service"
	"ai-interview-be/internal/websocket"
	"ai-interview-be/pkg/audit"
	"ai-interview-be/pkg/embedding"
	"ai-interview-be/pkg/knowledge"
	"ai-interview-be/pkg/llm/factory"
	"ai-interview-be/pkg/orchestrator"
	"ai-interview-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	InterviewController controller.IInterviewController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Model Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	decisionProvider, err := factory.NewLLMProvider(
		cfg.Ai.DecisionProvider,
		cfg.Ai.DecisionModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.GoogleGemini,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize decision provider: %v", err)
	}
	responseProvider, err := factory.NewLLMProvider(
		cfg.Ai.ResponseProvider,
		cfg.Ai.ResponseModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.GoogleGemini,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize response provider: %v", err)
	}
	log.Printf("[INFO] Decision model: %s (%s), Response model: %s (%s)",
		cfg.Ai.DecisionProvider, cfg.Ai.DecisionModel, cfg.Ai.ResponseProvider, cfg.Ai.ResponseModel)

	// 4. Infrastructure
	natsSink, err := audit.NewNatsSink(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS audit sink: %v. Decisions will not be audited.", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)

	var sessions store.SessionStore
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Redis unavailable (%v), falling back to in-process session store", err)
		sessions = store.NewMemorySessionStore(cfg.Interview.SessionTTL)
		rdb = nil
	} else {
		sessions = store.NewRedisSessionStore(rdb, cfg.Interview.SessionTTL, sysLogger)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/interview_ws.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Domain
	templateRepo := implementation.NewTemplateRepository(db)
	passageRepo := implementation.NewKbPassageRepository(db)
	retriever := knowledge.NewPgVectorRetriever(passageRepo, embeddingProvider)

	publisherService := service.NewPublisherService(cfg.Interview.SummaryTopic, pubSub)
	summaryQueue := service.NewSummaryQueue(publisherService)

	orch := orchestrator.New(
		sessions,
		decisionProvider,
		responseProvider,
		retriever,
		decisionSink(natsSink),
		summaryQueue,
		sysLogger,
		orchestrator.Config{EndGraceDelay: cfg.Interview.EndGraceDelay},
	)

	timers := service.NewSessionTimer(cfg, wsHub, orch, sysLogger)
	summaryQueue.BindTimers(timers)

	interviewService := service.NewInterviewService(cfg, sessions, templateRepo, orch, timers, sysLogger)

	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Interview.SummaryTopic,
		sessions,
		responseProvider,
		summarySink(natsSink),
		sysLogger,
	)

	return &Container{
		InterviewController: controller.NewInterviewController(
			interviewService,
			sessions,
			wsHub,
			orch,
			sysLogger,
		),
		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
	}
}

func decisionSink(sink *audit.NatsSink) audit.DecisionSink {
	if sink == nil {
		return audit.NoopSink{}
	}
	return sink
}

func summarySink(sink *audit.NatsSink) service.SummarySink {
	if sink == nil {
		return nil
	}
	return sink
}
