package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/llm"
	"ai-interview-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// SummarySink receives the finished interview summary for durable
// handoff (hiring systems, audit trail).
type SummarySink interface {
	PublishSummary(ctx context.Context, sessionToken string, summary string) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains post-interview summary jobs. It must run its
// read inside the end-grace window, while the completed session record
// is still in the cache.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	sessions  store.SessionStore
	llm       llm.LLMProvider
	sink      SummarySink
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	sessions store.SessionStore,
	llmProvider llm.LLMProvider,
	sink SummarySink,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		sessions:  sessions,
		llm:       llmProvider,
		sink:      sink,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishSummaryMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("Consumer", "Malformed summary job", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	state, found, err := cs.sessions.Get(ctx, payload.SessionToken)
	if err != nil {
		cs.logger.Error("Consumer", "Session read failed", map[string]interface{}{
			"token": payload.SessionToken,
			"error": err.Error(),
		})
		msg.Nack() // Retriable
		return
	}
	if !found {
		// Grace window closed before we got here. The transcript is gone;
		// there is nothing to summarize.
		cs.logger.Warn("Consumer", "Session already invalidated, skipping summary", map[string]interface{}{
			"token": payload.SessionToken,
		})
		msg.Ack()
		return
	}

	summary, err := cs.summarize(ctx, state)
	if err != nil {
		cs.logger.Error("Consumer", "Summary generation failed", map[string]interface{}{
			"token": payload.SessionToken,
			"error": err.Error(),
		})
		msg.Nack()
		return
	}

	if cs.sink != nil {
		if err := cs.sink.PublishSummary(ctx, payload.SessionToken, summary); err != nil {
			cs.logger.Error("Consumer", "Summary publish failed", map[string]interface{}{
				"token": payload.SessionToken,
				"error": err.Error(),
			})
			msg.Nack()
			return
		}
	}

	cs.logger.Info("Consumer", "Summary completed", map[string]interface{}{
		"token":  payload.SessionToken,
		"length": len(summary),
	})
	msg.Ack()
}

func (cs *consumerService) summarize(ctx context.Context, state *store.SessionState) (string, error) {
	var sb strings.Builder
	sb.WriteString("<system>\n")
	sb.WriteString("You write concise hiring summaries. Summarize the interview below: ")
	sb.WriteString("answered questions, notable strengths, notable gaps. Plain prose, under 300 words.\n")
	sb.WriteString("</system>\n\n<final_state>\n")
	sb.WriteString(fmt.Sprintf("questions_reached: %d of %d\n", state.CurrentQuestionIndex, len(state.Questions)))
	sb.WriteString("mode: " + state.Mode + "\n")
	sb.WriteString("</final_state>\n\n<recent_transcript>\n")
	for _, m := range state.RecentTranscript {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content))
	}
	sb.WriteString("</recent_transcript>\n")

	return cs.llm.Generate(ctx, sb.String(), llm.WithTemperature(0.2))
}
