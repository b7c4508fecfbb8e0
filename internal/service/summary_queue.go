package service

import (
	"context"
	"encoding/json"

	"ai-interview-be/internal/dto"
)

// SummaryQueue bridges the orchestrator's end-of-interview handoff onto
// the event bus and releases the session clock. The timer binding is set
// after construction because the timer itself depends on the
// orchestrator.
type SummaryQueue struct {
	publisher IPublisherService
	timers    *SessionTimer
}

func NewSummaryQueue(publisher IPublisherService) *SummaryQueue {
	return &SummaryQueue{publisher: publisher}
}

func (q *SummaryQueue) BindTimers(timers *SessionTimer) {
	q.timers = timers
}

func (q *SummaryQueue) EnqueueSummary(ctx context.Context, sessionToken string) error {
	if q.timers != nil {
		q.timers.Cancel(sessionToken)
	}
	payload, err := json.Marshal(dto.PublishSummaryMessage{SessionToken: sessionToken})
	if err != nil {
		return err
	}
	return q.publisher.Publish(ctx, payload)
}
