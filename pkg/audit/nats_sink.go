package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "INTERVIEW_AUDIT"
	subjectPrefix = "audit.interview"
)

// NatsSink publishes decision audit records to a JetStream stream so the
// durable write happens outside the turn's critical path.
type NatsSink struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ DecisionSink = &NatsSink{}

// NewNatsSink connects and ensures the audit stream exists.
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream '%s': %v", streamName, err)
		// Don't fail hard here, maybe it already exists or NATS isn't ready
	}

	return &NatsSink{nc: nc, js: js}, nil
}

func (s *NatsSink) Record(ctx context.Context, decision EvaluationDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	// Decisions and summaries live in separate sub-hierarchies so
	// consumers can subscribe to either independently.
	subject := fmt.Sprintf("%s.decision.%s", subjectPrefix, decision.SessionToken)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish audit record to %s: %w", subject, err)
	}
	return nil
}

// PublishSummary hands the finished interview summary to the audit
// stream under its own subject.
func (s *NatsSink) PublishSummary(ctx context.Context, sessionToken, summary string) error {
	data, err := json.Marshal(map[string]interface{}{
		"session_token": sessionToken,
		"summary":       summary,
		"completed_at":  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.summary.%s", subjectPrefix, sessionToken)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish summary to %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection.
func (s *NatsSink) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
