package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/orchestrator"
	"ai-interview-be/pkg/transport/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	transcripts []string
	endCalls    int
	err         error
}

func (f *fakeRouter) HandleTranscript(_ context.Context, _ string, utterance string, _ orchestrator.Emitter) error {
	f.transcripts = append(f.transcripts, utterance)
	return f.err
}

func (f *fakeRouter) HandleEndRequest(_ context.Context, _ string, _ orchestrator.Emitter) error {
	f.endCalls++
	return f.err
}

// newDispatchFixture wires a hub, a registered client, and a fake router
// without a live websocket. The Send buffer captures everything emitted
// back at the session.
func newDispatchFixture(router *fakeRouter) (*Client, sessionEmitter) {
	hub := NewHub(nil, logger.NoopLogger{})
	c := &Client{
		Hub:    hub,
		Token:  "tok-1",
		Send:   make(chan []byte, 16),
		router: router,
		logger: logger.NoopLogger{},
	}
	hub.clients[c.Token] = c
	return c, sessionEmitter{hub: hub, token: c.Token}
}

func envelope(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := wire.Encode(event, payload)
	require.NoError(t, err)
	return data
}

func drainEvents(c *Client) []string {
	var events []string
	for {
		select {
		case raw := <-c.Send:
			var env wire.Envelope
			if json.Unmarshal(raw, &env) == nil {
				events = append(events, env.Event)
			}
		default:
			return events
		}
	}
}

func TestDispatchFinalTranscriptReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, wire.EventCandidateTranscriptFinal, wire.CandidateTranscriptFinal{Content: "I led the migration."}), em)

	require.Equal(t, []string{"I led the migration."}, router.transcripts)
	assert.Empty(t, drainEvents(c))
}

func TestDispatchEmptyTranscriptIsIgnored(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, wire.EventCandidateTranscriptFinal, wire.CandidateTranscriptFinal{Content: ""}), em)

	assert.Empty(t, router.transcripts)
	assert.Empty(t, drainEvents(c))
}

func TestDispatchPartialTranscriptNeverReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, wire.EventCandidateTranscriptPartial, map[string]string{"content": "I led"}), em)

	assert.Empty(t, router.transcripts)
	assert.Empty(t, drainEvents(c))
}

func TestDispatchEndInterview(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, wire.EventEndInterview, struct{}{}), em)

	assert.Equal(t, 1, router.endCalls)
	assert.Empty(t, drainEvents(c))
}

func TestDispatchMalformedEnvelopeEmitsBadRequest(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch([]byte("{not json"), em)

	events := drainEvents(c)
	require.Equal(t, []string{wire.EventError}, events)
	assert.Empty(t, router.transcripts)
}

func TestDispatchUnknownEventEmitsBadRequest(t *testing.T) {
	router := &fakeRouter{}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, "telepathy", struct{}{}), em)

	assert.Equal(t, []string{wire.EventError}, drainEvents(c))
}

func TestDispatchRouterErrorEmitsInternalError(t *testing.T) {
	router := &fakeRouter{err: assert.AnError}
	c, em := newDispatchFixture(router)

	c.dispatch(envelope(t, wire.EventCandidateTranscriptFinal, wire.CandidateTranscriptFinal{Content: "answer"}), em)

	raws := drainEvents(c)
	require.Equal(t, []string{wire.EventError}, raws)
}
