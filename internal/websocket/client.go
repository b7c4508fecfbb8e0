package websocket

import (
	"context"
	"encoding/json"
	"time"

	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/orchestrator"
	"ai-interview-be/pkg/transport/wire"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// TurnRouter is the inbound side of a live interview. The orchestrator
// implements it; readPump calls it sequentially, which is what keeps a
// single writer per session key.
type TurnRouter interface {
	HandleTranscript(ctx context.Context, token, utterance string, em orchestrator.Emitter) error
	HandleEndRequest(ctx context.Context, token string, em orchestrator.Emitter) error
}

// Client is one live interview connection.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// Token is the session token this connection is bound to.
	Token string

	// Buffered channel of outbound frames.
	Send chan []byte

	router TurnRouter
	logger logger.ILogger
}

// sessionEmitter routes orchestrator output through the hub so a
// reconnected socket, possibly on another instance, still receives it.
type sessionEmitter struct {
	hub   *Hub
	token string
}

func (e sessionEmitter) Emit(event string, payload interface{}) error {
	return e.hub.Emit(e.token, event, payload)
}

// readPump pumps inbound envelopes from the websocket to the router, one
// at a time, until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	em := sessionEmitter{hub: c.Hub, token: c.Token}

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WsClient", "Unexpected close", map[string]interface{}{
					"token": c.Token,
					"error": err.Error(),
				})
			}
			break
		}
		c.dispatch(raw, em)
	}
}

func (c *Client) dispatch(raw []byte, em sessionEmitter) {
	var envelope wire.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.logger.Warn("WsClient", "Malformed envelope", map[string]interface{}{"token": c.Token, "error": err.Error()})
		_ = em.Emit(wire.EventError, wire.Error{Code: wire.ErrCodeBadRequest, Message: "malformed envelope"})
		return
	}

	ctx := context.Background()

	switch envelope.Event {
	case wire.EventCandidateTranscriptFinal:
		var payload wire.CandidateTranscriptFinal
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.Content == "" {
			return
		}
		if err := c.router.HandleTranscript(ctx, c.Token, payload.Content, em); err != nil {
			c.logger.Error("WsClient", "Turn failed", map[string]interface{}{"token": c.Token, "error": err.Error()})
			_ = em.Emit(wire.EventError, wire.Error{Code: wire.ErrCodeInternal, Message: "could not process your answer"})
		}

	case wire.EventCandidateTranscriptPartial:
		// Partials are display-only on the client, never evaluated.

	case wire.EventCandidateInterrupt:
		// Playback cancellation happens client-side; nothing to do here.
		c.logger.Debug("WsClient", "Candidate interrupt", map[string]interface{}{"token": c.Token})

	case wire.EventMicMuted:
		var payload wire.MicMuted
		_ = json.Unmarshal(envelope.Data, &payload)
		c.logger.Info("WsClient", "Mic state changed", map[string]interface{}{"token": c.Token, "muted": payload.Muted})

	case wire.EventEndInterview:
		if err := c.router.HandleEndRequest(ctx, c.Token, em); err != nil {
			c.logger.Error("WsClient", "End request failed", map[string]interface{}{"token": c.Token, "error": err.Error()})
		}

	default:
		c.logger.Warn("WsClient", "Unknown inbound event", map[string]interface{}{"token": c.Token, "event": envelope.Event})
		_ = em.Emit(wire.EventError, wire.Error{Code: wire.ErrCodeBadRequest, Message: "unknown event: " + envelope.Event})
	}
}

// writePump pumps frames from the hub to the websocket connection. One
// frame per envelope; frames are never coalesced, so the client can parse
// each message independently.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
