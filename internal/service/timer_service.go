package service

import (
	"context"
	"sync"
	"time"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/websocket"
	"ai-interview-be/pkg/orchestrator"
	"ai-interview-be/pkg/transport/wire"
)

// SessionTimer owns the wall-clock budget of every live interview. It
// fires a time_warning event ahead of expiry and then a time_expired
// event, which ends the interview exactly like an explicit end request.
// Timers are owned resources: cancelling a session releases both.
type SessionTimer struct {
	cfg    *config.Config
	hub    *websocket.Hub
	orch   *orchestrator.Orchestrator
	logger logger.ILogger

	mu     sync.Mutex
	timers map[string]*sessionClock
}

type sessionClock struct {
	warning *time.Timer
	expiry  *time.Timer
}

func NewSessionTimer(cfg *config.Config, hub *websocket.Hub, orch *orchestrator.Orchestrator, log logger.ILogger) *SessionTimer {
	return &SessionTimer{
		cfg:    cfg,
		hub:    hub,
		orch:   orch,
		logger: log,
		timers: make(map[string]*sessionClock),
	}
}

// Started reports whether the session's clock is already running, so a
// reconnect never restarts the budget.
func (t *SessionTimer) Started(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[token]
	return ok
}

func (t *SessionTimer) Start(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.timers[token]; ok {
		return
	}

	warnAfter := t.cfg.Interview.Duration - t.cfg.Interview.WarningBefore
	clock := &sessionClock{}
	clock.warning = time.AfterFunc(warnAfter, func() {
		remaining := int(t.cfg.Interview.WarningBefore.Seconds())
		if err := t.hub.Emit(token, wire.EventTimeWarning, wire.TimeWarning{RemainingSeconds: remaining}); err != nil {
			t.logger.Warn("SessionTimer", "time_warning emit failed", map[string]interface{}{
				"token": token,
				"error": err.Error(),
			})
		}
	})
	clock.expiry = time.AfterFunc(t.cfg.Interview.Duration, func() {
		t.expire(token)
	})
	t.timers[token] = clock

	t.logger.Info("SessionTimer", "Clock started", map[string]interface{}{
		"token":    token,
		"duration": t.cfg.Interview.Duration.String(),
	})
}

func (t *SessionTimer) expire(token string) {
	if err := t.hub.Emit(token, wire.EventTimeExpired, nil); err != nil {
		t.logger.Warn("SessionTimer", "time_expired emit failed", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.orch.HandleTimeExpired(ctx, token, hubEmitter{hub: t.hub, token: token}); err != nil {
		t.logger.Error("SessionTimer", "Expiry handling failed", map[string]interface{}{
			"token": token,
			"error": err.Error(),
		})
	}
	t.Cancel(token)
}

// Cancel stops and releases both timers. Idempotent.
func (t *SessionTimer) Cancel(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clock, ok := t.timers[token]
	if !ok {
		return
	}
	clock.warning.Stop()
	clock.expiry.Stop()
	delete(t.timers, token)
}

// hubEmitter adapts the hub to the orchestrator's Emitter for flows that
// originate server-side rather than from a connection.
type hubEmitter struct {
	hub   *websocket.Hub
	token string
}

func (e hubEmitter) Emit(event string, payload interface{}) error {
	return e.hub.Emit(e.token, event, payload)
}
