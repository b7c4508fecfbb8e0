package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ai-interview-be/internal/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captureUpgrader = websocket.Upgrader{}

func staticCredential(token string) CredentialProvider {
	return func(ctx context.Context) (string, error) { return token, nil }
}

func TestCaptureEmitsFinalsAndPulses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := captureUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Consume the session.update frame first.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		events := []map[string]interface{}{
			{"type": "input_audio_buffer.speech_started"},
			{"type": "input_audio_buffer.speech_stopped"},
			{"type": "conversation.item.input_audio_transcription.completed", "transcript": "I led the migration project."},
			// Partials must never surface.
			{"type": "conversation.item.input_audio_transcription.delta", "transcript": "I led"},
		}
		for _, e := range events {
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	var started, stopped atomic.Int32
	finals := make(chan string, 4)

	c := NewCaptureClient(CaptureConfig{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Credential: staticCredential("jwt-token"),
	}, CaptureCallbacks{
		OnTranscript:    func(text string) { finals <- text },
		OnSpeechStarted: func() { started.Add(1) },
		OnSpeechStopped: func() { stopped.Add(1) },
	}, logger.NoopLogger{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case text := <-finals:
		assert.Equal(t, "I led the migration project.", text)
	case <-time.After(2 * time.Second):
		t.Fatal("final transcript never arrived")
	}

	assert.Eventually(t, func() bool {
		return started.Load() == 1 && stopped.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Only the completed segment surfaces; the delta is dropped.
	select {
	case extra := <-finals:
		t.Fatalf("unexpected transcript: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCaptureReconnectCapIsTerminal(t *testing.T) {
	var upgrades atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// First connection works and is dropped; retries are refused.
		if upgrades.Add(1) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := captureUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	var terminal atomic.Int32
	gotError := make(chan *Error, 4)

	c := NewCaptureClient(CaptureConfig{
		URL:                    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Credential:             staticCredential("jwt-token"),
		MaxReconnectsPerMinute: 1,
		MaxReconnectsLifetime:  1,
	}, CaptureCallbacks{
		OnError: func(err *Error) {
			terminal.Add(1)
			gotError <- err
		},
	}, logger.NoopLogger{})
	require.NoError(t, c.Connect(context.Background()))

	select {
	case err := <-gotError:
		assert.Equal(t, ErrReconnectExhausted, err.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("terminal error never surfaced")
	}

	// Exactly one terminal error, and no further dial attempts.
	attempts := upgrades.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), terminal.Load())
	assert.Equal(t, attempts, upgrades.Load())
}

func TestCapturePerMinuteCapIsIndependentOfLifetime(t *testing.T) {
	c := NewCaptureClient(CaptureConfig{
		URL:                    "ws://unused",
		Credential:             staticCredential("jwt-token"),
		MaxReconnectsPerMinute: 2,
		MaxReconnectsLifetime:  10,
	}, CaptureCallbacks{}, logger.NoopLogger{})

	assert.True(t, c.allowReconnect())
	assert.True(t, c.allowReconnect())
	// The minute window is spent while the lifetime budget still has
	// plenty of headroom.
	assert.False(t, c.allowReconnect())
	assert.Equal(t, 2, c.lifetimeReconnects)

	var terminal atomic.Int32
	c.callbacks.OnError = func(err *Error) {
		terminal.Add(1)
		assert.Equal(t, ErrReconnectExhausted, err.Code)
	}
	assert.False(t, c.tryReconnect(context.Background()))
	assert.False(t, c.tryReconnect(context.Background()))
	assert.Equal(t, int32(1), terminal.Load())
}

func TestCaptureReconnectWindowResetsAfterAMinute(t *testing.T) {
	c := NewCaptureClient(CaptureConfig{
		URL:                    "ws://unused",
		Credential:             staticCredential("jwt-token"),
		MaxReconnectsPerMinute: 1,
		MaxReconnectsLifetime:  10,
	}, CaptureCallbacks{}, logger.NoopLogger{})

	assert.True(t, c.allowReconnect())
	assert.False(t, c.allowReconnect())

	// A minute later the rolling window opens again; only the lifetime
	// counter carries over.
	c.mu.Lock()
	c.windowStart = time.Now().Add(-time.Minute)
	c.mu.Unlock()

	assert.True(t, c.allowReconnect())
	assert.Equal(t, 2, c.lifetimeReconnects)
}

func TestCaptureIntentionalCloseSuppressesReconnect(t *testing.T) {
	var upgrades atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrades.Add(1)
		conn, err := captureUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var errCount atomic.Int32
	c := NewCaptureClient(CaptureConfig{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Credential: staticCredential("jwt-token"),
	}, CaptureCallbacks{
		OnError: func(*Error) { errCount.Add(1) },
	}, logger.NoopLogger{})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), upgrades.Load())
	assert.Equal(t, int32(0), errCount.Load())
}

func TestMapDeviceError(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{"NotAllowedError", ErrPermissionDenied},
		{"PermissionDeniedError", ErrPermissionDenied},
		{"NotFoundError", ErrDeviceNotFound},
		{"NotReadableError", ErrDeviceInUse},
		{"SomethingElse", ErrServiceUnavailable},
	}
	for _, tt := range tests {
		err := MapDeviceError(tt.name, nil)
		assert.Equal(t, tt.code, err.Code, tt.name)
		assert.NotEmpty(t, err.Message)
	}
}
