package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ai-interview-be/internal/pkg/logger"

	"github.com/gorilla/websocket"
)

// CredentialProvider mints a short-lived credential for the speech
// service. It is called on every (re)connect so an expired credential
// never blocks recovery.
type CredentialProvider func(ctx context.Context) (string, error)

// VadConfig tunes server-side voice activity detection for a
// conversational turn-taking feel.
type VadConfig struct {
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// CaptureCallbacks receive capture events. Speech start/stop pulses carry
// no content; only finalized segments carry text.
type CaptureCallbacks struct {
	OnTranscript    func(text string)
	OnSpeechStarted func()
	OnSpeechStopped func()
	OnError         func(err *Error)
}

// CaptureConfig bundles everything a capture client needs.
type CaptureConfig struct {
	URL        string
	Credential CredentialProvider
	Vad        VadConfig

	// MaxReconnectsPerMinute and MaxReconnectsLifetime are independent
	// caps; exceeding either one is terminal.
	MaxReconnectsPerMinute int
	MaxReconnectsLifetime  int
}

// CaptureClient streams microphone audio to a realtime recognition
// service and surfaces transcripts. Recognition is a pure perception
// channel: the service's own response generation is disabled and every
// reply decision belongs to the orchestrator.
type CaptureClient struct {
	cfg       CaptureConfig
	callbacks CaptureCallbacks
	logger    logger.ILogger
	pre       *Preprocessor

	mu   sync.Mutex
	conn *websocket.Conn

	// closed suppresses reconnection on deliberate teardown.
	closed atomic.Bool

	lifetimeReconnects int
	windowStart        time.Time
	windowReconnects   int

	terminalOnce sync.Once
}

func NewCaptureClient(cfg CaptureConfig, cb CaptureCallbacks, log logger.ILogger) *CaptureClient {
	if cfg.MaxReconnectsPerMinute == 0 {
		cfg.MaxReconnectsPerMinute = 4
	}
	if cfg.MaxReconnectsLifetime == 0 {
		cfg.MaxReconnectsLifetime = 10
	}
	if cfg.Vad.Threshold == 0 {
		cfg.Vad = VadConfig{Threshold: 0.5, PrefixPaddingMs: 300, SilenceDurationMs: 500}
	}
	return &CaptureClient{
		cfg:       cfg,
		callbacks: cb,
		logger:    log,
		pre:       NewPreprocessor(16000),
	}
}

// Connect establishes the recognition session and starts the read loop.
func (c *CaptureClient) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	go c.readLoop(ctx)
	return nil
}

func (c *CaptureClient) connect(ctx context.Context) error {
	credential, err := c.cfg.Credential(ctx)
	if err != nil {
		return newError(ErrUnauthorized, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return mapHTTPStatus(resp.StatusCode)
		}
		return newError(ErrServiceUnavailable, err)
	}

	// Transcription only. The auto-response hook stays off so the model
	// behind the recognition service never speaks on its own.
	sessionUpdate := map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"turn_detection": map[string]interface{}{
				"type":                "server_vad",
				"threshold":           c.cfg.Vad.Threshold,
				"prefix_padding_ms":   c.cfg.Vad.PrefixPaddingMs,
				"silence_duration_ms": c.cfg.Vad.SilenceDurationMs,
				"create_response":     false,
			},
			"input_audio_format": "pcm16",
		},
	}
	if err := conn.WriteJSON(sessionUpdate); err != nil {
		conn.Close()
		return newError(ErrServiceUnavailable, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// SendAudio preprocesses and forwards one PCM block.
func (c *CaptureClient) SendAudio(pcm []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.pre.Process(pcm)
	frame := map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}
	return conn.WriteJSON(frame)
}

// Close tears the session down deliberately; no reconnection follows.
func (c *CaptureClient) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

type captureEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Error      struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *CaptureClient) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			if !c.tryReconnect(ctx) {
				return
			}
			continue
		}

		var event captureEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Type {
		case "conversation.item.input_audio_transcription.completed":
			if event.Transcript != "" && c.callbacks.OnTranscript != nil {
				c.callbacks.OnTranscript(event.Transcript)
			}
		case "input_audio_buffer.speech_started":
			if c.callbacks.OnSpeechStarted != nil {
				c.callbacks.OnSpeechStarted()
			}
		case "input_audio_buffer.speech_stopped":
			if c.callbacks.OnSpeechStopped != nil {
				c.callbacks.OnSpeechStopped()
			}
		case "error":
			c.logger.Warn("Capture", "Service error event", map[string]interface{}{
				"code":    event.Error.Code,
				"message": event.Error.Message,
			})
		}
	}
}

// tryReconnect runs one recovery attempt under the two independent caps.
// Past either cap the client goes permanently silent except for exactly
// one terminal error.
func (c *CaptureClient) tryReconnect(ctx context.Context) bool {
	if !c.allowReconnect() {
		c.terminalOnce.Do(func() {
			if c.callbacks.OnError != nil {
				c.callbacks.OnError(newError(ErrReconnectExhausted, nil))
			}
		})
		return false
	}

	backoff := 250 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if c.closed.Load() {
			return false
		}

		if err := c.connect(ctx); err == nil {
			c.logger.Info("Capture", "Reconnected", map[string]interface{}{
				"lifetime_reconnects": c.lifetimeReconnects,
			})
			return true
		}

		if !c.allowReconnect() {
			c.terminalOnce.Do(func() {
				if c.callbacks.OnError != nil {
					c.callbacks.OnError(newError(ErrReconnectExhausted, nil))
				}
			})
			return false
		}
		backoff *= 2
		if backoff > 4*time.Second {
			backoff = 4 * time.Second
		}
	}
}

func (c *CaptureClient) allowReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= time.Minute {
		c.windowStart = now
		c.windowReconnects = 0
	}

	if c.windowReconnects >= c.cfg.MaxReconnectsPerMinute {
		return false
	}
	if c.lifetimeReconnects >= c.cfg.MaxReconnectsLifetime {
		return false
	}

	c.windowReconnects++
	c.lifetimeReconnects++
	return true
}
