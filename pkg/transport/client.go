package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ai-interview-be/pkg/transport/wire"

	"github.com/gorilla/websocket"
)

// State is the externally visible lifecycle of the channel.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
	// StateFailed is terminal: reconnection attempts are exhausted and the
	// only recovery is a fresh session.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrChannelFailed is returned by Send once the channel is terminal.
var ErrChannelFailed = errors.New("transport: channel failed, please refresh and start a new session")

// ErrQueueFull is returned when the offline queue cannot absorb more
// messages; the caller decides whether losing the message is acceptable.
var ErrQueueFull = errors.New("transport: offline queue full")

// ReconnectionState is the last server-confirmed view of the interview,
// reported once on the transition back to connected, never during normal
// operation. The UI resynchronizes from it instead of waiting for the
// next server push.
type ReconnectionState struct {
	// LastQuestionIndex is the newest index the server confirmed through
	// session_started or question_advanced; -1 until either arrives.
	LastQuestionIndex int
	// LastAiMessage is the full text of the last completed interviewer
	// utterance.
	LastAiMessage string
	// PendingTranscript is the newest candidate transcript that was still
	// queued when the link came back. It has been flushed by the time the
	// callback runs.
	PendingTranscript string

	Attempts int
	Downtime time.Duration
	Flushed  int
}

// Options tunes a Client. Zero values fall back to defaults in Dial.
type Options struct {
	// MaxAttempts bounds consecutive reconnection attempts before the
	// channel turns terminal.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	PingInterval time.Duration

	// QueueLimit bounds the offline send queue.
	QueueLimit int

	// Header carries auth (session token) on the upgrade request.
	Header http.Header

	OnEnvelope    func(wire.Envelope)
	OnStateChange func(State)
	OnReconnected func(ReconnectionState)
}

func (o *Options) withDefaults() {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.BaseBackoff == 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 8 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.QueueLimit == 0 {
		o.QueueLimit = 128
	}
}

// Client is a self-healing websocket channel. Messages sent while the
// link is down are queued and flushed in order on reconnect; a close
// initiated by the server is final and is never retried.
type Client struct {
	url  string
	opts Options

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	queue    [][]byte
	lastPong time.Time

	// Server-confirmed facts for reconnect resynchronization.
	lastQuestionIndex int
	lastAiMessage     string
	pendingTranscript string

	// serverClosed marks a close the server meant: normal close frame or
	// an interview_ended event. No reconnect after that.
	serverClosed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial opens the channel and starts the read and heartbeat loops. The
// returned client is usable immediately; Send before the first connect
// queues.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts.withDefaults()

	c := &Client{
		url:               url,
		opts:              opts,
		state:             StateConnecting,
		done:              make(chan struct{}),
		lastQuestionIndex: -1,
	}

	conn, err := c.dialOnce(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: initial dial: %w", err)
	}
	c.conn = conn
	c.setState(StateConnected)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx)
	return c, nil
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return nil, err
	}
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return nil
	})
	return conn, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastPong reports the most recent heartbeat response. Staleness is an
// observation for diagnostics; it never forces a disconnect by itself.
func (c *Client) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

// Send delivers one envelope, queueing it if the link is down.
func (c *Client) Send(event string, payload interface{}) error {
	data, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateFailed:
		return ErrChannelFailed
	case StateClosed:
		return errors.New("transport: channel closed")
	case StateConnected:
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// The write just discovered the link is gone; queue and let the
			// read loop drive recovery.
			return c.enqueueLocked(event, payload, data)
		}
		return nil
	default:
		return c.enqueueLocked(event, payload, data)
	}
}

func (c *Client) enqueueLocked(event string, payload interface{}, data []byte) error {
	if len(c.queue) >= c.opts.QueueLimit {
		return ErrQueueFull
	}
	c.queue = append(c.queue, data)
	if event == wire.EventCandidateTranscriptFinal {
		if p, ok := payload.(wire.CandidateTranscriptFinal); ok {
			c.pendingTranscript = p.Content
		}
	}
	return nil
}

// Close shuts the channel down deliberately. It is not an error path and
// never triggers reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

// Done is closed when the channel reaches a terminal state.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	pingTicker := time.NewTicker(c.opts.PingInterval)
	defer pingTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				c.mu.Lock()
				conn, connected := c.conn, c.state == StateConnected
				c.mu.Unlock()
				if connected {
					conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	for {
		c.readLoop(ctx)
		if ctx.Err() != nil || c.State() == StateClosed {
			return
		}

		c.mu.Lock()
		intentional := c.serverClosed
		c.mu.Unlock()
		if intentional {
			// The server ended the conversation; retrying would only create
			// a zombie session.
			c.setState(StateClosed)
			return
		}

		if err := c.reconnect(ctx); err != nil {
			c.setState(StateFailed)
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.mu.Lock()
				c.serverClosed = true
				c.mu.Unlock()
			}
			return err
		}

		var envelope wire.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		c.observe(envelope)
		if c.opts.OnEnvelope != nil {
			c.opts.OnEnvelope(envelope)
		}
	}
}

// observe records the server-confirmed facts a later reconnect report is
// built from.
func (c *Client) observe(envelope wire.Envelope) {
	switch envelope.Event {
	case wire.EventSessionStarted:
		var p wire.SessionStarted
		if json.Unmarshal(envelope.Data, &p) == nil {
			c.mu.Lock()
			c.lastQuestionIndex = p.QuestionIndex
			c.mu.Unlock()
		}
	case wire.EventQuestionAdvanced:
		var p wire.QuestionAdvanced
		if json.Unmarshal(envelope.Data, &p) == nil {
			c.mu.Lock()
			c.lastQuestionIndex = p.QuestionIndex
			c.mu.Unlock()
		}
	case wire.EventAiMessageEnd:
		var p wire.AiMessageEnd
		if json.Unmarshal(envelope.Data, &p) == nil {
			c.mu.Lock()
			c.lastAiMessage = p.FullText
			c.mu.Unlock()
		}
	case wire.EventInterviewEnded:
		c.mu.Lock()
		c.serverClosed = true
		c.mu.Unlock()
	}
}

// reconnect runs the bounded backoff loop and, on success, flushes the
// offline queue in order before reporting the channel connected.
func (c *Client) reconnect(ctx context.Context) error {
	c.setState(StateReconnecting)
	downSince := time.Now()

	backoff := c.opts.BaseBackoff
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce(ctx)
		if err != nil {
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
			continue
		}

		flushed, err := c.adopt(conn)
		if err != nil {
			conn.Close()
			continue
		}

		if c.opts.OnReconnected != nil {
			c.opts.OnReconnected(c.recoverySnapshot(attempt, downSince, flushed))
		}
		return nil
	}
	return fmt.Errorf("transport: gave up after %d attempts", c.opts.MaxAttempts)
}

// recoverySnapshot freezes the resync view for one OnReconnected report.
// The pending transcript was flushed by adopt, so it is consumed here.
func (c *Client) recoverySnapshot(attempt int, downSince time.Time, flushed int) ReconnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := ReconnectionState{
		LastQuestionIndex: c.lastQuestionIndex,
		LastAiMessage:     c.lastAiMessage,
		PendingTranscript: c.pendingTranscript,
		Attempts:          attempt,
		Downtime:          time.Since(downSince),
		Flushed:           flushed,
	}
	c.pendingTranscript = ""
	return snap
}

// adopt installs a fresh connection and drains the queue through it. The
// queue keeps arrival order; a flush failure keeps the unsent remainder.
func (c *Client) adopt(conn *websocket.Conn) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	flushed := 0
	for len(c.queue) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, c.queue[0]); err != nil {
			return flushed, err
		}
		c.queue = c.queue[1:]
		flushed++
	}

	c.state = StateConnected
	if c.opts.OnStateChange != nil {
		go c.opts.OnStateChange(StateConnected)
	}
	return flushed, nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.opts.OnStateChange != nil {
		go c.opts.OnStateChange(s)
	}
}
