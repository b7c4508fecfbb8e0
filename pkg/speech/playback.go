package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sync"
	"time"
)

// AudioSink schedules decoded audio for gapless playback. Implementations
// wrap the concrete audio runtime; Enqueue must play chunks back-to-back
// in arrival order and StopAll must silence everything already scheduled.
type AudioSink interface {
	Enqueue(pcm []byte) error
	StopAll()
}

// PlaybackCallbacks observe the speaking lifecycle for UI feedback.
type PlaybackCallbacks struct {
	OnSpeakingStart func()
	OnSpeakingEnd   func()
}

// Chunk sizing: a small first chunk minimizes time to first audible
// output, larger follow-up chunks keep steady-state playback smooth.
const (
	firstChunkSize = 4 * 1024
	nextChunkSize  = 16 * 1024
)

// Player fetches synthesized speech as a byte stream and schedules it on
// an AudioSink. One utterance plays at a time; Stop cancels mid-sentence
// without leaking scheduled audio.
type Player struct {
	url    string
	voice  string
	model  string
	client *http.Client
	sink   AudioSink
	cb     PlaybackCallbacks

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	level   float64
	lastUpd time.Time
}

func NewPlayer(url, voice, model string, sink AudioSink, cb PlaybackCallbacks) *Player {
	return &Player{
		url:    url,
		voice:  voice,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
		sink:   sink,
		cb:     cb,
	}
}

// Speak starts fetching and scheduling one utterance. It returns a done
// channel that closes when the whole stream has been scheduled or the
// utterance is stopped, whichever comes first.
func (p *Player) Speak(ctx context.Context, text string) (<-chan struct{}, error) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	body, _ := json.Marshal(map[string]string{
		"text":  text,
		"voice": p.voice,
		"model": p.model,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		close(done)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		close(done)
		return nil, newError(ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		close(done)
		return nil, mapHTTPStatus(resp.StatusCode)
	}

	go p.stream(ctx, resp.Body, done)
	return done, nil
}

func (p *Player) stream(ctx context.Context, body io.ReadCloser, done chan struct{}) {
	defer body.Close()
	defer p.finish(done)

	if p.cb.OnSpeakingStart != nil {
		p.cb.OnSpeakingStart()
	}

	chunkSize := firstChunkSize
	buf := make([]byte, nextChunkSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := io.ReadFull(body, buf[:chunkSize])
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.updateLevel(chunk)
			if sinkErr := p.sink.Enqueue(chunk); sinkErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
		chunkSize = nextChunkSize
	}
}

func (p *Player) finish(done chan struct{}) {
	p.mu.Lock()
	if p.done == done {
		p.done = nil
		p.cancel = nil
	}
	p.mu.Unlock()

	close(done)
	if p.cb.OnSpeakingEnd != nil {
		p.cb.OnSpeakingEnd()
	}
}

// Stop aborts the in-flight fetch, drops everything scheduled on the
// sink, and resolves the pending done channel. Safe to call at any time,
// including mid-stream.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.done = nil
	p.level = 0
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.sink.StopAll()
}

// Level reports a smoothed output level in [0,1] for UI animation. Fast
// attack, slow decay: peaks register immediately and fall off gently.
func (p *Player) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Decay since the last chunk landed.
	if !p.lastUpd.IsZero() {
		elapsed := time.Since(p.lastUpd).Seconds()
		return p.level * math.Pow(0.1, elapsed)
	}
	return p.level
}

func (p *Player) updateLevel(pcm []byte) {
	var sum float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(uint16(pcm[i])|uint16(pcm[i+1])<<8)) / 32768.0
		sum += s * s
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sum / float64(count))

	p.mu.Lock()
	defer p.mu.Unlock()
	if rms > p.level {
		p.level = rms
	} else {
		p.level = p.level*0.8 + rms*0.2
	}
	p.lastUpd = time.Now()
}
