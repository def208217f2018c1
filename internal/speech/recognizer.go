package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RecognizerConfig controls the websocket speech service connection.
type RecognizerConfig struct {
	// URL of the platform recognition service, e.g. ws://127.0.0.1:7700/listen.
	URL      string
	Language string
}

// WSRecognizer wraps the kiosk's speech-to-text daemon. Each activation
// opens one websocket and reads events until the daemon reports a final
// utterance, an error, or the end of the listening window.
type WSRecognizer struct {
	cfg RecognizerConfig
}

func NewWSRecognizer(cfg RecognizerConfig) (*WSRecognizer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("recognizer URL is not configured")
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &WSRecognizer{cfg: cfg}, nil
}

type listenRequest struct {
	Action   string `json:"action"`
	Language string `json:"language"`
}

type listenEvent struct {
	Type  string `json:"type"` // partial | utterance | error | end
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (r *WSRecognizer) Start(ctx context.Context) (Activation, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speech service: %w", err)
	}

	if err := conn.WriteJSON(listenRequest{Action: "listen", Language: r.cfg.Language}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start listening: %w", err)
	}

	act := &wsActivation{
		conn: conn,
		done: make(chan struct{}),
	}
	go act.readLoop()

	// The websocket is closed from Stop or when the loop ends; tie it to the
	// caller's context as well so teardown cancels capture.
	go func() {
		select {
		case <-ctx.Done():
			act.Stop()
		case <-act.done:
		}
	}()

	return act, nil
}

type wsActivation struct {
	conn *websocket.Conn
	slot TranscriptSlot

	mu      sync.Mutex
	stopped bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func (a *wsActivation) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop")
	_ = a.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = a.conn.Close()
}

func (a *wsActivation) Done() <-chan struct{} {
	return a.done
}

func (a *wsActivation) Take() (string, bool) {
	return a.slot.Take()
}

func (a *wsActivation) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *wsActivation) readLoop() {
	defer a.finish()

	for {
		var event listenEvent
		if err := a.conn.ReadJSON(&event); err != nil {
			a.mu.Lock()
			stopped := a.stopped
			if !stopped {
				a.err = fmt.Errorf("speech service stream failed: %w", err)
			}
			a.mu.Unlock()
			return
		}

		switch event.Type {
		case "partial":
			// Interim results are ignored; only the final utterance counts.
		case "utterance":
			if text := strings.TrimSpace(event.Text); text != "" {
				a.slot.Put(text)
			}
			return
		case "error":
			a.mu.Lock()
			a.err = fmt.Errorf("speech service error: %s", event.Error)
			a.mu.Unlock()
			return
		case "end":
			return
		default:
			log.Debug().Str("type", event.Type).Msg("ignoring unknown speech event")
		}
	}
}

func (a *wsActivation) finish() {
	_ = a.conn.Close()
	a.doneOnce.Do(func() { close(a.done) })
}
