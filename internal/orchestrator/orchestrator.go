package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/gateway"
	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/speech"
)

// FallbackAnswer is spoken and shown whenever the query gateway fails. The
// shopper is never left without a response to their turn.
const FallbackAnswer = "Sorry, I'm having trouble connecting right now. Please try again later."

// captureRetryDelay spaces out always-on restarts when the recognizer fails
// to start at all, so a dead speech service does not cause a hot loop.
const captureRetryDelay = 500 * time.Millisecond

// Publisher receives orchestrator events for the conversation surface.
type Publisher interface {
	Publish(eventType string, data any)
}

// Snapshot is the read-only contract exposed to the conversation surface.
type Snapshot struct {
	SessionID string             `json:"sessionId,omitempty"`
	User      *model.UserProfile `json:"user,omitempty"`
	VoiceMode model.VoiceMode    `json:"voiceMode"`
	Listening bool               `json:"listening"`
	Speaking  bool               `json:"speaking"`
	Loading   bool               `json:"loading"`
	Messages  []model.Message    `json:"messages"`
}

// Orchestrator is the single authority over whose turn it is to speak and
// the only writer of conversation history. Capture and playback are
// process-wide singletons; all access to them is serialized here.
type Orchestrator struct {
	recognizer speech.Recognizer
	synth      speech.Synthesizer
	gateway    gateway.QueryGateway
	events     Publisher

	mu         sync.Mutex
	session    *model.Session
	voiceMode  model.VoiceMode
	capture    model.CaptureStatus
	playback   model.PlaybackStatus
	loading    bool
	messages   []model.Message
	activation speech.Activation

	// Generation counters implement the stale-response guards: a completion
	// whose generation no longer matches is discarded without effect.
	sessionGen  uint64
	captureGen  uint64
	queryGen    uint64
	playbackGen uint64

	runCtx    context.Context
	runCancel context.CancelFunc

	lastActivity time.Time
}

func New(
	recognizer speech.Recognizer,
	synth speech.Synthesizer,
	gw gateway.QueryGateway,
	events Publisher,
) *Orchestrator {
	return &Orchestrator{
		recognizer: recognizer,
		synth:      synth,
		gateway:    gw,
		events:     events,
		voiceMode:  model.VoiceModePushToTalk,
		capture:    model.CaptureIdle,
		playback:   model.PlaybackIdle,
	}
}

// BeginSession takes ownership of the conversation after a successful
// handshake. It seeds the history with a spoken greeting turn.
func (o *Orchestrator) BeginSession(session *model.Session) {
	o.mu.Lock()
	if o.session != nil {
		o.endSessionLocked()
	}
	o.sessionGen++
	o.session = session
	o.voiceMode = model.VoiceModePushToTalk
	o.messages = nil
	o.lastActivity = time.Now()
	o.runCtx, o.runCancel = context.WithCancel(context.Background())

	name := "there"
	if session.User != nil && session.User.Name != "" {
		name = session.User.Name
	}
	greeting := model.NewAssistantMessage(model.Answer{
		Text: fmt.Sprintf("Hi %s! I'm Stacy. How can I help you find the perfect deal today?", name),
		Kind: model.AnswerKindText,
	})
	o.messages = append(o.messages, greeting)
	o.publishMessageLocked(greeting)
	o.publishStateLocked()
	o.mu.Unlock()

	log.Info().Str("sessionId", session.ID).Msg("conversation session started")
	go o.speak(greeting.Text)
}

// EndSession tears the conversation down: capture stops, playback is
// cancelled, history is discarded. In-flight query results are ignored.
func (o *Orchestrator) EndSession() {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return
	}
	id := o.session.ID
	o.endSessionLocked()
	o.mu.Unlock()

	o.synth.Cancel()
	log.Info().Str("sessionId", id).Msg("conversation session ended")
	o.publishState()
}

func (o *Orchestrator) endSessionLocked() {
	o.sessionGen++
	o.captureGen++
	o.queryGen++
	o.playbackGen++
	if o.activation != nil {
		o.activation.Stop()
		o.activation = nil
	}
	if o.runCancel != nil {
		o.runCancel()
		o.runCancel = nil
	}
	o.session = nil
	o.messages = nil
	o.loading = false
	o.capture = model.CaptureIdle
	o.playback = model.PlaybackIdle
	o.voiceMode = model.VoiceModePushToTalk
}

// SendText submits manually typed text. Behaves identically to a recognized
// utterance; empty input is rejected.
func (o *Orchestrator) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.ValidationError("Message text is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return apperrors.NoActiveSession()
	}
	o.lastActivity = time.Now()
	// Typing while the mic is open ends the listening attempt: the typed
	// text is the turn, whatever the recognizer might still produce.
	o.stopCaptureLocked()
	o.submitUtteranceLocked(text)
	return nil
}

// ToggleCapture handles the mic control. Under push-to-talk it starts or
// cancels a listening attempt; under other modes it is a no-op.
func (o *Orchestrator) ToggleCapture() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return apperrors.NoActiveSession()
	}
	o.lastActivity = time.Now()

	if o.voiceMode != model.VoiceModePushToTalk {
		return nil
	}
	if o.capture == model.CaptureListening {
		// User-cancelled: nothing is sent.
		o.stopCaptureLocked()
		o.publishStateLocked()
		return nil
	}
	o.startCaptureLocked()
	return nil
}

// SetVoiceMode adopts a new voice policy. Capture is stopped unconditionally
// before the new mode takes effect.
func (o *Orchestrator) SetVoiceMode(mode model.VoiceMode) error {
	if !mode.Valid() {
		return apperrors.InvalidInput("voiceMode", string(mode))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return apperrors.NoActiveSession()
	}
	o.lastActivity = time.Now()

	o.stopCaptureLocked()
	o.voiceMode = mode
	o.publishStateLocked()
	o.maybeAutoCaptureLocked()
	return nil
}

// Snapshot returns the current read contract: ordered history plus flags.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		VoiceMode: o.voiceMode,
		Listening: o.capture == model.CaptureListening,
		Speaking:  o.playback == model.PlaybackSpeaking,
		Loading:   o.loading,
		Messages:  make([]model.Message, len(o.messages)),
	}
	copy(snap.Messages, o.messages)
	if o.session != nil {
		snap.SessionID = o.session.ID
		snap.User = o.session.User
	}
	return snap
}

// Active reports whether a conversation session currently owns the device.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil
}

// LastActivity returns the time of the last shopper interaction.
func (o *Orchestrator) LastActivity() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActivity
}

// startCaptureLocked begins a listening attempt. Refused while already
// listening or while the assistant is speaking.
func (o *Orchestrator) startCaptureLocked() {
	if o.capture == model.CaptureListening || o.playback == model.PlaybackSpeaking {
		return
	}

	o.capture = model.CaptureListening
	o.captureGen++
	gen := o.captureGen
	runCtx := o.runCtx
	o.publishStateLocked()

	go o.runCapture(runCtx, gen)
}

func (o *Orchestrator) runCapture(ctx context.Context, gen uint64) {
	activation, err := o.recognizer.Start(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("capture start failed")
		o.finishCapture(gen, nil)
		return
	}

	o.mu.Lock()
	if gen != o.captureGen {
		// Superseded while dialing; discard the activation.
		o.mu.Unlock()
		activation.Stop()
		return
	}
	o.activation = activation
	o.mu.Unlock()

	<-activation.Done()
	o.finishCapture(gen, activation)
}

// finishCapture applies the terminal outcome of one activation: exactly one
// of utterance, error, or cancellation.
func (o *Orchestrator) finishCapture(gen uint64, activation speech.Activation) {
	o.mu.Lock()
	if gen != o.captureGen {
		o.mu.Unlock()
		return
	}
	o.capture = model.CaptureIdle
	o.activation = nil

	if activation == nil {
		// Start itself failed; treated like a capture error, retried on a
		// delay under always-on.
		o.publishStateLocked()
		mode := o.voiceMode
		o.mu.Unlock()
		if mode == model.VoiceModeAlwaysOn {
			time.AfterFunc(captureRetryDelay, func() {
				o.mu.Lock()
				o.maybeAutoCaptureLocked()
				o.mu.Unlock()
			})
		}
		return
	}

	if text, ok := activation.Take(); ok {
		o.lastActivity = time.Now()
		o.submitUtteranceLocked(text)
		o.publishStateLocked()
		o.mu.Unlock()
		return
	}

	if err := activation.Err(); err != nil {
		// Capture errors stop the attempt silently; no message is appended.
		log.Warn().Err(err).Msg("speech capture error")
	}
	o.publishStateLocked()
	o.maybeAutoCaptureLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) stopCaptureLocked() {
	if o.activation != nil {
		o.activation.Stop()
		o.activation = nil
	}
	if o.capture == model.CaptureListening {
		o.capture = model.CaptureIdle
	}
	// Invalidate any in-flight activation goroutine.
	o.captureGen++
}

// maybeAutoCaptureLocked restarts listening under always-on mode whenever
// neither capture nor playback is active.
func (o *Orchestrator) maybeAutoCaptureLocked() {
	if o.session == nil || o.voiceMode != model.VoiceModeAlwaysOn {
		return
	}
	if o.capture != model.CaptureIdle || o.playback != model.PlaybackIdle {
		return
	}
	o.startCaptureLocked()
}

// submitUtteranceLocked appends the user turn and dispatches the query. At
// most one query is in flight; input arriving mid-query is dropped so the
// history never holds an unanswered user turn.
func (o *Orchestrator) submitUtteranceLocked(text string) {
	if o.loading {
		log.Debug().Msg("query in flight, dropping utterance")
		return
	}

	userMsg := model.NewUserMessage(text)
	o.messages = append(o.messages, userMsg)
	o.publishMessageLocked(userMsg)

	o.loading = true
	o.queryGen++
	gen := o.queryGen
	sessionGen := o.sessionGen
	sessionID := o.session.ID
	runCtx := o.runCtx
	o.publishStateLocked()

	go o.runQuery(runCtx, sessionGen, gen, text, sessionID)
}

func (o *Orchestrator) runQuery(ctx context.Context, sessionGen, gen uint64, text, sessionID string) {
	answer, err := o.gateway.Ask(ctx, text, sessionID)

	o.mu.Lock()
	if sessionGen != o.sessionGen || gen != o.queryGen {
		// Screen abandoned or superseded; the result is simply ignored.
		o.mu.Unlock()
		return
	}
	o.loading = false

	var reply model.Message
	if err != nil {
		log.Error().Err(err).Msg("query failed, answering with fallback")
		reply = model.NewAssistantMessage(model.Answer{Text: FallbackAnswer, Kind: model.AnswerKindText})
	} else {
		reply = model.NewAssistantMessage(*answer)
	}
	o.messages = append(o.messages, reply)
	o.publishMessageLocked(reply)
	o.publishStateLocked()
	o.mu.Unlock()

	o.speak(reply.Text)
}

// speak plays text through the synthesizer. It first stops capture and
// cancels any queued platform speech so listening and speaking can never
// overlap.
func (o *Orchestrator) speak(text string) {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return
	}
	o.stopCaptureLocked()
	o.playback = model.PlaybackSpeaking
	o.playbackGen++
	gen := o.playbackGen
	sessionGen := o.sessionGen
	runCtx := o.runCtx
	o.mu.Unlock()

	o.synth.Cancel()
	o.publishState()

	voice, ok := speech.ChooseVoice(o.synth.Voices(), speech.DefaultFallbackVoice)
	var err error
	if ok {
		err = o.synth.Speak(runCtx, text, voice)
	}
	if err != nil {
		log.Warn().Err(err).Msg("speech playback error")
	}

	o.mu.Lock()
	if sessionGen != o.sessionGen || gen != o.playbackGen {
		// Superseded by a newer utterance; its speak owns the state now.
		o.mu.Unlock()
		return
	}
	o.playback = model.PlaybackIdle
	o.publishStateLocked()
	o.maybeAutoCaptureLocked()
	o.mu.Unlock()
}

// publishState publishes the current flags. The Publisher contract is
// non-blocking, so these are safe to call with the lock held.
func (o *Orchestrator) publishState() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishStateLocked()
}

func (o *Orchestrator) publishStateLocked() {
	if o.events == nil {
		return
	}
	o.events.Publish("state_changed", stateEvent{
		VoiceMode: o.voiceMode,
		Listening: o.capture == model.CaptureListening,
		Speaking:  o.playback == model.PlaybackSpeaking,
		Loading:   o.loading,
		Active:    o.session != nil,
	})
}

func (o *Orchestrator) publishMessageLocked(msg model.Message) {
	if o.events == nil {
		return
	}
	o.events.Publish("message_appended", msg)
}

type stateEvent struct {
	VoiceMode model.VoiceMode `json:"voiceMode"`
	Listening bool            `json:"listening"`
	Speaking  bool            `json:"speaking"`
	Loading   bool            `json:"loading"`
	Active    bool            `json:"active"`
}
