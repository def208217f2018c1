package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/speech"
)

type fakeActivation struct {
	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
	text     string
	hasText  bool
	err      error
	stopped  bool
}

func newFakeActivation() *fakeActivation {
	return &fakeActivation{done: make(chan struct{})}
}

func (a *fakeActivation) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.doneOnce.Do(func() { close(a.done) })
}

func (a *fakeActivation) Done() <-chan struct{} { return a.done }

func (a *fakeActivation) Take() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasText {
		return "", false
	}
	a.hasText = false
	return a.text, true
}

func (a *fakeActivation) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *fakeActivation) emitUtterance(text string) {
	a.mu.Lock()
	a.text = text
	a.hasText = true
	a.mu.Unlock()
	a.doneOnce.Do(func() { close(a.done) })
}

func (a *fakeActivation) failWith(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.doneOnce.Do(func() { close(a.done) })
}

func (a *fakeActivation) wasStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

type fakeRecognizer struct {
	mu       sync.Mutex
	queue    []*fakeActivation
	startErr error
	started  int
}

func (r *fakeRecognizer) Start(ctx context.Context) (speech.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	if r.startErr != nil {
		return nil, r.startErr
	}
	if len(r.queue) == 0 {
		return nil, errors.New("no scripted activation")
	}
	activation := r.queue[0]
	r.queue = r.queue[1:]
	return activation, nil
}

func (r *fakeRecognizer) enqueue(a *fakeActivation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, a)
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

type fakeSynth struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
	block   chan struct{}
}

func (s *fakeSynth) Voices() []speech.Voice {
	return []speech.Voice{{Name: "Zira", Lang: "en-US", Gender: "F"}}
}

func (s *fakeSynth) Speak(ctx context.Context, text string, voice speech.Voice) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSynth) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// holdingSynth keeps every Speak call physically playing until Cancel kills
// it, like a real engine process.
type holdingSynth struct {
	mu     sync.Mutex
	spoken []string
	active []chan struct{}
}

func (s *holdingSynth) Voices() []speech.Voice {
	return []speech.Voice{{Name: "Zira", Lang: "en-US", Gender: "F"}}
}

func (s *holdingSynth) Speak(ctx context.Context, text string, voice speech.Voice) error {
	killed := make(chan struct{})
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.active = append(s.active, killed)
	s.mu.Unlock()

	select {
	case <-killed:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *holdingSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, killed := range s.active {
		close(killed)
	}
	s.active = nil
}

func (s *holdingSynth) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *holdingSynth) spokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spoken)
}

type fakeGateway struct {
	mu     sync.Mutex
	answer *model.Answer
	err    error
	calls  []string
	block  chan struct{}
}

func (g *fakeGateway) Ask(ctx context.Context, query, sessionID string) (*model.Answer, error) {
	g.mu.Lock()
	g.calls = append(g.calls, query)
	answer, err, block := g.answer, g.err, g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return &model.Answer{Text: "Here you go.", Kind: model.AnswerKindText}, nil
	}
	return answer, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakePublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *fakePublisher) Publish(eventType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func newTestOrchestrator() (*Orchestrator, *fakeRecognizer, *fakeSynth, *fakeGateway, *fakePublisher) {
	recognizer := &fakeRecognizer{}
	synth := &fakeSynth{}
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	return New(recognizer, synth, gw, pub), recognizer, synth, gw, pub
}

func testSession() *model.Session {
	return &model.Session{
		ID:        "device-session-1",
		User:      &model.UserProfile{ID: "user123", Name: "Alex"},
		StartedAt: time.Now(),
	}
}

func messageCount(o *Orchestrator) int {
	return len(o.Snapshot().Messages)
}

// awaitGreeting waits until the session greeting has been spoken, so tests
// that exercise capture afterwards do not race its playback.
func awaitGreeting(t *testing.T, orch *Orchestrator, synth *fakeSynth) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(synth.spokenTexts()) >= 1 && !orch.Snapshot().Speaking
	}, time.Second, 10*time.Millisecond)
}

func TestBeginSessionSeedsGreeting(t *testing.T) {
	orch, _, synth, _, pub := newTestOrchestrator()

	orch.BeginSession(testSession())

	snap := orch.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, model.SenderAssistant, snap.Messages[0].Sender)
	assert.Equal(t, "Hi Alex! I'm Stacy. How can I help you find the perfect deal today?", snap.Messages[0].Text)
	assert.Equal(t, model.VoiceModePushToTalk, snap.VoiceMode)
	assert.Equal(t, "device-session-1", snap.SessionID)

	require.Eventually(t, func() bool {
		return len(synth.spokenTexts()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, pub.count("message_appended"), 1)
}

func TestBeginSessionWithoutNameUsesGenericGreeting(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator()

	orch.BeginSession(&model.Session{ID: "s1", StartedAt: time.Now()})

	snap := orch.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0].Text, "Hi there!")
}

func TestSendTextProducesExactlyOneReply(t *testing.T) {
	orch, _, synth, gw, _ := newTestOrchestrator()
	gw.answer = &model.Answer{
		Text: "I found these headphones for you.",
		Kind: model.AnswerKindOfferList,
		Offers: []model.Offer{
			{Name: "Noise-Cancelling Headphones", OriginalPrice: 149.99, AisleLocation: "Aisle 16"},
		},
	}

	orch.BeginSession(testSession())
	require.NoError(t, orch.SendText("find me cheap headphones"))

	require.Eventually(t, func() bool {
		return messageCount(orch) == 3 && !orch.Snapshot().Loading
	}, time.Second, 10*time.Millisecond)

	snap := orch.Snapshot()
	assert.Equal(t, model.SenderUser, snap.Messages[1].Sender)
	assert.Equal(t, "find me cheap headphones", snap.Messages[1].Text)
	assert.Equal(t, model.SenderAssistant, snap.Messages[2].Sender)
	assert.Equal(t, model.AnswerKindOfferList, snap.Messages[2].Kind)
	require.Len(t, snap.Messages[2].Offers, 1)
	assert.Equal(t, "Noise-Cancelling Headphones", snap.Messages[2].Offers[0].Name)
	assert.Equal(t, 1, gw.callCount())

	require.Eventually(t, func() bool {
		return len(synth.spokenTexts()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, synth.spokenTexts(), "I found these headphones for you.")
}

func TestSendTextValidation(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator()

	t.Run("empty text rejected", func(t *testing.T) {
		err := orch.SendText("   ")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("no session rejected", func(t *testing.T) {
		err := orch.SendText("hello")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoActiveSession))
	})
}

func TestInputDroppedWhileQueryInFlight(t *testing.T) {
	orch, _, _, gw, _ := newTestOrchestrator()
	release := make(chan struct{})
	gw.block = release

	orch.BeginSession(testSession())
	require.NoError(t, orch.SendText("first question"))

	require.Eventually(t, func() bool {
		return orch.Snapshot().Loading
	}, time.Second, 10*time.Millisecond)

	// Arrives mid-query: silently dropped, never appended.
	require.NoError(t, orch.SendText("second question"))
	assert.Equal(t, 2, messageCount(orch))
	assert.Equal(t, 1, gw.callCount())

	close(release)
	require.Eventually(t, func() bool {
		return messageCount(orch) == 3 && !orch.Snapshot().Loading
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, gw.callCount())
}

func TestSendTextEndsActiveListeningAttempt(t *testing.T) {
	orch, recognizer, synth, _, _ := newTestOrchestrator()
	activation := newFakeActivation()
	recognizer.enqueue(activation)

	orch.BeginSession(testSession())
	awaitGreeting(t, orch, synth)
	require.NoError(t, orch.ToggleCapture())
	require.Eventually(t, func() bool {
		return orch.Snapshot().Listening
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, orch.SendText("typed instead"))

	assert.False(t, orch.Snapshot().Listening)
	require.Eventually(t, func() bool {
		return activation.wasStopped()
	}, time.Second, 10*time.Millisecond)

	// The typed turn is dispatched and answered as usual.
	require.Eventually(t, func() bool {
		return messageCount(orch) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "typed instead", orch.Snapshot().Messages[1].Text)
}

func TestGatewayFailureAnswersWithFallback(t *testing.T) {
	orch, _, _, gw, _ := newTestOrchestrator()
	gw.err = errors.New("backend unreachable")

	orch.BeginSession(testSession())
	require.NoError(t, orch.SendText("find me a deal"))

	require.Eventually(t, func() bool {
		return messageCount(orch) == 3
	}, time.Second, 10*time.Millisecond)

	snap := orch.Snapshot()
	assert.Equal(t, FallbackAnswer, snap.Messages[2].Text)
	assert.Equal(t, model.AnswerKindText, snap.Messages[2].Kind)
	assert.False(t, snap.Loading)
}

func TestPushToTalkUtteranceFlow(t *testing.T) {
	orch, recognizer, synth, gw, _ := newTestOrchestrator()
	activation := newFakeActivation()
	recognizer.enqueue(activation)

	orch.BeginSession(testSession())
	awaitGreeting(t, orch, synth)
	require.NoError(t, orch.ToggleCapture())

	require.Eventually(t, func() bool {
		return orch.Snapshot().Listening
	}, time.Second, 10*time.Millisecond)

	activation.emitUtterance("where are the snacks")

	require.Eventually(t, func() bool {
		return messageCount(orch) == 3
	}, time.Second, 10*time.Millisecond)

	snap := orch.Snapshot()
	assert.False(t, snap.Listening)
	assert.Equal(t, "where are the snacks", snap.Messages[1].Text)
	assert.Equal(t, 1, gw.callCount())
}

func TestToggleCancelsActiveCapture(t *testing.T) {
	orch, recognizer, synth, gw, _ := newTestOrchestrator()
	activation := newFakeActivation()
	recognizer.enqueue(activation)

	orch.BeginSession(testSession())
	awaitGreeting(t, orch, synth)
	require.NoError(t, orch.ToggleCapture())
	require.Eventually(t, func() bool {
		return orch.Snapshot().Listening
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, orch.ToggleCapture())

	assert.False(t, orch.Snapshot().Listening)
	require.Eventually(t, func() bool {
		return activation.wasStopped()
	}, time.Second, 10*time.Millisecond)

	// A cancelled attempt contributes nothing to the conversation.
	assert.Equal(t, 1, messageCount(orch))
	assert.Equal(t, 0, gw.callCount())
}

func TestCaptureRefusedWhileSpeaking(t *testing.T) {
	orch, recognizer, synth, _, _ := newTestOrchestrator()
	release := make(chan struct{})
	synth.block = release

	orch.BeginSession(testSession())
	require.Eventually(t, func() bool {
		return orch.Snapshot().Speaking
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, orch.ToggleCapture())
	assert.False(t, orch.Snapshot().Listening)
	assert.Equal(t, 0, recognizer.startCount())

	close(release)
	require.Eventually(t, func() bool {
		return !orch.Snapshot().Speaking
	}, time.Second, 10*time.Millisecond)
}

func TestSupersededPlaybackLeavesNewSpeakUndisturbed(t *testing.T) {
	synth := &holdingSynth{}
	orch := New(&fakeRecognizer{}, synth, &fakeGateway{}, nil)

	orch.BeginSession(testSession())
	require.Eventually(t, func() bool {
		return orch.Snapshot().Speaking && synth.inFlight() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, orch.SetVoiceMode(model.VoiceModeAlwaysOn))
	require.NoError(t, orch.SendText("find me a deal"))

	// The reply's speak cancels the greeting mid-playback and takes over.
	require.Eventually(t, func() bool {
		return synth.spokenCount() == 2
	}, time.Second, 10*time.Millisecond)

	// The greeting's epilogue must not clear the speaking flag or hand the
	// microphone to always-on capture while the reply is still playing.
	for i := 0; i < 10; i++ {
		snap := orch.Snapshot()
		assert.True(t, snap.Speaking)
		assert.False(t, snap.Listening)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, synth.inFlight())

	orch.EndSession()
}

func TestSetVoiceMode(t *testing.T) {
	orch, recognizer, synth, _, _ := newTestOrchestrator()

	t.Run("invalid mode rejected", func(t *testing.T) {
		err := orch.SetVoiceMode(model.VoiceMode("shouting"))
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("no session rejected", func(t *testing.T) {
		err := orch.SetVoiceMode(model.VoiceModeOff)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoActiveSession))
	})

	t.Run("mode change stops capture", func(t *testing.T) {
		activation := newFakeActivation()
		recognizer.enqueue(activation)

		orch.BeginSession(testSession())
		awaitGreeting(t, orch, synth)
		require.NoError(t, orch.ToggleCapture())
		require.Eventually(t, func() bool {
			return orch.Snapshot().Listening
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, orch.SetVoiceMode(model.VoiceModeOff))

		snap := orch.Snapshot()
		assert.Equal(t, model.VoiceModeOff, snap.VoiceMode)
		assert.False(t, snap.Listening)
		require.Eventually(t, func() bool {
			return activation.wasStopped()
		}, time.Second, 10*time.Millisecond)
	})
}

func TestAlwaysOnRestartsAfterCaptureError(t *testing.T) {
	orch, recognizer, synth, _, _ := newTestOrchestrator()
	first := newFakeActivation()
	second := newFakeActivation()
	recognizer.enqueue(first)
	recognizer.enqueue(second)

	orch.BeginSession(testSession())
	awaitGreeting(t, orch, synth)
	require.NoError(t, orch.SetVoiceMode(model.VoiceModeAlwaysOn))

	require.Eventually(t, func() bool {
		return recognizer.startCount() >= 1
	}, time.Second, 10*time.Millisecond)

	first.failWith(errors.New("stream interrupted"))

	// The error ends the attempt silently and always-on starts a new one.
	require.Eventually(t, func() bool {
		return recognizer.startCount() >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, messageCount(orch))
}

func TestEndSessionDiscardsInFlightQuery(t *testing.T) {
	orch, _, synth, gw, _ := newTestOrchestrator()
	release := make(chan struct{})
	gw.block = release

	orch.BeginSession(testSession())
	require.NoError(t, orch.SendText("anything good on sale"))
	require.Eventually(t, func() bool {
		return orch.Snapshot().Loading
	}, time.Second, 10*time.Millisecond)

	orch.EndSession()
	close(release)

	assert.False(t, orch.Active())
	assert.Equal(t, 0, messageCount(orch))
	require.Eventually(t, func() bool {
		synth.mu.Lock()
		defer synth.mu.Unlock()
		return synth.cancels >= 1
	}, time.Second, 10*time.Millisecond)

	// The discarded result must never resurface.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, messageCount(orch))
}

func TestBeginSessionReplacesExistingSession(t *testing.T) {
	orch, _, _, _, _ := newTestOrchestrator()

	orch.BeginSession(testSession())
	require.NoError(t, orch.SendText("first trip question"))

	orch.BeginSession(&model.Session{
		ID:        "device-session-2",
		User:      &model.UserProfile{ID: "user456", Name: "Sam"},
		StartedAt: time.Now(),
	})

	snap := orch.Snapshot()
	assert.Equal(t, "device-session-2", snap.SessionID)
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0].Text, "Hi Sam!")
}
