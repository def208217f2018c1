package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
	"github.com/stacyai/kiosk-agent-go/internal/speech"
)

type noopRecognizer struct{}

func (noopRecognizer) Start(ctx context.Context) (speech.Activation, error) {
	return nil, errors.New("unused")
}

type noopSynth struct{}

func (noopSynth) Voices() []speech.Voice { return nil }
func (noopSynth) Speak(ctx context.Context, text string, v speech.Voice) error {
	return nil
}
func (noopSynth) Cancel() {}

type noopGateway struct{}

func (noopGateway) Ask(ctx context.Context, query, sessionID string) (*model.Answer, error) {
	return &model.Answer{Text: "ok"}, nil
}

func TestIdleWatchdogEndsStaleSession(t *testing.T) {
	orch := orchestrator.New(noopRecognizer{}, noopSynth{}, noopGateway{}, nil)
	orch.BeginSession(&model.Session{ID: "s1", StartedAt: time.Now()})

	var ended atomic.Int32
	watchdog := NewIdleWatchdog(orch, 30*time.Millisecond, 10*time.Millisecond, func() {
		orch.EndSession()
		ended.Add(1)
	})
	watchdog.Start()
	defer watchdog.Stop()

	require.Eventually(t, func() bool {
		return ended.Load() == 1
	}, time.Second, 10*time.Millisecond)
	assert.False(t, orch.Active())
}

func TestIdleWatchdogLeavesActiveSessionAlone(t *testing.T) {
	orch := orchestrator.New(noopRecognizer{}, noopSynth{}, noopGateway{}, nil)
	orch.BeginSession(&model.Session{ID: "s1", StartedAt: time.Now()})

	var ended atomic.Int32
	watchdog := NewIdleWatchdog(orch, time.Hour, 5*time.Millisecond, func() { ended.Add(1) })
	watchdog.Start()
	defer watchdog.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, ended.Load())
	assert.True(t, orch.Active())
}
