package handshake

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/gateway"
	"github.com/stacyai/kiosk-agent-go/internal/model"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateWaiting State = "waiting"
	StateSuccess State = "success"
	StateError   State = "error"
)

const causeSessionExpired = "Session expired or invalid."

// HandoffFunc receives the authenticated identity and the backend session id
// once the pairing is confirmed. Called exactly once per successful handshake.
type HandoffFunc func(user *model.UserProfile, backendSessionID string)

// Snapshot is the read-only view the welcome screen renders.
type Snapshot struct {
	State      State              `json:"state"`
	QRCodeData string             `json:"qrCodeData,omitempty"`
	Cause      string             `json:"cause,omitempty"`
	User       *model.UserProfile `json:"user,omitempty"`
}

// Machine runs one device-authentication handshake: request a pairing code,
// poll for out-of-band confirmation, resolve to an identity or a failure.
// A machine is single-use; re-entering the screen creates a fresh one.
type Machine struct {
	provisioning gateway.Provisioning
	interval     time.Duration
	grace        time.Duration
	handoff      HandoffFunc
	onChange     func(Snapshot)

	mu       sync.Mutex
	state    State
	stopped  bool
	pairing  *model.PairingRequest
	pollSeq  uint64 // sequence of the most recently issued poll
	lastSeen uint64 // sequence of the newest applied response

	cancel      context.CancelFunc
	handoffOnce sync.Once
	graceTimer  *time.Timer
}

type Option func(*Machine)

// WithChangeListener registers a callback invoked after every state change,
// outside the machine's lock.
func WithChangeListener(fn func(Snapshot)) Option {
	return func(m *Machine) { m.onChange = fn }
}

func NewMachine(
	provisioning gateway.Provisioning,
	interval, grace time.Duration,
	handoff HandoffFunc,
	opts ...Option,
) *Machine {
	m := &Machine{
		provisioning: provisioning,
		interval:     interval,
		grace:        grace,
		handoff:      handoff,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start requests a pairing code and begins polling for confirmation. There
// is no automatic retry: a failed code request leaves the machine in the
// error state until the screen is re-entered with a new machine.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateLoading
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	m.notify()

	grant, err := m.provisioning.GeneratePairing(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("handshake: pairing code request failed")
		m.fail("Could not reach the pairing service. Please try again.")
		return
	}

	m.mu.Lock()
	if m.stopped || m.state != StateLoading {
		// Torn down while the request was in flight.
		m.mu.Unlock()
		return
	}
	m.state = StateWaiting
	m.pairing = &model.PairingRequest{
		QRCodeData:       grant.QRCodeData,
		BackendSessionID: grant.SessionID,
		Status:           model.PairingStatusPending,
		CreatedAt:        time.Now(),
	}
	m.mu.Unlock()
	m.notify()

	log.Info().Str("sessionId", grant.SessionID).Msg("handshake: waiting for confirmation")
	go m.pollLoop(runCtx, grant.SessionID)
}

// Stop cancels polling and any pending handoff. A poll whose response is
// already in hand when Stop runs can no longer transition the machine.
// Safe to call repeatedly.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.stopped = true
	cancel := m.cancel
	timer := m.graceTimer
	m.graceTimer = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.state}
	if m.pairing != nil {
		snap.QRCodeData = m.pairing.QRCodeData
		snap.Cause = m.pairing.Cause
		snap.User = m.pairing.User
	}
	return snap
}

// pollLoop ticks on wall-clock intervals; a slow poll may overlap the next
// tick, so every response carries the sequence number of the poll that
// issued it and is dropped if a later response has already been applied.
func (m *Machine) pollLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.pollSeq++
			seq := m.pollSeq
			m.mu.Unlock()

			go m.poll(ctx, sessionID, seq)
		}
	}
}

func (m *Machine) poll(ctx context.Context, sessionID string, seq uint64) {
	status, err := m.provisioning.SessionStatus(ctx, sessionID)

	m.mu.Lock()
	if m.state != StateWaiting || seq <= m.lastSeen {
		// Stale: the machine moved on, or a later poll already reported.
		m.mu.Unlock()
		return
	}
	m.lastSeen = seq
	m.mu.Unlock()

	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeSessionExpired) {
			log.Warn().Str("sessionId", sessionID).Msg("handshake: session expired")
			m.terminate(model.PairingStatusExpired, causeSessionExpired)
			return
		}
		// Transient poll failures are skipped; the next tick tries again.
		log.Warn().Err(err).Uint64("seq", seq).Msg("handshake: poll failed")
		return
	}

	if !status.Authenticated {
		return
	}

	user, err := status.Identity()
	if err != nil {
		log.Error().Err(err).Msg("handshake: malformed identity payload")
		m.terminate(model.PairingStatusFailed, "Authentication response was invalid.")
		return
	}

	m.succeed(user, sessionID)
}

func (m *Machine) succeed(user *model.UserProfile, sessionID string) {
	m.mu.Lock()
	if m.stopped || m.state != StateWaiting {
		m.mu.Unlock()
		return
	}
	m.state = StateSuccess
	m.pairing.Status = model.PairingStatusAuthenticated
	m.pairing.User = user
	cancel := m.cancel

	// Let the success state render before handing the session over.
	m.graceTimer = time.AfterFunc(m.grace, func() {
		m.handoffOnce.Do(func() {
			m.handoff(user, sessionID)
		})
	})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.notify()

	log.Info().Str("sessionId", sessionID).Msg("handshake: authenticated")
}

// terminate moves the machine into a terminal non-success state.
func (m *Machine) terminate(status model.PairingStatus, cause string) {
	m.mu.Lock()
	if m.stopped || m.state == StateSuccess || m.state == StateError {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	if m.pairing != nil {
		m.pairing.Status = status
		m.pairing.Cause = cause
	}
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.notify()
}

func (m *Machine) fail(cause string) {
	m.mu.Lock()
	if m.stopped || m.state == StateSuccess || m.state == StateError {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.pairing = &model.PairingRequest{
		Status:    model.PairingStatusFailed,
		Cause:     cause,
		CreatedAt: time.Now(),
	}
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.notify()
}

func (m *Machine) notify() {
	if m.onChange != nil {
		m.onChange(m.Snapshot())
	}
}
