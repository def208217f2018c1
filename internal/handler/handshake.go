package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/stacyai/kiosk-agent-go/internal/handshake"
)

// MachineFactory builds a fresh handshake machine. Machines are single-use,
// so every entry into the welcome screen gets a new one.
type MachineFactory func() *handshake.Machine

type HandshakeHandler struct {
	factory MachineFactory
	baseCtx context.Context

	mu      sync.Mutex
	machine *handshake.Machine
}

func NewHandshakeHandler(ctx context.Context, factory MachineFactory) *HandshakeHandler {
	return &HandshakeHandler{
		factory: factory,
		baseCtx: ctx,
	}
}

func (h *HandshakeHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/start", h.StartHandshake)
	r.Get("/", h.GetHandshake)

	return r
}

// POST /v1/handshake/start
//
// Discards any in-flight handshake and begins a new one. The welcome screen
// calls this on entry and on its retry button.
func (h *HandshakeHandler) StartHandshake(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.machine != nil {
		h.machine.Stop()
	}
	machine := h.factory()
	h.machine = machine
	h.mu.Unlock()

	log.Info().Msg("starting pairing handshake")
	machine.Start(h.baseCtx)

	writeJSON(w, http.StatusOK, machine.Snapshot())
}

// GET /v1/handshake
func (h *HandshakeHandler) GetHandshake(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	machine := h.machine
	h.mu.Unlock()

	if machine == nil {
		writeJSON(w, http.StatusOK, handshake.Snapshot{State: handshake.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, machine.Snapshot())
}

// Reset stops the current handshake, if any. Called when the session ends so
// the next shopper starts from a clean welcome screen.
func (h *HandshakeHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.machine != nil {
		h.machine.Stop()
		h.machine = nil
	}
}
