package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
	"github.com/stacyai/kiosk-agent-go/internal/store"
)

// SessionHandler tears the shopper session down. The "End Trip" button and
// the idle watchdog both land here.
type SessionHandler struct {
	orch      *orchestrator.Orchestrator
	devices   store.DeviceSessionRepository
	handshake *HandshakeHandler
}

func NewSessionHandler(orch *orchestrator.Orchestrator, devices store.DeviceSessionRepository, handshake *HandshakeHandler) *SessionHandler {
	return &SessionHandler{
		orch:      orch,
		devices:   devices,
		handshake: handshake,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/end", h.EndSession)

	return r
}

// POST /v1/session/end
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	snapshot := h.orch.Snapshot()
	if snapshot.SessionID == "" {
		writeError(w, apperrors.NoActiveSession())
		return
	}

	h.orch.EndSession()
	h.handshake.Reset()

	current, err := h.devices.Current(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to look up device session")
	} else if current != nil {
		if err := h.devices.End(r.Context(), current.ID); err != nil {
			log.Error().Err(err).Str("sessionId", current.ID).Msg("failed to close device session")
		}
	}

	log.Info().Str("sessionId", snapshot.SessionID).Msg("session ended")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
