package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
)

type ConversationHandler struct {
	orch *orchestrator.Orchestrator
}

func NewConversationHandler(orch *orchestrator.Orchestrator) *ConversationHandler {
	return &ConversationHandler{orch: orch}
}

func (h *ConversationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetConversation)
	r.Post("/messages", h.PostMessage)
	r.Post("/mic", h.ToggleMic)
	r.Put("/voice-mode", h.SetVoiceMode)

	return r
}

// GET /v1/conversation
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

type postMessageRequest struct {
	Text string `json:"text"`
}

// POST /v1/conversation/messages
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.orch.SendText(req.Text); err != nil {
		log.Warn().Err(err).Msg("text submit rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, h.orch.Snapshot())
}

// POST /v1/conversation/mic
func (h *ConversationHandler) ToggleMic(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.ToggleCapture(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

type voiceModeRequest struct {
	Mode model.VoiceMode `json:"mode"`
}

// PUT /v1/conversation/voice-mode
func (h *ConversationHandler) SetVoiceMode(w http.ResponseWriter, r *http.Request) {
	var req voiceModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.orch.SetVoiceMode(req.Mode); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}
