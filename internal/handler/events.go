package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stacyai/kiosk-agent-go/internal/broker"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
)

type EventsHandler struct {
	broker *broker.Broker
	orch   *orchestrator.Orchestrator
}

func NewEventsHandler(b *broker.Broker, orch *orchestrator.Orchestrator) *EventsHandler {
	return &EventsHandler{
		broker: b,
		orch:   orch,
	}
}

// GET /v1/events
//
// Server-sent event stream the kiosk surface subscribes to. The first event
// is a full conversation snapshot so a reconnecting surface can re-render
// without a separate fetch.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe()
	defer h.broker.Unsubscribe(client)

	log.Info().Msg("sse connection established")

	if err := h.sendEvent(w, flusher, "snapshot", h.orch.Snapshot()); err != nil {
		log.Error().Err(err).Msg("failed to send initial snapshot")
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(broker.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, broker.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event broker.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
