package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Events chan Event
	Done   chan struct{}
}

// Broker fans orchestrator and handshake events out to surface clients.
// The kiosk runs a single agent process, so delivery is purely in-process;
// sends never block, a slow client just drops events.
type Broker struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	closed  bool
}

func NewBroker() *Broker {
	return &Broker{
		clients: make(map[*Client]bool),
	}
}

func (b *Broker) Subscribe() *Client {
	client := &Client{
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[client] = true
	count := len(b.clients)
	b.mu.Unlock()

	log.Info().Int("clientCount", count).Msg("surface client subscribed")
	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Done)
		log.Info().Int("clientCount", len(b.clients)).Msg("surface client unsubscribed")
	}
}

// Publish serializes the payload and broadcasts it. Marshal failures are
// logged and dropped; surface events are best-effort.
func (b *Broker) Publish(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to marshal event")
		return
	}

	event := Event{Type: eventType, Data: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().Str("type", eventType).Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[*Client]bool)
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
