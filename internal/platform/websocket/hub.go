// Package websocket pushes clinic events (payments, charges, schedule
// changes) to connected dashboards. Clients subscribe to topics within their
// own tenant; events never cross tenants.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventPaymentRecorded    = "payment.recorded"
	EventHistoryCreated     = "history.created"
	EventAppointmentChanged = "appointment.changed"
	EventXRayUploaded       = "xray.uploaded"
)

const (
	// TopicDashboard carries every event that moves clinic-wide totals.
	TopicDashboard = "dashboard"
	// TopicSchedule carries appointment changes.
	TopicSchedule = "schedule"
)

// PatientTopic is the topic for events about one patient.
func PatientTopic(patientID string) string {
	return "patient/" + patientID
}

// Event represents a real-time notification sent to WebSocket clients.
type Event struct {
	Type       string          `json:"type"`
	Tenant     string          `json:"tenant"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resource_id,omitempty"`
	PatientID  string          `json:"patient_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event, encoding data as its payload.
func NewEvent(tenant, eventType, topic, resourceID string, data interface{}) Event {
	ev := Event{
		Type:       eventType,
		Tenant:     tenant,
		Topic:      topic,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher defines the interface for publishing events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// TopicAuthorizer decides whether the connection behind ctx may subscribe
// to topic.
type TopicAuthorizer func(ctx context.Context, topic string) bool

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	Tenant string
	UserID string
	Topics []string
	Send   chan []byte

	ctx   context.Context
	allow TopicAuthorizer
}

type topicKey struct {
	tenant string
	topic  string
}

// Hub tracks clients and their subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[topicKey]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	dropped atomic.Int64
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[topicKey]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.add(client, topic)
	}
}

func (h *Hub) add(client *Client, topic string) {
	k := topicKey{client.Tenant, topic}
	if h.clients[k] == nil {
		h.clients[k] = make(map[*Client]struct{})
	}
	h.clients[k][client] = struct{}{}
}

func (h *Hub) remove(client *Client, topic string) {
	k := topicKey{client.Tenant, topic}
	if subscribers, ok := h.clients[k]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, k)
		}
	}
}

// Unregister removes the client and closes its Send channel. Calling it
// twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.remove(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client and returns the ones the
// client was not allowed to join.
func (h *Hub) Subscribe(client *Client, topics []string) (denied []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	have := make(map[string]bool, len(client.Topics))
	for _, t := range client.Topics {
		have[t] = true
	}
	for _, topic := range topics {
		if client.allow != nil && !client.allow(client.ctx, topic) {
			denied = append(denied, topic)
			continue
		}
		if have[topic] {
			continue
		}
		have[topic] = true
		h.add(client, topic)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.remove(client, t)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound ClientMessage.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) (denied []string) {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Broadcast delivers the event to subscribers of its tenant and topic.
// Clients whose buffers are full miss the event.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("websocket: failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topicKey{event.Tenant, event.Topic}] {
		select {
		case client.Send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn().Str("client", client.ID).Str("type", event.Type).Msg("websocket: client buffer full, event dropped")
		}
	}
}

// Publish broadcasts locally.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients on a tenant's topic.
func (h *Hub) TopicCount(tenant, topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topicKey{tenant, topic}])
}

// Notifier fans one domain change out to the topics that care about it.
type Notifier struct {
	pub EventPublisher
	log zerolog.Logger
}

func NewNotifier(pub EventPublisher, logger zerolog.Logger) *Notifier {
	return &Notifier{pub: pub, log: logger}
}

// Notify publishes eventType to the dashboard, to the patient's topic when
// patientID is set, and to any extra topics. Publish failures are logged;
// the change that triggered them has already been committed.
func (n *Notifier) Notify(ctx context.Context, tenant, eventType, resourceID, patientID string, data interface{}, extra ...string) {
	if n == nil || n.pub == nil {
		return
	}
	topics := append([]string{TopicDashboard}, extra...)
	if patientID != "" {
		topics = append(topics, PatientTopic(patientID))
	}
	for _, topic := range topics {
		ev := NewEvent(tenant, eventType, topic, resourceID, data)
		ev.PatientID = patientID
		if err := n.pub.Publish(ctx, ev); err != nil {
			n.log.Warn().Err(err).Str("type", eventType).Str("topic", topic).Msg("publish event failed")
		}
	}
}
