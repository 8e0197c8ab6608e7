package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestClient(id, tenant string, topics ...string) *Client {
	return &Client{
		ID:     id,
		Tenant: tenant,
		Topics: topics,
		Send:   make(chan []byte, 16),
		ctx:    context.Background(),
	}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("expected no event, got %s", data)
	default:
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", "main", TopicDashboard)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("main", TopicDashboard) != 1 {
		t.Fatalf("expected one registered client on dashboard")
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("main", TopicDashboard) != 0 {
		t.Fatalf("expected hub to be empty")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}

	// second unregister must not panic on the closed channel
	hub.Unregister(client)
}

func TestHub_BroadcastIsTenantScoped(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	mine := newTestClient("a", "north", TopicDashboard)
	other := newTestClient("b", "south", TopicDashboard)
	hub.Register(mine)
	hub.Register(other)

	hub.Broadcast(NewEvent("north", EventPaymentRecorded, TopicDashboard, "pay-1", map[string]string{"amount": "50.00"}))

	ev := receive(t, mine)
	if ev.Type != EventPaymentRecorded || ev.ResourceID != "pay-1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if !strings.Contains(string(ev.Data), `"50.00"`) {
		t.Errorf("expected payload to carry amount, got %s", ev.Data)
	}
	expectNothing(t, other)
}

func TestHub_BroadcastOnlyToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	dash := newTestClient("a", "main", TopicDashboard)
	sched := newTestClient("b", "main", TopicSchedule)
	hub.Register(dash)
	hub.Register(sched)

	hub.Broadcast(NewEvent("main", EventAppointmentChanged, TopicSchedule, "appt-1", nil))

	receive(t, sched)
	expectNothing(t, dash)
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Tenant: "main", Topics: []string{TopicDashboard}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast(NewEvent("main", EventHistoryCreated, TopicDashboard, "h1", nil))
	hub.Broadcast(NewEvent("main", EventHistoryCreated, TopicDashboard, "h2", nil))

	if len(client.Send) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(client.Send))
	}
	if hub.dropped.Load() != 1 {
		t.Errorf("expected one dropped event, got %d", hub.dropped.Load())
	}
}

func TestHub_SubscribeHonoursAuthorizer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c", "main")
	client.allow = func(_ context.Context, topic string) bool {
		return topic != PatientTopic("secret")
	}
	hub.Register(client)

	denied := hub.Subscribe(client, []string{TopicDashboard, PatientTopic("secret"), TopicDashboard})

	if len(denied) != 1 || denied[0] != PatientTopic("secret") {
		t.Errorf("expected the secret patient topic to be denied, got %v", denied)
	}
	if hub.TopicCount("main", TopicDashboard) != 1 {
		t.Error("expected dashboard subscription")
	}
	if len(client.Topics) != 1 {
		t.Errorf("expected duplicate topics to collapse, got %v", client.Topics)
	}
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c", "main")
	hub.Register(client)

	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"action":"subscribe","topics":["dashboard","patient/p1"]}`), &msg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	hub.ProcessMessage(client, msg)
	if hub.TopicCount("main", PatientTopic("p1")) != 1 {
		t.Fatal("expected patient topic subscription")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"dashboard"}})
	if hub.TopicCount("main", TopicDashboard) != 0 {
		t.Error("expected dashboard to be unsubscribed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != PatientTopic("p1") {
		t.Errorf("unexpected remaining topics %v", client.Topics)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient("c", "main", TopicDashboard)
			hub.Register(c)
			hub.Broadcast(NewEvent("main", EventPaymentRecorded, TopicDashboard, "", nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestNotifier_FansOut(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, zerolog.Nop())

	n.Notify(context.Background(), "main", EventAppointmentChanged, "appt-1", "pat-1", nil, TopicSchedule)

	var topics []string
	for _, ev := range pub.events {
		topics = append(topics, ev.Topic)
		if ev.PatientID != "pat-1" || ev.Tenant != "main" {
			t.Errorf("unexpected event %+v", ev)
		}
	}
	want := []string{TopicDashboard, TopicSchedule, PatientTopic("pat-1")}
	if strings.Join(topics, ",") != strings.Join(want, ",") {
		t.Errorf("expected topics %v, got %v", want, topics)
	}
}

func TestNotifier_ToleratesFailuresAndNil(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	NewNotifier(pub, zerolog.Nop()).Notify(context.Background(), "main", EventPaymentRecorded, "p", "", nil)
	if len(pub.events) != 1 {
		t.Errorf("expected dashboard only, got %d events", len(pub.events))
	}

	var n *Notifier
	n.Notify(context.Background(), "main", EventPaymentRecorded, "p", "", nil)
}

func TestRedisRelay_SkipsOwnOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c", "main", TopicDashboard)
	hub.Register(client)
	relay := NewRedisRelay(nil, "events", hub, zerolog.Nop())

	own, _ := json.Marshal(relayEnvelope{Origin: relay.origin, Event: NewEvent("main", EventPaymentRecorded, TopicDashboard, "x", nil)})
	relay.deliver(string(own))
	expectNothing(t, client)

	foreign, _ := json.Marshal(relayEnvelope{Origin: "other-node", Event: NewEvent("main", EventPaymentRecorded, TopicDashboard, "y", nil)})
	relay.deliver(string(foreign))
	if ev := receive(t, client); ev.ResourceID != "y" {
		t.Errorf("expected relayed event y, got %s", ev.ResourceID)
	}

	relay.deliver("{garbage")
	expectNothing(t, client)
}

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewWebSocketHandler(NewHub(zerolog.Nop()), nil, nil, zerolog.Nop()).RegisterRoutes(e.Group("/api"))

	found := false
	for _, r := range e.Routes() {
		if r.Path == "/api/ws" && r.Method == http.MethodGet {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GET /api/ws route to be registered")
	}
}

func TestWebSocketHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	handler := NewWebSocketHandler(NewHub(zerolog.Nop()), nil, nil, zerolog.Nop())
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/ws", nil), rec)

	err := handler.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestWebSocketHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	allow := func(_ context.Context, topic string) bool { return topic == TopicDashboard }
	handler := NewWebSocketHandler(hub, allow, []string{"*"}, zerolog.Nop())

	e := echo.New()
	handler.RegisterRoutes(e.Group("/api"))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{TopicDashboard, "patient/x"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack subscribeAck
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("failed to read ack: %v", err)
	}
	if len(ack.Denied) != 1 || ack.Denied[0] != "patient/x" {
		t.Errorf("expected patient/x to be denied, got %+v", ack)
	}

	// no tenant middleware in front of the handler, so the tenant is empty
	hub.Broadcast(NewEvent("", EventPaymentRecorded, TopicDashboard, "pay-9", nil))

	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != EventPaymentRecorded || received.ResourceID != "pay-9" {
		t.Fatalf("unexpected event %+v", received)
	}
}
