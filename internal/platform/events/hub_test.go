package events

import (
	"context"
	"encoding/json"
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

func newClient(id string, buf int, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, buf)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	default:
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", 4, "doctor:1")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("doctor:1") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount("doctor:1"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("doctor:1") != 0 {
		t.Fatal("expected hub to be empty")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}

	// A second unregister is a no-op rather than a double close.
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	doctor := newClient("doc", 4, "doctor:1")
	patient := newClient("pat", 4, "patient:9")
	hub.Register(doctor)
	hub.Register(patient)

	hub.Broadcast(Event{Type: AppointmentBooked, Topic: "doctor:1", ResourceID: "a1"})

	got := receive(t, doctor)
	if got.Type != AppointmentBooked || got.ResourceID != "a1" {
		t.Errorf("unexpected event %+v", got)
	}
	assertNothing(t, patient)
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := newClient("slow", 1, "doctor:1")
	hub.Register(slow)

	hub.Broadcast(Event{Type: AppointmentBooked, Topic: "doctor:1"})
	hub.Broadcast(Event{Type: AppointmentCancelled, Topic: "doctor:1"})

	if got := receive(t, slow); got.Type != AppointmentBooked {
		t.Errorf("expected first event to be kept, got %s", got.Type)
	}
	assertNothing(t, slow)
}

func TestHub_SubscribeRespectsAllow(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", 4, "patient:me")
	client.Allow = func(topic string) bool { return topic == "patient:me" || topic == "doctor:7" }
	hub.Register(client)

	hub.Subscribe(client, []string{"doctor:7", "patient:someone-else", "doctor:7"})

	if hub.TopicCount("doctor:7") != 1 {
		t.Error("expected allowed topic to be subscribed once")
	}
	if hub.TopicCount("patient:someone-else") != 0 {
		t.Error("expected disallowed topic to be ignored")
	}
	if len(client.Topics) != 2 {
		t.Errorf("expected 2 topics, got %v", client.Topics)
	}
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", 4)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"doctor:1", "doctor:2"}})
	if hub.TopicCount("doctor:1") != 1 || hub.TopicCount("doctor:2") != 1 {
		t.Fatal("expected both topics subscribed")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"doctor:1"}})
	if hub.TopicCount("doctor:1") != 0 {
		t.Error("expected doctor:1 to be removed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "doctor:2" {
		t.Errorf("unexpected topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "dance", Topics: []string{"doctor:3"}})
	if hub.TopicCount("doctor:3") != 0 {
		t.Error("unknown actions must be ignored")
	}
}

func TestHub_PublishImplementsPublisher(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c", 4, "patient:1")
	hub.Register(client)

	var p Publisher = hub
	if err := p.Publish(context.Background(), Event{Type: AppointmentCompleted, Topic: "patient:1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := receive(t, client); got.Type != AppointmentCompleted {
		t.Errorf("unexpected event %s", got.Type)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", 8, "doctor:1")
			hub.Register(c)
			hub.Broadcast(Event{Type: AppointmentBooked, Topic: "doctor:1"})
			hub.Subscribe(c, []string{"doctor:2"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RejectedByPolicy(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, func(echo.Context) ([]string, func(string) bool, error) {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	})

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())
	err := h.HandleConnect(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Error("rejected connections must not register")
	}
}

func TestHandler_FullUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, func(echo.Context) ([]string, func(string) bool, error) {
		return []string{"patient:42"}, func(topic string) bool { return topic == "patient:42" || topic == "doctor:7" }, nil
	})

	e := echo.New()
	h.RegisterRoutes(e)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"doctor:7", "doctor:8"}}); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("doctor:7") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("patient:42") != 1 || hub.TopicCount("doctor:7") != 1 {
		t.Fatal("expected initial and allowed topics to be subscribed")
	}
	if hub.TopicCount("doctor:8") != 0 {
		t.Fatal("expected disallowed topic to be refused")
	}

	hub.Broadcast(Event{Type: AppointmentCancelled, Topic: "doctor:7", ResourceID: "a9"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != AppointmentCancelled || got.ResourceID != "a9" {
		t.Errorf("unexpected event %+v", got)
	}
}
