package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/pulsebeacon/broadcast"
)

type nopSender struct{}

func (nopSender) UpdateCharacteristic(charUUID string, value []byte, deviceID string) error {
	return nil
}

func dialHub(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Hub never reached %d client(s), have %d", want, hub.ClientCount())
}

func TestHubSendsSnapshotOnConnect(t *testing.T) {
	engine := broadcast.NewEngine(nopSender{}, nil)
	hub := NewHub(engine)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server.URL)
	defer conn.Close()

	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Type != "snapshot" {
		t.Errorf("Expected snapshot first, got %q", msg.Type)
	}
	if len(msg.Devices) != 0 {
		t.Errorf("Expected empty device roster, got %v", msg.Devices)
	}
}

func TestHubStreamsEngineEvents(t *testing.T) {
	engine := broadcast.NewEngine(nopSender{}, nil)
	hub := NewHub(engine)
	engine.SetEventHook(hub.HandleEvent)

	charUUID := "0000aaaa-0000-1000-8000-00805f9b34fb"
	if err := engine.RegisterChannel(charUUID, time.Hour, broadcast.BatteryLevel()); err != nil {
		t.Fatalf("RegisterChannel failed: %v", err)
	}

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server.URL)
	defer conn.Close()

	var snapshot message
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	waitForClients(t, hub, 1)

	engine.HandleSubscriptionChange(broadcast.SubscriptionChange{
		DeviceID:           "dev-1",
		CharacteristicUUID: charUUID,
		Subscribed:         true,
		DeviceName:         "alice-phone",
	})

	// Subscribe produces two events: subscribed, then channel_started
	var first, second message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	if first.Type != "event" || first.Event == nil || first.Event.Kind != broadcast.EventSubscribed {
		t.Errorf("Expected subscribed event, got %+v", first)
	}
	if first.Event != nil && first.Event.DeviceName != "alice-phone" {
		t.Errorf("Expected display name in event, got %+v", first.Event)
	}
	if len(first.Devices) != 1 || first.Devices[0].ID != "dev-1" {
		t.Errorf("Expected roster with dev-1, got %v", first.Devices)
	}
	if second.Event == nil || second.Event.Kind != broadcast.EventChannelStarted {
		t.Errorf("Expected channel_started event, got %+v", second)
	}

	engine.Shutdown()
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	engine := broadcast.NewEngine(nopSender{}, nil)
	hub := NewHub(engine)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server.URL)
	var snapshot message
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Pushing with no clients must not panic
	hub.HandleEvent(broadcast.Event{Kind: broadcast.EventTick})
}
