package websocket

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"wotrack/internal/events"
	"wotrack/internal/logging"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(logging.NewNop(), Options{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *ws.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt events.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return evt
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	waitForClients(t, hub, 2)

	evt := events.New(events.ProcessStatusUpdated, 3, "11/4", map[string]int{"in_use_quantity": 60})
	if err := hub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, conn := range []*ws.Conn{a, b} {
		got := readEvent(t, conn)
		if got.ID != evt.ID || got.Type != events.ProcessStatusUpdated || got.WorkOrderID != 3 {
			t.Errorf("unexpected event %+v", got)
		}
	}
}

func TestHubFiltersByWorkOrder(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?work_order_id=5")
	waitForClients(t, hub, 1)

	ctx := context.Background()
	hub.Publish(ctx, events.New(events.StageUpdated, 6, "6/Testing", nil))
	hub.Publish(ctx, events.New(events.StageUpdated, 5, "5/Testing", nil))

	got := readEvent(t, conn)
	if got.WorkOrderID != 5 {
		t.Errorf("first delivered event is for work order %d, want 5", got.WorkOrderID)
	}
}

func TestHubRejectsBadFilter(t *testing.T) {
	hub := NewHub(nil, Options{})
	req := httptest.NewRequest("GET", "/ws?work_order_id=abc", nil)
	rr := httptest.NewRecorder()
	HandleWebSocket(hub, rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestHubReportsUnencodableEvent(t *testing.T) {
	hub := NewHub(nil, Options{})
	err := hub.Publish(context.Background(), events.New(events.StageUpdated, 1, "1", math.Inf(1)))
	if err == nil {
		t.Fatal("expected marshal error for +Inf payload")
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
