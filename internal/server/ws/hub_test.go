package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market_sim/internal/domain"
	"market_sim/internal/engine"
	"market_sim/internal/infra"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, *infra.Metrics, string) {
	t.Helper()
	metrics := &infra.Metrics{}
	hub := NewHub(nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, metrics, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The status frame arrives after registration.
	if env := read(t, conn); env.Type != "status" {
		t.Fatalf("Expected status frame, got %s", env.Type)
	}
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("Invalid frame %s: %v", msg, err)
	}
	return f
}

func testReport() engine.StepReport {
	last := 100.0
	return engine.StepReport{
		Seq:  9,
		Step: 3,
		Transactions: map[string][]domain.Transaction{
			"wheat": {{ID: "tx_wheat_3_0", Quantity: 1, Price: 100, Value: 100}},
		},
		Data: []domain.MarketData{
			{MarketID: "corn"},
			{MarketID: "wheat", LastPrice: &last},
		},
	}
}

func TestHub_PublishReport(t *testing.T) {
	hub, metrics, url := startHub(t)
	conn := dial(t, url)

	if got := metrics.Snapshot().ActiveConnections; got != 1 {
		t.Errorf("Expected 1 active connection, got %d", got)
	}

	hub.PublishReport(testReport())

	step := read(t, conn)
	if step.Type != "step" || step.Channel != ChannelSteps {
		t.Fatalf("Expected step frame first, got %s on %s", step.Type, step.Channel)
	}
	var summary struct {
		Step         int64 `json:"step"`
		Transactions int   `json:"transactions"`
	}
	if err := json.Unmarshal(step.Payload, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Step != 3 || summary.Transactions != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	if f := read(t, conn); f.Channel != "market:corn" {
		t.Errorf("Expected corn snapshot, got %s", f.Channel)
	}
	f := read(t, conn)
	if f.Channel != "market:wheat" {
		t.Fatalf("Expected wheat snapshot, got %s", f.Channel)
	}
	var payload struct {
		Data         domain.MarketData    `json:"data"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Data.LastPrice == nil || *payload.Data.LastPrice != 100 || len(payload.Transactions) != 1 {
		t.Errorf("Unexpected wheat payload %+v", payload)
	}
}

func TestHub_Subscriptions(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)

	for _, msg := range []subscribeMsg{
		{Action: "unsubscribe", Channels: []string{"*"}},
		{Action: "subscribe", Channels: []string{"market:wh*"}},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatal(err)
		}
		if ack := read(t, conn); ack.Type != "subscriptions" {
			t.Fatalf("Expected subscription ack, got %s", ack.Type)
		}
	}

	hub.PublishReport(testReport())

	// Only the wheat snapshot passes the filter.
	if f := read(t, conn); f.Channel != "market:wheat" {
		t.Errorf("Expected only wheat, got %s", f.Channel)
	}
}

func TestHub_DisconnectUpdatesMetrics(t *testing.T) {
	_, metrics, url := startHub(t)
	conn := dial(t, url)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if metrics.Snapshot().ActiveConnections == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected connection count to drop to 0")
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"steps": true, "market:*": true}}

	tests := map[string]bool{
		"steps":        true,
		"market:wheat": true,
		"certificates": false,
	}
	for channel, want := range tests {
		if got := c.isSubscribed(channel); got != want {
			t.Errorf("isSubscribed(%q) = %v, want %v", channel, got, want)
		}
	}
}

func TestHub_ConnectAfterShutdownKeepsCount(t *testing.T) {
	metrics := &infra.Metrics{}
	hub := NewHub(nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// The handler closes the connection after undoing its count.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Expected the stopped hub to close the connection")
	}
	if got := metrics.Snapshot().ActiveConnections; got != 0 {
		t.Errorf("Expected 0 active connections, got %d", got)
	}
}

func TestHub_ShutdownReleasesConnections(t *testing.T) {
	metrics := &infra.Metrics{}
	hub := NewHub(nil, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial(t, url)
	dial(t, url)

	cancel()
	<-stopped

	if got := metrics.Snapshot().ActiveConnections; got != 0 {
		t.Errorf("Expected 0 active connections after shutdown, got %d", got)
	}
}
