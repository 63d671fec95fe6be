package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/walletrisk/internal/report"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func mustPublish(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func walletEvent(addr string, score float64) *Event {
	return &Event{
		Type: EventHighRiskWallet,
		Data: HighRiskWallet{Address: addr, FinalRiskScore: score},
	}
}

// ---------------------------------------------------------------------------
// Subscription matching
// ---------------------------------------------------------------------------

func TestMatches_AllEvents(t *testing.T) {
	sub := Subscription{AllEvents: true, MinScore: 999}

	if !sub.matches(walletEvent("0xa", 1)) {
		t.Error("AllEvents subscription should ignore other filters")
	}
}

func TestMatches_EventTypeFilter(t *testing.T) {
	sub := Subscription{EventTypes: []EventType{EventRunCompleted}}

	if !sub.matches(&Event{Type: EventRunCompleted, Data: RunCompleted{}}) {
		t.Error("Should receive run_completed events")
	}
	if sub.matches(walletEvent("0xa", 900)) {
		t.Error("Should NOT receive high_risk_wallet events")
	}
}

func TestMatches_AddressFilter(t *testing.T) {
	sub := Subscription{Addresses: []string{"0xABC"}}

	if !sub.matches(walletEvent("0xabc", 800)) {
		t.Error("Address filter should match case-insensitively")
	}
	if sub.matches(walletEvent("0xdef", 800)) {
		t.Error("Should NOT receive events for other wallets")
	}
	if !sub.matches(&Event{Type: EventRunCompleted, Data: RunCompleted{}}) {
		t.Error("Address filter should not apply to run events")
	}
}

func TestMatches_MinScore(t *testing.T) {
	sub := Subscription{MinScore: 900}

	if !sub.matches(walletEvent("0xa", 900)) {
		t.Error("Score equal to MinScore should pass")
	}
	if sub.matches(walletEvent("0xa", 899)) {
		t.Error("Score below MinScore should be filtered")
	}
}

func TestMatches_EmptySubscription(t *testing.T) {
	if !(Subscription{}).matches(walletEvent("0xa", 750)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 256), sub: Subscription{AllEvents: true}}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_PublishRunCompleted(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 256), sub: Subscription{AllEvents: true}}
	h.register <- client

	mustPublish(t, h.PublishRunCompleted(ctx, &report.Run{ID: "run-1", Wallets: 12, Anomalies: 2}))

	select {
	case msg := <-client.send:
		var got struct {
			Type EventType    `json:"type"`
			Data RunCompleted `json:"data"`
		}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if got.Type != EventRunCompleted || got.Data.RunID != "run-1" || got.Data.Wallets != 12 {
			t.Errorf("unexpected event: %s", msg)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for run_completed")
	}
}

func TestHub_FilteredPublish(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 256), sub: Subscription{MinScore: 900}}
	h.register <- client

	mustPublish(t, h.PublishHighRiskWallet(ctx, report.WalletScore{Address: "0xa", FinalRiskScore: 800}))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive wallet below its MinScore")
	default:
	}

	mustPublish(t, h.PublishHighRiskWallet(ctx, report.WalletScore{Address: "0xb", FinalRiskScore: 950}))

	select {
	case msg := <-client.send:
		if !strings.Contains(string(msg), `"address":"0xb"`) {
			t.Errorf("unexpected event: %s", msg)
		}
	case <-time.After(time.Second):
		t.Error("Client should receive wallet at or above MinScore")
	}
}

func TestHub_PublishLargeBatchDeliversAll(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	const n = 2000
	for i := 0; i < n; i++ {
		mustPublish(t, h.PublishHighRiskWallet(ctx, report.WalletScore{Address: "0xa", FinalRiskScore: 900}))
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.totalEvents.Load() < n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.totalEvents.Load(); got != n {
		t.Errorf("Expected %d events processed, got %d", n, got)
	}
}

func TestHub_PublishWaitsForRoom(t *testing.T) {
	h := testHub()
	for i := 0; i < cap(h.broadcast); i++ {
		mustPublish(t, h.Publish(context.Background(), walletEvent("0xa", 900)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Publish(ctx, walletEvent("0xb", 900)); err != context.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded on a full queue, got %v", err)
	}
}

func TestHub_PublishAfterStop(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := h.Publish(context.Background(), walletEvent("0xa", 900)); err != ErrHubStopped {
		t.Errorf("Expected ErrHubStopped, got %v", err)
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_WebSocketStream(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	sub, _ := json.Marshal(Subscription{EventTypes: []EventType{EventHighRiskWallet}})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write subscription: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	mustPublish(t, h.PublishRunCompleted(ctx, &report.Run{ID: "run-1"}))
	mustPublish(t, h.PublishHighRiskWallet(ctx, report.WalletScore{RunID: "run-1", Address: "0xa", FinalRiskScore: 780}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != EventHighRiskWallet {
		t.Errorf("expected high_risk_wallet first, got %s", got.Type)
	}
}
