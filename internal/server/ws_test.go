package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/store"
)

func waitForClients(t *testing.T, hub *PositionHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPositionHub_Send(t *testing.T) {
	hub := NewPositionHub()
	hub.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ts := httptest.NewServer(New(Config{Positions: hub}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/positions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitForClients(t, hub, 1)

	batch := broadcast.NewBatch()
	batch.Put(2, broadcast.Entry{1.5, 0, 0.25, 0.5, 0, 0, 0, 45})
	if err := hub.Send(context.Background(), batch); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg PositionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d", msg.Timestamp)
	}
	if e, ok := msg.Positions.Get(2); !ok || e != batch["2"] {
		t.Errorf("positions = %v", msg.Positions)
	}
}

func TestPositionHub_Close(t *testing.T) {
	hub := NewPositionHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if hub.Clients() != 0 {
		t.Errorf("clients after close = %d", hub.Clients())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}

	if err := hub.Send(context.Background(), broadcast.NewBatch()); !errors.Is(err, broadcast.ErrClosed) {
		t.Errorf("Send() after close = %v, want ErrClosed", err)
	}
	if err := hub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestPositionHub_NoClients(t *testing.T) {
	hub := NewPositionHub()
	if err := hub.Send(context.Background(), broadcast.NewBatch()); err != nil {
		t.Errorf("Send() without clients = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.Send(ctx, broadcast.NewBatch()); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() with cancelled context = %v", err)
	}
}

func TestPositionHub_AsBroadcastSender(t *testing.T) {
	var _ broadcast.Sender = NewPositionHub()

	rec := broadcast.NewRecordingSender()
	hub := NewPositionHub()
	multi := broadcast.MultiSender{rec, hub}

	batch := broadcast.NewBatch()
	batch.Put(1, broadcast.Entry{})
	if err := multi.Send(context.Background(), batch); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(rec.Batches()) != 1 {
		t.Errorf("recording sender got %d batches", len(rec.Batches()))
	}
}

func TestServer_Serve(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	run := &store.Run{Convention: "ENU"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	hub := NewPositionHub()
	srv := New(Config{Store: s, Positions: hub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &httptestClient{base: "http://" + ln.Addr().String()}
	var got struct {
		ID string `json:"id"`
	}
	if err := client.getJSON("/api/runs/"+run.ID, &got); err != nil {
		t.Fatalf("GET run failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("run id = %q, want %q", got.ID, run.ID)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if err := hub.Send(context.Background(), broadcast.NewBatch()); !errors.Is(err, broadcast.ErrClosed) {
		t.Errorf("hub should be closed after Serve returns, Send() = %v", err)
	}
}
