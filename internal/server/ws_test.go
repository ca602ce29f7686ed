package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ayusman/fingergame/internal/app"
)

// queuedClient is a client with no connection and no writer, so nothing
// drains its queue.
func queuedClient(buffer int) *client {
	return &client{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func TestHub_BroadcastDropsSlowClient(t *testing.T) {
	h := newHub(func() (app.View, bool) { return app.View{}, false }, func() error { return nil })

	slow := queuedClient(1)
	slow.send <- []byte("stale")
	healthy := queuedClient(1)

	h.mu.Lock()
	h.clients[slow] = struct{}{}
	h.clients[healthy] = struct{}{}
	h.mu.Unlock()

	returned := make(chan struct{})
	go func() {
		h.broadcast(testView(3, 3))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}

	if got := h.count(); got != 1 {
		t.Errorf("count() = %d, want 1 after dropping the slow client", got)
	}
	if slow.bye == nil {
		t.Error("slow client should get a close frame")
	}

	select {
	case msg := <-healthy.send:
		var v app.View
		if err := json.Unmarshal(msg, &v); err != nil {
			t.Fatalf("queued message is not a view: %v", err)
		}
		if v.Target != 3 {
			t.Errorf("queued view target = %d, want 3", v.Target)
		}
	default:
		t.Error("healthy client should have the view queued")
	}
}

func TestHub_DropOnce(t *testing.T) {
	h := newHub(func() (app.View, bool) { return app.View{}, false }, func() error { return nil })
	c := queuedClient(1)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if !h.drop(c, nil) {
		t.Error("first drop should report the client as registered")
	}
	if h.drop(c, nil) {
		t.Error("second drop should be a no-op")
	}
	if _, open := <-c.send; open {
		t.Error("drop should close the send queue")
	}
}
