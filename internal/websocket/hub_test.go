package websocket

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func newIdleClient(hub *Hub, userID string) *Client {
	return &Client{hub: hub, UserID: userID, send: make(chan []byte, 1), log: zap.NewNop()}
}

func TestHubTracksConnectionsPerUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	phone, laptop, other := newIdleClient(hub, "u1"), newIdleClient(hub, "u1"), newIdleClient(hub, "u2")
	for _, c := range []*Client{phone, laptop, other} {
		if !hub.Register(c) {
			t.Fatal("Register() on a running hub returned false")
		}
	}
	if n := hub.ConnectionCount("u1"); n != 2 {
		t.Fatalf("ConnectionCount(u1) = %d, want 2", n)
	}

	hub.Unregister(phone)
	if n := hub.ConnectionCount("u1"); n != 1 {
		t.Fatalf("after unregister = %d, want 1", n)
	}
	if _, ok := <-phone.send; ok {
		t.Error("unregistered client send channel still open")
	}

	hub.DisconnectUser("u1")
	if n := hub.ConnectionCount("u1"); n != 0 {
		t.Errorf("after disconnect = %d", n)
	}
	if _, ok := <-laptop.send; ok {
		t.Error("disconnected client send channel still open")
	}
	if n := hub.ConnectionCount("u2"); n != 1 {
		t.Errorf("other user lost connection: %d", n)
	}
	// 重复关闭是安全的
	hub.Unregister(laptop)

	cancel()
	<-stopped
	if _, ok := <-other.send; ok {
		t.Error("stop left a client open")
	}
	if hub.Register(newIdleClient(hub, "u3")) {
		t.Error("Register() after stop returned true")
	}
	hub.DisconnectUser("u2")
	if n := hub.ConnectionCount("u2"); n != 0 {
		t.Errorf("ConnectionCount after stop = %d", n)
	}
}
