package websocket

import (
	"context"

	"go.uber.org/zap"
)

type countRequest struct {
	userID string
	reply  chan int
}

// Hub maintains the set of active clients. A user may hold several
// connections at once, one per device.
type Hub struct {
	clients map[string]map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Users whose connections must all be closed.
	disconnect chan string

	count chan countRequest
	done  chan struct{}
	log   *zap.Logger
}

// NewHub creates a new Hub. Run must be started before clients connect.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan string),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		log:        log.Named("ws_hub"),
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket Hub 已启动")
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			conns, ok := h.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			h.log.Debug("客户端已注册", zap.String("userId", client.UserID), zap.Int("connections", len(conns)))

		case client := <-h.unregister:
			h.remove(client)

		case userID := <-h.disconnect:
			conns := h.clients[userID]
			for client := range conns {
				client.close()
			}
			delete(h.clients, userID)
			if len(conns) > 0 {
				h.log.Info("已断开用户的所有连接", zap.String("userId", userID), zap.Int("connections", len(conns)))
			}

		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])

		case <-ctx.Done():
			for _, conns := range h.clients {
				for client := range conns {
					client.close()
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.log.Info("WebSocket Hub 已停止")
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok {
		client.close()
		return
	}
	if _, ok := conns[client]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
		h.log.Debug("客户端已注销", zap.String("userId", client.UserID))
	}
	client.close()
}

// Register adds client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client and closes it.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// DisconnectUser closes every connection of userID, cancelling their
// subscriptions.
func (h *Hub) DisconnectUser(userID string) {
	select {
	case h.disconnect <- userID:
	case <-h.done:
	}
}

// ConnectionCount returns how many connections userID currently holds.
func (h *Hub) ConnectionCount(userID string) int {
	req := countRequest{userID: userID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}
