package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
	"mobilechat/internal/subscription"
)

// LiveQuerier opens live queries on behalf of a connected user.
type LiveQuerier interface {
	Subscribe(ctx context.Context, userID string, frame imtypes.ClientFrame, fn subscription.Handler) (*subscription.Subscription, error)
	TopicFor(userID string, frame imtypes.ClientFrame) (subscription.Topic, error)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Authenticated User ID for this client.
	UserID string

	live LiveQuerier
	cfg  config.WebSocketConfig
	log  *zap.Logger

	mu     sync.Mutex
	subs   map[subscription.Topic]*subscription.Subscription
	closed bool
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// readPump pumps frames from the websocket connection into live queries.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	pongWait := seconds(c.cfg.PongWaitSeconds, 60)
	if c.cfg.MaxMessageSizeBytes > 0 {
		c.conn.SetReadLimit(int64(c.cfg.MaxMessageSizeBytes))
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket 连接异常关闭", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debug("忽略非文本消息", zap.Int("type", messageType))
			continue
		}

		var frame imtypes.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("", "无法解析的消息")
			continue
		}
		switch frame.Op {
		case imtypes.OpSubscribe:
			c.subscribe(ctx, frame)
		case imtypes.OpUnsubscribe:
			c.unsubscribe(frame)
		default:
			c.sendError(frame.Topic, "未知操作: "+string(frame.Op))
		}
	}
}

func (c *Client) subscribe(ctx context.Context, frame imtypes.ClientFrame) {
	topic, err := c.live.TopicFor(c.UserID, frame)
	if err != nil {
		c.sendError(frame.Topic, err.Error())
		return
	}
	c.mu.Lock()
	_, exists := c.subs[topic]
	c.mu.Unlock()
	if exists {
		return
	}

	sub, err := c.live.Subscribe(ctx, c.UserID, frame, c.deliver)
	if err != nil {
		c.log.Debug("订阅失败", zap.String("topic", string(topic)), zap.Error(err))
		c.sendError(string(topic), err.Error())
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Cancel()
		return
	}
	c.subs[topic] = sub
	c.mu.Unlock()
}

func (c *Client) unsubscribe(frame imtypes.ClientFrame) {
	topic, err := c.live.TopicFor(c.UserID, frame)
	if err != nil {
		c.sendError(frame.Topic, err.Error())
		return
	}
	c.mu.Lock()
	sub := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// deliver runs on the subscription goroutine.
func (c *Client) deliver(snap subscription.Snapshot) {
	frame := imtypes.ServerFrame{
		Type:  imtypes.FrameSnapshot,
		Topic: string(snap.Topic),
		Seq:   snap.Seq,
		Stale: snap.Stale,
	}
	if snap.Err != nil {
		frame.Error = snap.Err.Error()
	}
	if snap.Data != nil {
		data, err := json.Marshal(snap.Data)
		if err != nil {
			c.log.Error("序列化快照失败", zap.String("topic", frame.Topic), zap.Error(err))
			return
		}
		frame.Data = data
	}
	c.enqueue(frame)
}

func (c *Client) sendError(topic, message string) {
	c.enqueue(imtypes.ServerFrame{Type: imtypes.FrameError, Topic: topic, Error: message})
}

func (c *Client) enqueue(frame imtypes.ServerFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("序列化消息失败", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		// 发送队列已满，客户端太慢，断开连接
		c.log.Warn("发送队列已满，关闭连接", zap.String("userId", c.UserID))
		c.conn.Close()
	}
}

// close cancels all subscriptions and stops the write pump. Safe to call
// more than once.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// writePump pumps frames from the send queue to the websocket connection.
func (c *Client) writePump() {
	writeWait := seconds(c.cfg.WriteWaitSeconds, 10)
	ticker := time.NewTicker(seconds(c.cfg.PingPeriodSeconds, 54))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			// 每个帧单独发送，客户端按 JSON 逐条解析
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and runs a client for userID until the
// connection closes or the hub stops.
func ServeWs(hub *Hub, live LiveQuerier, userID string, w http.ResponseWriter, r *http.Request, cfg config.WebSocketConfig, log *zap.Logger) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 跨域由 CORS 中间件与 token 认证控制
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	bufferSize := cfg.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		UserID: userID,
		live:   live,
		cfg:    cfg,
		log:    log.With(zap.String("userId", userID)),
		subs:   make(map[subscription.Topic]*subscription.Subscription),
	}
	if !hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		return
	}

	// 订阅的生命周期跟随连接而不是 HTTP 请求
	ctx := context.WithoutCancel(r.Context())
	go client.writePump()
	go client.readPump(ctx)

	client.log.Info("客户端已连接")
}
