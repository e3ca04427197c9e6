package chatserver

import (
	"net/http"

	"go.uber.org/zap"

	"mobilechat/internal/config"
	"mobilechat/internal/middleware"
	ws "mobilechat/internal/websocket"
)

// WebSocketHandler 负责处理 WebSocket 连接请求。
type WebSocketHandler struct {
	hub  *ws.Hub
	live ws.LiveQuerier
	cfg  config.WebSocketConfig
	log  *zap.Logger
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, live ws.LiveQuerier, cfg config.WebSocketConfig, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, live: live, cfg: cfg, log: log.Named("ws_handler")}
}

// ServeWS 将已认证的 HTTP 连接升级为 WebSocket 连接。
// 令牌由 AuthMiddleware 从 ?token= 或 Authorization 头中验证。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	ws.ServeWs(h.hub, h.live, userID, w, r, h.cfg, h.log)
}
