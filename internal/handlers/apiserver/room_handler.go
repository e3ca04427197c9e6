package apiserver

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mobilechat/internal/models"
	"mobilechat/internal/services"
)

// RoomHandler 封装了聊天室和聊天消息相关的 HTTP 处理器方法。
type RoomHandler struct {
	rooms    services.RoomRegistry
	messages services.MessageLog
	log      *zap.Logger
}

// NewRoomHandler 创建一个新的 RoomHandler 实例。
func NewRoomHandler(rooms services.RoomRegistry, messages services.MessageLog, log *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, messages: messages, log: log.Named("room_handler")}
}

// CreateRoomRequest 是创建聊天室的请求体。
type CreateRoomRequest struct {
	Name     string `json:"name"`
	Secure   bool   `json:"secure"`
	Password string `json:"password,omitempty"`
}

// CreateRoomResponse 返回新聊天室的 ID。
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// JoinRoomRequest 是加入聊天室的请求体，非加密聊天室可省略密码。
type JoinRoomRequest struct {
	Password string `json:"password,omitempty"`
}

// SendMessageRequest 是发送文本消息的请求体。发送者名称由服务端根据用户资料填写。
type SendMessageRequest struct {
	Text            string `json:"text"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// ListRoomsHandler 返回所有聊天室的摘要。
func (h *RoomHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取聊天室列表失败")
		return
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	writeJSONResponse(w, http.StatusOK, rooms)
}

// CreateRoomHandler 处理创建聊天室的请求。
func (h *RoomHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	roomID, err := h.rooms.CreateRoom(r.Context(), userID, req.Name, req.Secure, req.Password)
	if err != nil {
		writeServiceError(w, h.log, r, err, "创建聊天室失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, CreateRoomResponse{RoomID: roomID})
}

// GetRoomHandler 返回聊天室详情和成员列表。
func (h *RoomHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), mux.Vars(r)["roomID"])
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取聊天室失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, room)
}

// DeleteRoomHandler 删除聊天室，仅创建者可以操作。
func (h *RoomHandler) DeleteRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.rooms.DeleteRoom(r.Context(), userID, mux.Vars(r)["roomID"]); err != nil {
		writeServiceError(w, h.log, r, err, "删除聊天室失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "聊天室已删除"})
}

// JoinRoomHandler 处理加入聊天室的请求。
func (h *RoomHandler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req JoinRoomRequest
	// 空请求体等同于不带密码
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.rooms.JoinRoom(r.Context(), userID, mux.Vars(r)["roomID"], req.Password); err != nil {
		writeServiceError(w, h.log, r, err, "加入聊天室失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "已加入聊天室"})
}

// ListMessagesHandler 返回聊天室消息，?since= 为毫秒时间戳，只返回其后的消息。
func (h *RoomHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	roomID := mux.Vars(r)["roomID"]

	var since *int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSONError(w, "since 参数必须是毫秒时间戳", http.StatusBadRequest)
			return
		}
		since = &v
	}

	if _, err := h.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeServiceError(w, h.log, r, err, "获取聊天记录失败")
		return
	}
	member, err := h.rooms.IsMember(r.Context(), roomID, userID)
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取聊天记录失败")
		return
	}
	if !member {
		writeServiceError(w, h.log, r, services.ErrNotRoomMember, "获取聊天记录失败")
		return
	}

	msgs, err := h.messages.Tail(r.Context(), roomID, since)
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取聊天记录失败")
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, msgs)
}

// SendMessageHandler 追加一条文本消息。
func (h *RoomHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.Append(r.Context(), services.AppendInput{
		RoomID:          mux.Vars(r)["roomID"],
		SenderID:        userID,
		Text:            req.Text,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		writeServiceError(w, h.log, r, err, "发送消息失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}
