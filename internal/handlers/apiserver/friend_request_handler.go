package apiserver

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mobilechat/internal/models"
	"mobilechat/internal/services"
)

// FriendHandler 封装了好友与好友请求相关的 HTTP 处理器方法。
type FriendHandler struct {
	graph     services.FriendGraphService
	directory services.UserDirectory
	log       *zap.Logger
}

// NewFriendHandler 创建一个新的 FriendHandler 实例。
func NewFriendHandler(graph services.FriendGraphService, directory services.UserDirectory, log *zap.Logger) *FriendHandler {
	return &FriendHandler{graph: graph, directory: directory, log: log.Named("friend_handler")}
}

// SendFriendRequestPayload 是发送好友请求的请求体。
type SendFriendRequestPayload struct {
	UserID string `json:"userId"`
}

// ListFriendsHandler 返回当前用户的好友名片列表。
func (h *FriendHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	h.listSummaries(w, r, h.graph.ListFriends, "获取好友列表失败")
}

// ListIncomingHandler 返回发给当前用户的待处理请求。
func (h *FriendHandler) ListIncomingHandler(w http.ResponseWriter, r *http.Request) {
	h.listSummaries(w, r, h.graph.ListIncomingRequests, "获取好友请求失败")
}

// ListOutgoingHandler 返回当前用户已发出的待处理请求。
func (h *FriendHandler) ListOutgoingHandler(w http.ResponseWriter, r *http.Request) {
	h.listSummaries(w, r, h.graph.ListOutgoingRequests, "获取已发送的好友请求失败")
}

func (h *FriendHandler) listSummaries(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, id string) ([]string, error), failMsg string) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ids, err := list(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, r, err, failMsg)
		return
	}
	summaries, err := h.directory.Summaries(r.Context(), ids)
	if err != nil {
		writeServiceError(w, h.log, r, err, failMsg)
		return
	}
	if summaries == nil {
		summaries = []models.UserSummary{}
	}
	writeJSONResponse(w, http.StatusOK, summaries)
}

// SearchCandidatesHandler 按 ?query= 搜索可以添加为好友的用户。
func (h *FriendHandler) SearchCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	candidates, err := h.graph.SearchCandidates(r.Context(), userID, r.URL.Query().Get("query"))
	if err != nil {
		writeServiceError(w, h.log, r, err, "搜索用户失败")
		return
	}
	if candidates == nil {
		candidates = []models.UserSummary{}
	}
	writeJSONResponse(w, http.StatusOK, candidates)
}

// SendFriendRequestHandler 处理发送好友请求。
func (h *FriendHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req SendFriendRequestPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSONError(w, "userId 不能为空", http.StatusBadRequest)
		return
	}
	if err := h.graph.SendRequest(r.Context(), userID, req.UserID); err != nil {
		writeServiceError(w, h.log, r, err, "发送好友请求失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, MessageResponse{Message: "好友请求已发送"})
}

// AcceptFriendRequestHandler 接受 {userID} 发来的请求。
func (h *FriendHandler) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.graph.AcceptRequest, "接受好友请求失败", "已接受好友请求")
}

// DeclineFriendRequestHandler 拒绝 {userID} 发来的请求。
func (h *FriendHandler) DeclineFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.graph.DeclineRequest, "拒绝好友请求失败", "已拒绝好友请求")
}

// CancelFriendRequestHandler 撤回发给 {userID} 的请求。
func (h *FriendHandler) CancelFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.graph.CancelRequest, "撤回好友请求失败", "已撤回好友请求")
}

// UnfriendHandler 删除与 {userID} 的好友关系。
func (h *FriendHandler) UnfriendHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.graph.Unfriend, "删除好友失败", "已删除好友")
}

// resolve runs op(currentUser, {userID}).
func (h *FriendHandler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, self, other string) error, failMsg, okMsg string) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	otherID := mux.Vars(r)["userID"]
	if otherID == "" {
		writeJSONError(w, "请求路径中缺少 userID", http.StatusBadRequest)
		return
	}
	if err := op(r.Context(), userID, otherID); err != nil {
		writeServiceError(w, h.log, r, err, failMsg)
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: okMsg})
}
