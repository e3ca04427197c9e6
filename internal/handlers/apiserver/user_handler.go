package apiserver

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mobilechat/internal/services"
)

// UserHandler 封装了用户资料相关的 HTTP 处理器方法。
type UserHandler struct {
	directory services.UserDirectory
	log       *zap.Logger
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(directory services.UserDirectory, log *zap.Logger) *UserHandler {
	return &UserHandler{directory: directory, log: log.Named("user_handler")}
}

// UpdateMyProfileRequest 是更新用户信息的请求结构体。省略的字段保持不变。
type UpdateMyProfileRequest struct {
	Name     *string `json:"name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

// LookupResponse 是按邮箱或昵称查找用户的结果。
type LookupResponse struct {
	UserID string `json:"userId"`
}

// GetMyProfileHandler 处理获取当前登录用户信息的请求。
func (h *UserHandler) GetMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.directory.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取用户信息失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// UpdateMyProfileHandler 处理更新当前登录用户信息的请求。
func (h *UserHandler) UpdateMyProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateMyProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.directory.UpdateProfile(r.Context(), userID, services.ProfileUpdate{
		Name:     req.Name,
		Bio:      req.Bio,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		writeServiceError(w, h.log, r, err, "更新用户信息失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// GetUserProfileHandler 处理获取指定用户公开信息的请求。
func (h *UserHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["userID"]
	if targetID == "" {
		writeJSONError(w, "请求路径中缺少 userID", http.StatusBadRequest)
		return
	}
	user, err := h.directory.GetUser(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, h.log, r, err, "获取用户信息失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, user.Summary())
}

// LookupUserHandler 按 ?email= 或 ?nickname= 查找用户 ID。
func (h *UserHandler) LookupUserHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email, nickname := strings.TrimSpace(q.Get("email")), strings.TrimSpace(q.Get("nickname"))

	var (
		id    string
		found bool
		err   error
	)
	switch {
	case email != "":
		id, found, err = h.directory.ResolveByEmail(r.Context(), email)
	case nickname != "":
		id, found, err = h.directory.ResolveByNickname(r.Context(), nickname)
	default:
		writeJSONError(w, "需要提供 email 或 nickname 查询参数", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeServiceError(w, h.log, r, err, "查找用户失败")
		return
	}
	if !found {
		writeJSONError(w, services.ErrUserNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, LookupResponse{UserID: id})
}
