package apiserver

import (
	"net/http"

	"go.uber.org/zap"

	"mobilechat/internal/middleware"
	"mobilechat/internal/services"
)

// AuthHandler 封装了认证相关的 HTTP 处理器方法。
type AuthHandler struct {
	accounts services.AccountService
	log      *zap.Logger
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(accounts services.AccountService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log.Named("auth_handler")}
}

// RegisterRequest 是用户注册请求的结构体。
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"` // 昵称可选
}

// LoginRequest 是用户登录请求的结构体。
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse 是成功登录后返回的结构体。
type LoginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"` // epoch millis
}

// DeleteAccountRequest carries the password used to re-authenticate.
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// Register 处理用户注册请求。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "邮箱和密码不能为空", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.Nickname)
	if err != nil {
		writeServiceError(w, h.log, r, err, "注册失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, user)
}

// Login 处理用户登录请求。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, "邮箱和密码不能为空", http.StatusBadRequest)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, r, err, "登录失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.UnixMilli(),
	})
}

// LogoutHandler 处理用户登出请求，将当前 Token 加入黑名单。
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetTokenFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	if err := h.accounts.Logout(r.Context(), token); err != nil {
		writeServiceError(w, h.log, r, err, "登出过程中发生内部错误")
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "登出成功"})
}

// DeleteAccountHandler 处理删除账户请求。
func (h *AuthHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req DeleteAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeJSONError(w, "需要输入密码以确认删除", http.StatusBadRequest)
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		writeServiceError(w, h.log, r, err, "删除账户失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, MessageResponse{Message: "账户已删除"})
}
