package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/auth"
	"mobilechat/internal/middleware"
	"mobilechat/internal/services"
)

// ErrorResponse 是 API 错误响应的通用结构体。
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSONResponse 是一个辅助函数，用于发送 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		// 头部已发送，编码失败时无法再返回错误
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

// statusFor maps an error kind to its HTTP status. Unauthorized on a
// resource (wrong room password, not the creator) is 403; failed
// authentication is 401.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAlreadyExists), errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError replies with the status for err. Reasons of known kinds
// reach the client; anything else is logged and answered generically.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error(fallback, zap.String("path", r.URL.Path), zap.Error(err))
		writeJSONError(w, fallback, status)
	case http.StatusServiceUnavailable:
		log.Warn("后端暂时不可用", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSONError(w, "服务暂时不可用，请稍后重试", status)
	default:
		writeJSONError(w, reason(err), status)
	}
}

// reason returns the outermost service message, without wrapped storage detail.
func reason(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if k := apperrors.Kind(err); k != nil {
		return k.Error()
	}
	return err.Error()
}

// decodeJSON 解析请求体，失败时已写入 400 响应。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return false
	}
	return true
}

// currentUser 返回已认证用户的 ID，失败时已写入 401 响应。
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// knownErrors are the reasons shown to clients verbatim.
var knownErrors = []error{
	auth.ErrInvalidCredentials,
	auth.ErrNotAuthenticated,
	auth.ErrEmailRegistered,
	auth.ErrPasswordTooLong,
	services.ErrUserNotFound,
	services.ErrUserExists,
	services.ErrEmailTaken,
	services.ErrNicknameTaken,
	services.ErrNicknameInvalid,
	services.ErrEmailInvalid,
	services.ErrUserIDRequired,
	services.ErrFriendRequestSelf,
	services.ErrAlreadyFriends,
	services.ErrFriendRequestExists,
	services.ErrRoomNotFound,
	services.ErrRoomNameRequired,
	services.ErrRoomPasswordRequired,
	services.ErrRoomPasswordMismatch,
	services.ErrNotRoomCreator,
	services.ErrNotRoomMember,
	services.ErrMessageContent,
	services.ErrPasswordTooShort,
	services.ErrFileTooLarge,
	services.ErrUnsupportedImage,
}
