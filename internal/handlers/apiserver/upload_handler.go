package apiserver

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mobilechat/internal/config"
	"mobilechat/internal/services"
)

const (
	defaultMaxMemory = 32 << 20 // multipart 表单在内存中保留的上限
	formOverhead     = 1 << 20  // 表单边界和其他字段
)

// UploadHandler 封装了头像和聊天图片上传的 HTTP 处理器方法。
type UploadHandler struct {
	accounts services.AccountService
	messages services.MessageLog
	cfg      config.StorageConfig
	log      *zap.Logger
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(accounts services.AccountService, messages services.MessageLog, cfg config.StorageConfig, log *zap.Logger) *UploadHandler {
	return &UploadHandler{accounts: accounts, messages: messages, cfg: cfg, log: log.Named("upload_handler")}
}

// ProfilePhotoHandler 上传当前用户的头像并返回更新后的资料。
func (h *UploadHandler) ProfilePhotoHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	file, header, mimeType, ok := h.readFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	user, err := h.accounts.UploadProfilePhoto(r.Context(), userID, file, header.Size, mimeType)
	if err != nil {
		writeServiceError(w, h.log, r, err, "上传头像失败")
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// ChatImageHandler 上传一张聊天图片并作为图片消息追加到 {roomID}。
func (h *UploadHandler) ChatImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	roomID := mux.Vars(r)["roomID"]
	file, header, mimeType, ok := h.readFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	msg, err := h.messages.UploadImage(r.Context(), roomID, userID, file, header.Size, mimeType)
	if err != nil {
		writeServiceError(w, h.log, r, err, "发送图片失败")
		return
	}
	writeJSONResponse(w, http.StatusCreated, msg)
}

// readFile 解析 multipart 表单中的 "file" 字段，失败时已写入响应。
func (h *UploadHandler) readFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, string, bool) {
	maxUploadSize := h.cfg.MaxFileSizeMB << 20
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxMemory
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+formOverhead)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20), http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, "解析表单失败", http.StatusBadRequest)
		}
		return nil, nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, "请求中缺少 'file' 字段", http.StatusBadRequest)
		} else {
			writeJSONError(w, "获取文件失败", http.StatusBadRequest)
		}
		return nil, nil, "", false
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	h.log.Debug("收到上传文件",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
		zap.String("mimeType", mimeType),
	)
	return file, header, mimeType, true
}
