package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
)

// LocalStorageService 实现了 imtypes.BlobStore 接口，文件保存在本地磁盘。
type LocalStorageService struct {
	basePath string // 本地存储的基础路径，例如 "./uploads"
	baseURL  string // 用于构建文件访问 URL 的基础 URL，例如 "/uploads"
}

// NewLocalStorageService 创建一个新的 LocalStorageService 实例。
func NewLocalStorageService(cfg config.StorageConfig) (*LocalStorageService, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败 '%s': %w", cfg.LocalPath, err)
	}
	return &LocalStorageService{
		basePath: cfg.LocalPath,
		baseURL:  cfg.BaseURL,
	}, nil
}

func (s *LocalStorageService) fullPath(p string) (string, string, error) {
	cleaned, err := cleanBlobPath(p)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

// Put 将文件保存到本地文件系统，已存在的同名文件会被覆盖。
func (s *LocalStorageService) Put(ctx context.Context, p string, r io.Reader, size int64, mimeType string) (*imtypes.FileInfo, error) {
	cleaned, dstPath, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "创建目录失败")
	}

	// 先写入临时文件，完成后再重命名，避免读到写了一半的文件
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".upload-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "创建目标文件失败")
	}
	written, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "写入文件失败")
	}
	if size >= 0 && written != size {
		os.Remove(tmp.Name())
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, "文件大小不匹配: 预期 %d, 实际写入 %d", size, written)
	}
	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		os.Remove(tmp.Name())
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "保存文件失败")
	}

	fileURL, _ := s.URL(ctx, cleaned)
	return &imtypes.FileInfo{
		URL:      fileURL,
		Path:     cleaned,
		Size:     written,
		MimeType: mimeType,
	}, nil
}

// Delete 删除本地文件。
func (s *LocalStorageService) Delete(ctx context.Context, p string) error {
	_, full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.Newf(apperrors.ErrNotFound, "file %s not found", p)
		}
		return apperrors.Wrap(apperrors.ErrUnavailable, err, "删除文件失败")
	}
	return nil
}

// URL 返回文件的访问地址，每一段路径都会被转义。
func (s *LocalStorageService) URL(ctx context.Context, p string) (string, error) {
	cleaned, err := cleanBlobPath(p)
	if err != nil {
		return "", err
	}
	segments := strings.Split(cleaned, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/" + strings.Join(segments, "/"), nil
}
