// internal/imtypes/storage_service_iface.go
package imtypes

import (
	"context"
	"io"
)

// BlobStore 定义了二进制文件存储操作的接口。
// 将接口定义放在 imtypes 中以打破 storage 和 services 之间的循环依赖。
// Paths are slash separated and relative to the store root, for example
// "profile_images/u1.jpg".
type BlobStore interface {
	// Put writes size bytes from r to path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader, size int64, mimeType string) (*FileInfo, error)
	// Delete removes the object. A missing object is reported as apperrors.ErrNotFound.
	Delete(ctx context.Context, path string) error
	// URL returns a fetchable URL for the object.
	URL(ctx context.Context, path string) (string, error)
}
