package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
)

// fakeS3 serves path-style object requests from a map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T, publicBase string) (*S3StorageService, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewS3StorageService(config.S3Config{
		BucketName:      "media",
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		PublicBaseURL:   publicBase,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, fake
}

func TestS3PutAndDelete(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestS3(t, "https://cdn.example.com/media")

	info, err := s.Put(ctx, ProfileImagePath("u1"), strings.NewReader("jpeg"), 4, "image/jpeg")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.URL != "https://cdn.example.com/media/profile_images/u1.jpg" {
		t.Errorf("URL = %q", info.URL)
	}
	fake.mu.Lock()
	stored := string(fake.objects["media/profile_images/u1.jpg"])
	fake.mu.Unlock()
	if stored != "jpeg" {
		t.Fatalf("stored object = %q", stored)
	}

	if err := s.Delete(ctx, info.Path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, info.Path); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want not found", err)
	}
}

func TestS3PresignedURL(t *testing.T) {
	s, _ := newTestS3(t, "")
	u, err := s.URL(context.Background(), "chat_images/r1/a.png")
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	if !strings.Contains(u, "/media/chat_images/r1/a.png") || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("presigned URL = %q", u)
	}
}

func TestS3RequiresBucket(t *testing.T) {
	if _, err := NewS3StorageService(config.S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
