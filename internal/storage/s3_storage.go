package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
)

// S3StorageService 实现了 imtypes.BlobStore 接口，文件保存在 S3 兼容的对象存储中。
type S3StorageService struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	publicBaseURL string
	presignExpiry time.Duration
}

// NewS3StorageService builds a client from static credentials. An empty key
// pair means anonymous access, which only works against public buckets.
func NewS3StorageService(cfg config.S3Config) (*S3StorageService, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("s3 storage requires STORAGE.S3.BUCKET_NAME")
	}
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3StorageService{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.BucketName,
		publicBaseURL: cfg.PublicBaseURL,
		presignExpiry: expiry,
	}, nil
}

// Put uploads the object. The body is buffered so the request can be signed;
// callers bound size through STORAGE.MAX_FILE_SIZE_MB.
func (s *S3StorageService) Put(ctx context.Context, p string, r io.Reader, size int64, mimeType string) (*imtypes.FileInfo, error) {
	key, err := cleanBlobPath(p)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "read upload")
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, "文件大小不匹配: 预期 %d, 实际 %d", size, len(data))
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "s3 put object")
	}

	fileURL, err := s.URL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &imtypes.FileInfo{URL: fileURL, Path: key, Size: int64(len(data)), MimeType: mimeType}, nil
}

// Delete removes the object, reporting a missing key as ErrNotFound.
func (s *S3StorageService) Delete(ctx context.Context, p string) error {
	key, err := cleanBlobPath(p)
	if err != nil {
		return err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return apperrors.Newf(apperrors.ErrNotFound, "object %s not found", key)
		}
		return apperrors.Wrap(apperrors.ErrUnavailable, err, "s3 head object")
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return apperrors.Wrap(apperrors.ErrUnavailable, err, "s3 delete object")
	}
	return nil
}

// URL returns PUBLIC_BASE_URL joined with the key when configured,
// otherwise a presigned GET URL.
func (s *S3StorageService) URL(ctx context.Context, p string) (string, error) {
	key, err := cleanBlobPath(p)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		segments := strings.Split(key, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return strings.TrimSuffix(s.publicBaseURL, "/") + "/" + strings.Join(segments, "/"), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignExpiry))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrUnavailable, err, "s3 presign")
	}
	return req.URL, nil
}
