package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/auth"
	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
	"mobilechat/internal/models"
	"mobilechat/internal/storage"
)

const minPasswordLength = 8

// SessionTerminator closes the live connections of a user.
type SessionTerminator interface {
	DisconnectUser(userID string)
}

// AccountService 定义了注册、登录、注销和删除账户的流程。
type AccountService interface {
	// Register signs up with the identity provider and creates the profile.
	// A failed profile creation removes the new identity again.
	Register(ctx context.Context, email, password, nickname string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Logout(ctx context.Context, token string) error
	// DeleteAccount re-checks password, then deletes the profile, its graph
	// edges, the profile photo and the identity, and closes live sessions.
	DeleteAccount(ctx context.Context, userID, password string) error
	UploadProfilePhoto(ctx context.Context, userID string, r io.Reader, size int64, mimeType string) (*models.User, error)
}

type accountService struct {
	identity  auth.IdentityProvider
	directory UserDirectory
	blobs     imtypes.BlobStore
	sessions  SessionTerminator
	maxBytes  int64
	log       *zap.Logger
}

// NewAccountService creates a new AccountService instance. sessions may be nil.
func NewAccountService(
	identity auth.IdentityProvider,
	directory UserDirectory,
	blobs imtypes.BlobStore,
	sessions SessionTerminator,
	storageCfg config.StorageConfig,
	log *zap.Logger,
) AccountService {
	return &accountService{
		identity:  identity,
		directory: directory,
		blobs:     blobs,
		sessions:  sessions,
		maxBytes:  int64(storageCfg.MaxFileSizeMB) << 20,
		log:       log.Named("account"),
	}
}

func (s *accountService) Register(ctx context.Context, email, password, nickname string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrEmailInvalid
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if name := strings.TrimSpace(nickname); name != "" {
		if err := ValidateNickname(name); err != nil {
			return nil, err
		}
	}

	userID, err := s.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user, err := s.directory.CreateUser(ctx, userID, email, nickname, "")
	if err != nil {
		if rbErr := s.identity.DeleteAccount(ctx, userID); rbErr != nil {
			s.log.Error("回滚注册失败", zap.String("userId", userID), zap.Error(rbErr))
		}
		return nil, err
	}
	s.log.Info("用户注册成功", zap.String("userId", userID))
	return user, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	return s.identity.SignIn(ctx, email, password)
}

func (s *accountService) Logout(ctx context.Context, token string) error {
	return s.identity.SignOut(ctx, token)
}

func (s *accountService) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	// 重新验证身份
	session, err := s.identity.SignIn(ctx, user.Email, password)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return auth.ErrInvalidCredentials
	}
	if err := s.identity.SignOut(ctx, session.Token); err != nil {
		s.log.Warn("吊销重新验证的 Token 失败", zap.String("userId", userID), zap.Error(err))
	}

	if err := s.directory.DeleteUser(ctx, userID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, storage.ProfileImagePath(userID)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.log.Warn("删除头像失败", zap.String("userId", userID), zap.Error(err))
	}
	if err := s.identity.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("删除账户凭据失败: %w", err)
	}
	if s.sessions != nil {
		s.sessions.DisconnectUser(userID)
	}
	s.log.Info("账户已删除", zap.String("userId", userID))
	return nil
}

// UploadProfilePhoto 保存头像到 profile_images/{userId}.jpg 并更新资料中的 photoUrl。
func (s *accountService) UploadProfilePhoto(ctx context.Context, userID string, r io.Reader, size int64, mimeType string) (*models.User, error) {
	if _, ok := imageExtensions[mimeType]; !ok {
		return nil, ErrUnsupportedImage
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	if _, err := s.directory.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	info, err := s.blobs.Put(ctx, storage.ProfileImagePath(userID), r, size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("上传头像失败: %w", err)
	}
	return s.directory.UpdateProfile(ctx, userID, ProfileUpdate{PhotoURL: &info.URL})
}
