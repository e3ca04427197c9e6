package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/models"
	"mobilechat/internal/storage"
)

var (
	ErrInvalidCredentials = apperrors.New(apperrors.ErrUnauthorized, "invalid email or password")
	ErrNotAuthenticated   = apperrors.New(apperrors.ErrUnauthorized, "not authenticated")
	ErrEmailRegistered    = apperrors.New(apperrors.ErrAlreadyExists, "email already registered")
)

// Session is the result of a successful sign in.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenVerifier checks bearer tokens on incoming requests.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// IdentityProvider owns accounts and sessions. Profiles live elsewhere and
// are keyed by the user id returned from SignUp.
type IdentityProvider interface {
	TokenVerifier
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	DeleteAccount(ctx context.Context, userID string) error
}

// LocalProvider authenticates against bcrypt credentials in the store and
// issues HS256 tokens.
type LocalProvider struct {
	creds     storage.CredentialRepository
	hasher    *PasswordHasher
	cfg       config.AuthConfig
	blacklist TokenBlacklist
	now       func() time.Time
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(creds storage.CredentialRepository, hasher *PasswordHasher, cfg config.AuthConfig, blacklist TokenBlacklist) *LocalProvider {
	return &LocalProvider{creds: creds, hasher: hasher, cfg: cfg, blacklist: blacklist, now: time.Now}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (string, error) {
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	cred := &models.Credential{
		UserID:       uuid.NewString(),
		Email:        models.NormalizeEmail(email),
		PasswordHash: hash,
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return "", ErrEmailRegistered
		}
		return "", fmt.Errorf("保存凭据失败: %w", err)
	}
	return cred.UserID, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := p.creds.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.hasher.Compare(cred.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	token, claims, err := GenerateToken(cred.UserID, cred.Email, p.cfg, p.now())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: cred.UserID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify 验证令牌，并检查其是否已被吊销。
func (p *LocalProvider) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseToken(token, p.cfg, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	if p.blacklist != nil {
		revoked, err := p.blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			// 无法确认时拒绝
			return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "检查 Token 黑名单失败")
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrNotAuthenticated)
		}
	}
	// 账户删除后，其未过期的 Token 也不再有效
	if _, err := p.creds.GetByUserID(ctx, claims.UserID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: account deleted", ErrNotAuthenticated)
		}
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "检查账户失败")
	}
	return claims, nil
}

// SignOut revokes token until its original expiry.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.Verify(ctx, token)
	if err != nil {
		return err
	}
	if p.blacklist == nil {
		return nil
	}
	if err := p.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperrors.Wrap(apperrors.ErrUnavailable, err, "吊销 Token 失败")
	}
	return nil
}

func (p *LocalProvider) DeleteAccount(ctx context.Context, userID string) error {
	return p.creds.Delete(ctx, userID)
}
