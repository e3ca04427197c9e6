package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"mobilechat/internal/apperrors"
)

// ErrPasswordTooLong is returned for secrets bcrypt cannot hash (over 72 bytes).
var ErrPasswordTooLong = apperrors.New(apperrors.ErrInvalidArgument, "password must be at most 72 bytes")

// PasswordHasher 使用 bcrypt 对密码进行哈希处理。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher at cost, clamped to bcrypt's range.
// Tests pass bcrypt.MinCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash 返回密码的 bcrypt 哈希值。
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	return string(bytes), err
}

// Compare 验证提供的密码是否与其 bcrypt 哈希值匹配。匹配区分大小写。
func (h *PasswordHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
