package storage

import (
	"context"

	"gorm.io/gorm"

	"mobilechat/internal/models"
)

type gormIndexRepository struct {
	db *gorm.DB
}

// NewGormIndexRepository creates a new GORM-based IndexRepository.
func NewGormIndexRepository(db *gorm.DB) IndexRepository {
	return &gormIndexRepository{db: db}
}

func (r *gormIndexRepository) PutEmail(ctx context.Context, email, userID string) error {
	err := r.db.WithContext(ctx).Create(&models.EmailIndexEntry{Email: email, UserID: userID}).Error
	return translateError(err, "index email")
}

func (r *gormIndexRepository) GetEmail(ctx context.Context, email string) (string, error) {
	var entry models.EmailIndexEntry
	if err := r.db.WithContext(ctx).First(&entry, "email = ?", email).Error; err != nil {
		return "", translateError(err, "resolve email")
	}
	return entry.UserID, nil
}

func (r *gormIndexRepository) DeleteEmail(ctx context.Context, email string) error {
	err := r.db.WithContext(ctx).Delete(&models.EmailIndexEntry{}, "email = ?", email).Error
	return translateError(err, "unindex email")
}

func (r *gormIndexRepository) PutNickname(ctx context.Context, nickname, userID string) error {
	err := r.db.WithContext(ctx).Create(&models.NicknameIndexEntry{Nickname: nickname, UserID: userID}).Error
	return translateError(err, "index nickname")
}

func (r *gormIndexRepository) GetNickname(ctx context.Context, nickname string) (string, error) {
	var entry models.NicknameIndexEntry
	if err := r.db.WithContext(ctx).First(&entry, "nickname = ?", nickname).Error; err != nil {
		return "", translateError(err, "resolve nickname")
	}
	return entry.UserID, nil
}

func (r *gormIndexRepository) DeleteNickname(ctx context.Context, nickname string) error {
	err := r.db.WithContext(ctx).Delete(&models.NicknameIndexEntry{}, "nickname = ?", nickname).Error
	return translateError(err, "unindex nickname")
}
