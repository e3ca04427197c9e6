package storage

import (
	"context"

	"gorm.io/gorm"

	"mobilechat/internal/models"
)

type gormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GORM-based CredentialRepository.
func NewGormCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepository{db: db}
}

func (r *gormCredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	return translateError(r.db.WithContext(ctx).Create(cred).Error, "create credential")
}

func (r *gormCredentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).First(&cred, "email = ?", email).Error; err != nil {
		return nil, translateError(err, "get credential")
	}
	return &cred, nil
}

func (r *gormCredentialRepository) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).First(&cred, "user_id = ?", userID).Error; err != nil {
		return nil, translateError(err, "get credential")
	}
	return &cred, nil
}

func (r *gormCredentialRepository) Delete(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Delete(&models.Credential{}, "user_id = ?", userID).Error
	return translateError(err, "delete credential")
}
