package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/models"
)

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error, "create user")
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "get user")
	}
	return &user, nil
}

// GetMany returns the users that exist among ids, ordered by id.
func (r *gormUserRepository) GetMany(ctx context.Context, ids []string) ([]*models.User, error) {
	users := []*models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error
	return users, translateError(err, "get users")
}

func (r *gormUserRepository) List(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	err := r.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, translateError(err, "list users")
}

// Update writes the profile columns of an existing user.
func (r *gormUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Select("email", "name", "bio", "photo_url", "updated_at").
		Updates(user)
	if res.Error != nil {
		return translateError(res.Error, "update user")
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "user %s not found", user.ID)
	}
	return nil
}

func (r *gormUserRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error
	return translateError(err, "delete user")
}
