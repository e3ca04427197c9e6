package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/models"
)

// gormRoomRepository 使用 GORM 实现 RoomRepository。
type gormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建一个新的基于 GORM 的 RoomRepository。
func NewGormRoomRepository(db *gorm.DB) RoomRepository {
	return &gormRoomRepository{db: db}
}

func (r *gormRoomRepository) Create(ctx context.Context, room *models.Room) error {
	return translateError(r.db.WithContext(ctx).Create(room).Error, "create room")
}

// GetByID 返回聊天室及其成员列表。
func (r *gormRoomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "get room")
	}
	members, err := r.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	room.MemberIDs = members
	return &room, nil
}

func (r *gormRoomRepository) List(ctx context.Context) ([]*models.Room, error) {
	rooms := []*models.Room{}
	err := r.db.WithContext(ctx).Order("created_at, id").Find(&rooms).Error
	return rooms, translateError(err, "list rooms")
}

func (r *gormRoomRepository) Delete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("room_id = ?", id).Delete(&models.RoomMember{}).Error; err != nil {
		return translateError(err, "delete room members")
	}
	res := db.Delete(&models.Room{}, "id = ?", id)
	if res.Error != nil {
		return translateError(res.Error, "delete room")
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "room %s not found", id)
	}
	return nil
}

// AddMember 添加成员，已是成员时不做任何事。
func (r *gormRoomRepository) AddMember(ctx context.Context, roomID, userID string) error {
	member := models.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
	return translateError(err, "add room member")
}

func (r *gormRoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "check room member")
	}
	return count > 0, nil
}

// RemoveUser 删除用户在所有聊天室中的成员记录。
func (r *gormRoomRepository) RemoveUser(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RoomMember{}).Error
	return translateError(err, "remove user memberships")
}

func (r *gormRoomRepository) Members(ctx context.Context, roomID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, translateError(err, "list room members")
}
