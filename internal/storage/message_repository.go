package storage

import (
	"context"

	"gorm.io/gorm"

	"mobilechat/internal/models"
)

// gormMessageRepository 使用 GORM 实现 MessageRepository。
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建一个新的基于 GORM 的 MessageRepository。
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// Create 在数据库中创建一条新的消息记录。
func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return translateError(r.db.WithContext(ctx).Create(message).Error, "create message")
}

func (r *gormMessageRepository) Last(ctx context.Context, roomID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seq DESC").First(&message).Error
	if err != nil {
		return nil, translateError(err, "get last message")
	}
	return &message, nil
}

// ListSince 按 (timestamp, seq) 升序返回消息。
func (r *gormMessageRepository) ListSince(ctx context.Context, roomID string, since *int64) ([]*models.Message, error) {
	messages := []*models.Message{}
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if since != nil {
		query = query.Where("timestamp > ?", *since)
	}
	err := query.Order("timestamp ASC, seq ASC").Find(&messages).Error
	return messages, translateError(err, "list messages")
}

func (r *gormMessageRepository) FindByClientID(ctx context.Context, roomID, senderID, clientMessageID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND sender_id = ? AND client_message_id = ?", roomID, senderID, clientMessageID).
		First(&message).Error
	if err != nil {
		return nil, translateError(err, "find message by client id")
	}
	return &message, nil
}

func (r *gormMessageRepository) DeleteByRoom(ctx context.Context, roomID string) error {
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.Message{}).Error
	return translateError(err, "delete room messages")
}
