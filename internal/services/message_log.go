package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/imtypes"
	"mobilechat/internal/keylock"
	"mobilechat/internal/kafka"
	"mobilechat/internal/models"
	"mobilechat/internal/retry"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
)

// imageExtensions lists the image types accepted for chat and profile uploads.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AppendInput 是发送一条消息所需的参数。Exactly one of Text and ImageURL is set.
type AppendInput struct {
	RoomID     string
	SenderID   string
	SenderName string
	Text       string
	ImageURL   string
	// ClientMessageID makes a resend return the stored message instead of appending twice.
	ClientMessageID string
}

// MessageLog 定义了聊天室消息日志的操作。
type MessageLog interface {
	Append(ctx context.Context, in AppendInput) (*models.Message, error)
	// Tail returns messages with timestamp > *since (all when since is nil),
	// ordered by timestamp then insertion.
	Tail(ctx context.Context, roomID string, since *int64) ([]*models.Message, error)
	// Subscribe delivers the room's full ordered log now and after every append.
	Subscribe(ctx context.Context, roomID string, fn subscription.Handler) (*subscription.Subscription, error)
	UploadImage(ctx context.Context, roomID, senderID string, r io.Reader, size int64, mimeType string) (*models.Message, error)
}

// MessageLogOption customizes a MessageLog.
type MessageLogOption func(*messageLog)

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) MessageLogOption {
	return func(l *messageLog) { l.now = now }
}

// WithIDGenerator replaces the UUIDv7 message id generator.
func WithIDGenerator(gen func() (string, error)) MessageLogOption {
	return func(l *messageLog) { l.newID = gen }
}

type messageLog struct {
	store    storage.Store
	locks    *keylock.Locker
	hub      *subscription.Hub
	names    DisplayNamer
	blobs    imtypes.BlobStore
	maxBytes int64
	events   eventSink
	retry    retry.Policy
	log      *zap.Logger
	now      func() time.Time
	newID    func() (string, error)
}

// NewMessageLog creates a new MessageLog instance. names fills in a blank
// sender name; blobs receives uploaded chat images.
func NewMessageLog(
	store storage.Store,
	locks *keylock.Locker,
	hub *subscription.Hub,
	names DisplayNamer,
	blobs imtypes.BlobStore,
	storageCfg config.StorageConfig,
	producer kafka.MessageProducer,
	kafkaCfg config.KafkaConfig,
	policy retry.Policy,
	log *zap.Logger,
	opts ...MessageLogOption,
) MessageLog {
	log = log.Named("message_log")
	l := &messageLog{
		store:    store,
		locks:    locks,
		hub:      hub,
		names:    names,
		blobs:    blobs,
		maxBytes: int64(storageCfg.MaxFileSizeMB) << 20,
		events:   newEventSink(producer, kafkaCfg.NotificationsTopic, log),
		retry:    policy,
		log:      log,
		now:      time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *messageLog) Append(ctx context.Context, in AppendInput) (*models.Message, error) {
	image := strings.TrimSpace(in.ImageURL)
	// 只用去空白后的文本判断是否为空，存储时保留原文
	if (strings.TrimSpace(in.Text) == "") == (image == "") {
		return nil, ErrMessageContent
	}
	senderName := strings.TrimSpace(in.SenderName)
	if senderName == "" && l.names != nil {
		if name, err := l.names.DisplayName(ctx, in.SenderID); err == nil {
			senderName = name
		}
	}

	unlock := l.locks.Lock(roomKey(in.RoomID))
	defer unlock()

	if err := l.checkMember(ctx, in.RoomID, in.SenderID); err != nil {
		return nil, err
	}
	if in.ClientMessageID != "" {
		prev, err := l.store.Messages().FindByClientID(ctx, in.RoomID, in.SenderID, in.ClientMessageID)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("检查重复消息失败: %w", err)
		}
	}

	id, err := l.newID()
	if err != nil {
		return nil, fmt.Errorf("生成消息 ID 失败: %w", err)
	}
	msg := &models.Message{
		ID:              id,
		RoomID:          in.RoomID,
		SenderID:        in.SenderID,
		SenderName:      senderName,
		Type:            models.TextMessageType,
		Text:            in.Text,
		ImageURL:        image,
		ClientMessageID: in.ClientMessageID,
	}
	if image != "" {
		msg.Type = models.ImageMessageType
	}

	err = l.store.WithTx(ctx, func(tx storage.Store) error {
		msg.Timestamp = l.now().UnixMilli()
		msg.Seq = 1
		last, err := tx.Messages().Last(ctx, in.RoomID)
		switch {
		case err == nil:
			msg.Seq = last.Seq + 1
			if last.Timestamp > msg.Timestamp {
				// 时钟回拨时沿用上一条消息的时间戳
				msg.Timestamp = last.Timestamp
			}
		case !errors.Is(err, apperrors.ErrNotFound):
			return err
		}
		return tx.Messages().Create(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("保存消息失败: %w", err)
	}
	l.publish(ctx, in.RoomID)

	l.events.notify(ctx, in.RoomID, NotificationEvent{
		Type:      EventMessageCreated,
		ActorID:   in.SenderID,
		RoomID:    in.RoomID,
		MessageID: msg.ID,
	})
	return msg, nil
}

func (l *messageLog) checkMember(ctx context.Context, roomID, userID string) error {
	if _, err := l.store.Rooms().GetByID(ctx, roomID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	member, err := l.store.Rooms().IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotRoomMember
	}
	return nil
}

func (l *messageLog) Tail(ctx context.Context, roomID string, since *int64) ([]*models.Message, error) {
	msgs, err := retry.Value(ctx, l.retry, func() ([]*models.Message, error) {
		return l.store.Messages().ListSince(ctx, roomID, since)
	})
	if err != nil {
		return nil, fmt.Errorf("获取聊天室 %s 消息失败: %w", roomID, err)
	}
	return msgs, nil
}

// publish expects the room lock to be held.
func (l *messageLog) publish(ctx context.Context, roomID string) {
	topic := subscription.MessagesTopic(roomID)
	if !l.hub.HasSubscribers(topic) {
		return
	}
	msgs, err := l.Tail(ctx, roomID, nil)
	if err != nil {
		l.log.Warn("加载消息列表失败", zap.String("roomId", roomID), zap.Error(err))
		l.hub.PublishError(topic, err)
		return
	}
	l.hub.Publish(topic, msgs)
}

func (l *messageLog) Subscribe(ctx context.Context, roomID string, fn subscription.Handler) (*subscription.Subscription, error) {
	unlock := l.locks.Lock(roomKey(roomID))
	defer unlock()
	msgs, err := l.Tail(ctx, roomID, nil)
	if err != nil {
		return nil, err
	}
	return l.hub.Subscribe(subscription.MessagesTopic(roomID), msgs, fn), nil
}

// UploadImage 将图片保存到 chat_images/{roomId}/ 下并追加一条图片消息。
func (l *messageLog) UploadImage(ctx context.Context, roomID, senderID string, r io.Reader, size int64, mimeType string) (*models.Message, error) {
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return nil, ErrUnsupportedImage
	}
	if l.maxBytes > 0 && size > l.maxBytes {
		return nil, ErrFileTooLarge
	}
	if err := l.checkMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	path := storage.ChatImagePath(roomID, uuid.NewString()+ext)
	info, err := l.blobs.Put(ctx, path, r, size, mimeType)
	if err != nil {
		return nil, fmt.Errorf("上传图片失败: %w", err)
	}
	msg, err := l.Append(ctx, AppendInput{RoomID: roomID, SenderID: senderID, ImageURL: info.URL})
	if err != nil {
		if delErr := l.blobs.Delete(ctx, info.Path); delErr != nil {
			l.log.Warn("清理未使用的图片失败", zap.String("path", info.Path), zap.Error(delErr))
		}
		return nil, err
	}
	return msg, nil
}
