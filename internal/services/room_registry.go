package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/auth"
	"mobilechat/internal/keylock"
	"mobilechat/internal/models"
	"mobilechat/internal/retry"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
)

// RoomRegistry 定义了聊天室及其成员的操作。
type RoomRegistry interface {
	// CreateRoom returns the new room's id. The creator is its first member.
	CreateRoom(ctx context.Context, creatorID, name string, secure bool, password string) (string, error)
	ListRooms(ctx context.Context) ([]models.RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// JoinRoom checks password against secure rooms. Joining twice is a no-op.
	JoinRoom(ctx context.Context, userID, roomID, password string) error
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	// DeleteRoom is reserved to the creator and drops the room's messages.
	DeleteRoom(ctx context.Context, userID, roomID string) error
	SubscribeRoomList(ctx context.Context, fn subscription.Handler) (*subscription.Subscription, error)
}

type roomRegistry struct {
	store  storage.Store
	locks  *keylock.Locker
	hub    *subscription.Hub
	hasher *auth.PasswordHasher
	retry  retry.Policy
	log    *zap.Logger
}

// NewRoomRegistry creates a new RoomRegistry instance.
// Room passwords are kept as bcrypt hashes produced by hasher.
func NewRoomRegistry(
	store storage.Store,
	locks *keylock.Locker,
	hub *subscription.Hub,
	hasher *auth.PasswordHasher,
	policy retry.Policy,
	log *zap.Logger,
) RoomRegistry {
	return &roomRegistry{
		store:  store,
		locks:  locks,
		hub:    hub,
		hasher: hasher,
		retry:  policy,
		log:    log.Named("room_registry"),
	}
}

func (r *roomRegistry) CreateRoom(ctx context.Context, creatorID, name string, secure bool, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameRequired
	}
	if creatorID == "" {
		return "", ErrUserIDRequired
	}
	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      name,
		Secure:    secure,
		CreatorID: creatorID,
	}
	if secure {
		if strings.TrimSpace(password) == "" {
			return "", ErrRoomPasswordRequired
		}
		hash, err := r.hasher.Hash(password)
		if err != nil {
			return "", err
		}
		room.PasswordHash = hash
	}

	unlock := r.locks.Lock(roomListKey)
	defer unlock()
	err := r.store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		return tx.Rooms().AddMember(ctx, room.ID, creatorID)
	})
	if err != nil {
		return "", fmt.Errorf("创建聊天室失败: %w", err)
	}
	r.publishRoomList(ctx)
	r.log.Info("聊天室已创建", zap.String("roomId", room.ID), zap.String("creator", creatorID), zap.Bool("secure", secure))
	return room.ID, nil
}

func (r *roomRegistry) loadSummaries(ctx context.Context) ([]models.RoomSummary, error) {
	rooms, err := retry.Value(ctx, r.retry, func() ([]*models.Room, error) { return r.store.Rooms().List(ctx) })
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Summary())
	}
	return out, nil
}

// ListRooms 返回所有聊天室，从旧到新。
func (r *roomRegistry) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	rooms, err := r.loadSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取聊天室列表失败: %w", err)
	}
	return rooms, nil
}

func (r *roomRegistry) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := retry.Value(ctx, r.retry, func() (*models.Room, error) { return r.store.Rooms().GetByID(ctx, roomID) })
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (r *roomRegistry) JoinRoom(ctx context.Context, userID, roomID, password string) error {
	unlock := r.locks.Lock(roomKey(roomID))
	defer unlock()

	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Secure && !r.hasher.Compare(room.PasswordHash, password) {
		r.log.Info("聊天室密码错误", zap.String("roomId", roomID), zap.String("userId", userID))
		return ErrRoomPasswordMismatch
	}
	for _, m := range room.MemberIDs {
		if m == userID {
			return nil
		}
	}
	if err := r.store.Rooms().AddMember(ctx, roomID, userID); err != nil {
		return fmt.Errorf("加入聊天室失败: %w", err)
	}
	return nil
}

func (r *roomRegistry) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return retry.Value(ctx, r.retry, func() (bool, error) { return r.store.Rooms().IsMember(ctx, roomID, userID) })
}

func (r *roomRegistry) Members(ctx context.Context, roomID string) ([]string, error) {
	if _, err := r.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return retry.Value(ctx, r.retry, func() ([]string, error) { return r.store.Rooms().Members(ctx, roomID) })
}

func (r *roomRegistry) DeleteRoom(ctx context.Context, userID, roomID string) error {
	unlock := r.locks.Lock(roomListKey, roomKey(roomID))
	defer unlock()

	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != userID {
		return ErrNotRoomCreator
	}
	err = r.store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.Messages().DeleteByRoom(ctx, roomID); err != nil {
			return err
		}
		return tx.Rooms().Delete(ctx, roomID)
	})
	if err != nil {
		return fmt.Errorf("删除聊天室失败: %w", err)
	}
	r.publishRoomList(ctx)
	r.hub.PublishError(subscription.MessagesTopic(roomID), ErrRoomNotFound)
	r.log.Info("聊天室已删除", zap.String("roomId", roomID))
	return nil
}

// publishRoomList expects the room list lock to be held.
func (r *roomRegistry) publishRoomList(ctx context.Context) {
	topic := subscription.RoomsTopic()
	if !r.hub.HasSubscribers(topic) {
		return
	}
	rooms, err := r.loadSummaries(ctx)
	if err != nil {
		r.log.Warn("加载聊天室列表失败", zap.Error(err))
		r.hub.PublishError(topic, err)
		return
	}
	r.hub.Publish(topic, rooms)
}

func (r *roomRegistry) SubscribeRoomList(ctx context.Context, fn subscription.Handler) (*subscription.Subscription, error) {
	unlock := r.locks.Lock(roomListKey)
	defer unlock()
	rooms, err := r.loadSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return r.hub.Subscribe(subscription.RoomsTopic(), rooms, fn), nil
}
