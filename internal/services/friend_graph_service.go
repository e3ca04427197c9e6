package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/keylock"
	"mobilechat/internal/kafka"
	"mobilechat/internal/models"
	"mobilechat/internal/retry"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
)

// FriendGraphService 定义了好友请求及好友关系的操作。
//
// Per pair the state moves NONE -> PENDING -> FRIENDS. A pending request is
// left by CancelRequest (sender) or DeclineRequest (receiver), a friendship
// by Unfriend. Every pair mutation holds the locks of both users.
type FriendGraphService interface {
	GraphPurger
	SendRequest(ctx context.Context, senderID, receiverID string) error
	CancelRequest(ctx context.Context, senderID, receiverID string) error
	DeclineRequest(ctx context.Context, receiverID, senderID string) error
	// AcceptRequest is a no-op when the request no longer exists.
	AcceptRequest(ctx context.Context, receiverID, senderID string) error
	Unfriend(ctx context.Context, userID, friendID string) error

	ListFriends(ctx context.Context, userID string) ([]string, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]string, error)
	ListOutgoingRequests(ctx context.Context, userID string) ([]string, error)
	SearchCandidates(ctx context.Context, userID, query string) ([]models.UserSummary, error)

	SubscribeFriends(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error)
	SubscribeIncoming(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error)
	SubscribeOutgoing(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error)
}

type friendGraphService struct {
	store  storage.Store
	locks  *keylock.Locker
	hub    *subscription.Hub
	events eventSink
	retry  retry.Policy
	log    *zap.Logger
}

// NewFriendGraphService creates a new FriendGraphService instance.
func NewFriendGraphService(
	store storage.Store,
	locks *keylock.Locker,
	hub *subscription.Hub,
	producer kafka.MessageProducer,
	kafkaCfg config.KafkaConfig,
	policy retry.Policy,
	log *zap.Logger,
) FriendGraphService {
	log = log.Named("friend_graph")
	return &friendGraphService{
		store:  store,
		locks:  locks,
		hub:    hub,
		events: newEventSink(producer, kafkaCfg.NotificationsTopic, log),
		retry:  policy,
		log:    log,
	}
}

func relationTopic(userID string, kind models.RelationKind) subscription.Topic {
	switch kind {
	case models.RelationFriend:
		return subscription.FriendsTopic(userID)
	case models.RelationOutgoing:
		return subscription.OutgoingTopic(userID)
	default:
		return subscription.IncomingTopic(userID)
	}
}

// lockPair must be released before the caller returns.
func (s *friendGraphService) lockPair(a, b string) func() {
	return s.locks.Lock(userKey(a), userKey(b))
}

func (s *friendGraphService) SendRequest(ctx context.Context, senderID, receiverID string) error {
	if senderID == "" || receiverID == "" {
		return ErrUserIDRequired
	}
	if senderID == receiverID {
		return ErrFriendRequestSelf
	}

	unlock := s.lockPair(senderID, receiverID)
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		for _, id := range []string{senderID, receiverID} {
			if _, err := tx.Users().GetByID(ctx, id); err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrUserNotFound, id)
				}
				return err
			}
		}
		rel := tx.Relations()
		friends, err := rel.Has(ctx, senderID, receiverID, models.RelationFriend)
		if err != nil {
			return err
		}
		if friends {
			return ErrAlreadyFriends
		}
		for _, pair := range [][2]string{{senderID, receiverID}, {receiverID, senderID}} {
			pending, err := rel.Has(ctx, pair[0], pair[1], models.RelationOutgoing)
			if err != nil {
				return err
			}
			if pending {
				return ErrFriendRequestExists
			}
		}
		if err := rel.Add(ctx, senderID, receiverID, models.RelationOutgoing); err != nil {
			return err
		}
		return rel.Add(ctx, receiverID, senderID, models.RelationIncoming)
	})
	if err == nil {
		s.publish(ctx, senderID, models.RelationOutgoing)
		s.publish(ctx, receiverID, models.RelationIncoming)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("发送好友请求失败: %w", err)
	}

	s.log.Info("好友请求已发送", zap.String("sender", senderID), zap.String("receiver", receiverID))
	s.events.notify(ctx, receiverID, NotificationEvent{Type: EventFriendRequestSent, ActorID: senderID, TargetID: receiverID})
	return nil
}

func (s *friendGraphService) CancelRequest(ctx context.Context, senderID, receiverID string) error {
	return s.withdraw(ctx, senderID, receiverID)
}

func (s *friendGraphService) DeclineRequest(ctx context.Context, receiverID, senderID string) error {
	return s.withdraw(ctx, senderID, receiverID)
}

// withdraw removes the pending request from sender to receiver, if any.
func (s *friendGraphService) withdraw(ctx context.Context, senderID, receiverID string) error {
	unlock := s.lockPair(senderID, receiverID)
	defer unlock()

	changed := false
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		changed, err = removePending(ctx, tx, senderID, receiverID)
		return err
	})
	if err != nil {
		return fmt.Errorf("撤销好友请求失败: %w", err)
	}
	if changed {
		s.publish(ctx, senderID, models.RelationOutgoing)
		s.publish(ctx, receiverID, models.RelationIncoming)
	}
	return nil
}

func removePending(ctx context.Context, tx storage.Store, senderID, receiverID string) (bool, error) {
	out, err := tx.Relations().Remove(ctx, senderID, receiverID, models.RelationOutgoing)
	if err != nil {
		return false, err
	}
	in, err := tx.Relations().Remove(ctx, receiverID, senderID, models.RelationIncoming)
	if err != nil {
		return false, err
	}
	return out || in, nil
}

func (s *friendGraphService) AcceptRequest(ctx context.Context, receiverID, senderID string) error {
	unlock := s.lockPair(senderID, receiverID)
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		removed, err := removePending(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if !removed {
			return errNoPendingRequest
		}
		if err := tx.Relations().Add(ctx, senderID, receiverID, models.RelationFriend); err != nil {
			return err
		}
		return tx.Relations().Add(ctx, receiverID, senderID, models.RelationFriend)
	})
	if err == nil {
		s.publish(ctx, senderID, models.RelationOutgoing, models.RelationFriend)
		s.publish(ctx, receiverID, models.RelationIncoming, models.RelationFriend)
	}
	unlock()

	if errors.Is(err, apperrors.ErrConflict) {
		s.log.Debug("好友请求已被处理，忽略接受操作", zap.String("sender", senderID), zap.String("receiver", receiverID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("接受好友请求失败: %w", err)
	}
	s.log.Info("好友请求已接受", zap.String("sender", senderID), zap.String("receiver", receiverID))
	s.events.notify(ctx, senderID, NotificationEvent{Type: EventFriendRequestAccepted, ActorID: receiverID, TargetID: senderID})
	return nil
}

func (s *friendGraphService) Unfriend(ctx context.Context, userID, friendID string) error {
	unlock := s.lockPair(userID, friendID)
	defer unlock()

	changed := false
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		a, err := tx.Relations().Remove(ctx, userID, friendID, models.RelationFriend)
		if err != nil {
			return err
		}
		b, err := tx.Relations().Remove(ctx, friendID, userID, models.RelationFriend)
		if err != nil {
			return err
		}
		changed = a || b
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除好友失败: %w", err)
	}
	if changed {
		s.publish(ctx, userID, models.RelationFriend)
		s.publish(ctx, friendID, models.RelationFriend)
	}
	return nil
}

// PurgeUser 删除该用户作为任意一端的全部关系。Safe to repeat.
func (s *friendGraphService) PurgeUser(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(userKey(userID))
	var peers []string
	err := s.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		peers, err = tx.Relations().RemoveAll(ctx, userID)
		return err
	})
	if err == nil {
		s.publish(ctx, userID, models.AllRelationKinds...)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("清理用户 %s 的关系失败: %w", userID, err)
	}

	for _, peer := range peers {
		unlockPeer := s.locks.Lock(userKey(peer))
		s.publish(ctx, peer, models.AllRelationKinds...)
		unlockPeer()
	}
	if len(peers) > 0 {
		s.log.Info("用户关系已清理", zap.String("userId", userID), zap.Int("peers", len(peers)))
	}
	return nil
}

// publish pushes fresh lists to live subscribers. Callers hold userID's lock.
func (s *friendGraphService) publish(ctx context.Context, userID string, kinds ...models.RelationKind) {
	for _, kind := range kinds {
		topic := relationTopic(userID, kind)
		if !s.hub.HasSubscribers(topic) {
			continue
		}
		ids, err := s.list(ctx, userID, kind)
		if err != nil {
			s.log.Warn("加载关系列表失败", zap.String("topic", string(topic)), zap.Error(err))
			s.hub.PublishError(topic, err)
			continue
		}
		s.hub.Publish(topic, ids)
	}
}

func (s *friendGraphService) list(ctx context.Context, userID string, kind models.RelationKind) ([]string, error) {
	return retry.Value(ctx, s.retry, func() ([]string, error) {
		return s.store.Relations().Peers(ctx, userID, kind)
	})
}

func (s *friendGraphService) ListFriends(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, userID, models.RelationFriend)
}

func (s *friendGraphService) ListIncomingRequests(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, userID, models.RelationIncoming)
}

func (s *friendGraphService) ListOutgoingRequests(ctx context.Context, userID string) ([]string, error) {
	return s.list(ctx, userID, models.RelationOutgoing)
}

// SearchCandidates 返回可以添加为好友的用户：排除自己、已有好友和双向的待处理请求，
// 按显示名称不区分大小写地做子串匹配。A blank query matches everyone.
func (s *friendGraphService) SearchCandidates(ctx context.Context, userID, query string) ([]models.UserSummary, error) {
	excluded := map[string]struct{}{userID: {}}
	for _, kind := range models.AllRelationKinds {
		ids, err := s.list(ctx, userID, kind)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			excluded[id] = struct{}{}
		}
	}
	users, err := retry.Value(ctx, s.retry, func() ([]*models.User, error) { return s.store.Users().List(ctx) })
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := []models.UserSummary{}
	for _, u := range users {
		if _, skip := excluded[u.ID]; skip {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.DisplayName()), q) {
			continue
		}
		out = append(out, u.Summary())
	}
	return out, nil
}

func (s *friendGraphService) subscribe(ctx context.Context, userID string, kind models.RelationKind, fn subscription.Handler) (*subscription.Subscription, error) {
	unlock := s.locks.Lock(userKey(userID))
	defer unlock()
	ids, err := s.list(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(relationTopic(userID, kind), ids, fn), nil
}

func (s *friendGraphService) SubscribeFriends(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error) {
	return s.subscribe(ctx, userID, models.RelationFriend, fn)
}

func (s *friendGraphService) SubscribeIncoming(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error) {
	return s.subscribe(ctx, userID, models.RelationIncoming, fn)
}

func (s *friendGraphService) SubscribeOutgoing(ctx context.Context, userID string, fn subscription.Handler) (*subscription.Subscription, error) {
	return s.subscribe(ctx, userID, models.RelationOutgoing, fn)
}
