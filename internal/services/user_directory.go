package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/config"
	"mobilechat/internal/keylock"
	"mobilechat/internal/kafka"
	"mobilechat/internal/models"
	"mobilechat/internal/retry"
	"mobilechat/internal/storage"
)

const (
	nicknameMinRunes = 3
	nicknameMaxRunes = 20
	nicknameReserved = ".#[]$/"
)

// ProfileUpdate carries the fields to change. Nil or blank fields are left as they are.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

// GraphPurger removes every friend graph edge of a user.
type GraphPurger interface {
	PurgeUser(ctx context.Context, userID string) error
}

// DisplayNamer resolves the name shown next to a user's messages.
type DisplayNamer interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// UserDirectory 定义了用户资料及其邮箱、昵称索引的操作。
type UserDirectory interface {
	DisplayNamer
	CreateUser(ctx context.Context, id, email, displayName, photoURL string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	// ResolveByEmail and ResolveByNickname report absence as found == false with a nil error.
	ResolveByEmail(ctx context.Context, email string) (id string, found bool, err error)
	ResolveByNickname(ctx context.Context, nickname string) (id string, found bool, err error)
	DeleteUser(ctx context.Context, id string) error
	Summaries(ctx context.Context, ids []string) ([]models.UserSummary, error)
}

type userDirectory struct {
	store     storage.Store
	locks     *keylock.Locker
	graph     GraphPurger
	purges    eventSink
	kafkaOn   bool
	retry     retry.Policy
	sanitizer *bluemonday.Policy
	log       *zap.Logger
}

// NewUserDirectory 创建一个新的 UserDirectory 实例。
// Failed graph purges are queued on the KAFKA.PURGE_TOPIC when Kafka is enabled.
func NewUserDirectory(
	store storage.Store,
	locks *keylock.Locker,
	graph GraphPurger,
	producer kafka.MessageProducer,
	kafkaCfg config.KafkaConfig,
	policy retry.Policy,
	log *zap.Logger,
) UserDirectory {
	log = log.Named("user_directory")
	return &userDirectory{
		store:     store,
		locks:     locks,
		graph:     graph,
		purges:    newEventSink(producer, kafkaCfg.PurgeTopic, log),
		kafkaOn:   kafkaCfg.Enabled,
		retry:     policy,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log,
	}
}

// ValidateNickname checks the nickname rules: 3 to 20 characters, none of . # [ ] $ /.
func ValidateNickname(name string) error {
	n := utf8.RuneCountInString(name)
	if n < nicknameMinRunes || n > nicknameMaxRunes || strings.ContainsAny(name, nicknameReserved) {
		return ErrNicknameInvalid
	}
	return nil
}

func (d *userDirectory) CreateUser(ctx context.Context, id, email, displayName, photoURL string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserIDRequired
	}
	email = models.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailInvalid
	}
	name := strings.TrimSpace(displayName)
	if name != "" {
		if err := ValidateNickname(name); err != nil {
			return nil, err
		}
	}

	user := &models.User{
		ID:             id,
		Email:          email,
		Name:           name,
		PhotoURL:       strings.TrimSpace(photoURL),
		Friends:        []string{},
		InvitedFriends: []string{},
		FriendRequests: []string{},
	}

	unlock := d.locks.Lock(profileKey(id))
	defer unlock()

	err := d.store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				return ErrUserExists
			}
			return err
		}
		if err := tx.Indexes().PutEmail(ctx, email, id); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}
		if name != "" {
			if err := tx.Indexes().PutNickname(ctx, name, id); err != nil {
				if errors.Is(err, apperrors.ErrAlreadyExists) {
					return ErrNicknameTaken
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("创建用户 %s 失败: %w", id, err)
	}
	d.log.Info("用户已创建", zap.String("userId", id))
	return user, nil
}

// GetUser 获取用户资料以及好友、已发送和已收到的请求集合。
func (d *userDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := retry.Value(ctx, d.retry, func() (*models.User, error) {
		u, err := d.store.Users().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u.Friends, err = d.store.Relations().Peers(ctx, id, models.RelationFriend); err != nil {
			return nil, err
		}
		if u.InvitedFriends, err = d.store.Relations().Peers(ctx, id, models.RelationOutgoing); err != nil {
			return nil, err
		}
		if u.FriendRequests, err = d.store.Relations().Peers(ctx, id, models.RelationIncoming); err != nil {
			return nil, err
		}
		return u, nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", id, err)
	}
	return user, nil
}

// UpdateProfile 更新用户资料。A changed name swaps the nickname index entry in
// the same transaction; concurrent edits of one user run one after another.
func (d *userDirectory) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	name := trimmed(upd.Name)
	if name != "" {
		if err := ValidateNickname(name); err != nil {
			return nil, err
		}
	}
	bio := trimmed(upd.Bio)
	if bio != "" {
		bio = strings.TrimSpace(d.sanitizer.Sanitize(bio))
	}
	photo := trimmed(upd.PhotoURL)

	unlock := d.locks.Lock(profileKey(id))
	err := d.store.WithTx(ctx, func(tx storage.Store) error {
		user, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if name != "" && name != user.Name {
			if err := d.swapNickname(ctx, tx, id, user.Name, name); err != nil {
				return err
			}
			user.Name = name
		}
		if bio != "" {
			user.Bio = bio
		}
		if photo != "" {
			user.PhotoURL = photo
		}
		return tx.Users().Update(ctx, user)
	})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("更新用户 %s 资料失败: %w", id, err)
	}
	return d.GetUser(ctx, id)
}

func (d *userDirectory) swapNickname(ctx context.Context, tx storage.Store, id, oldName, newName string) error {
	owner, err := tx.Indexes().GetNickname(ctx, newName)
	switch {
	case err == nil && owner != id:
		return ErrNicknameTaken
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return err
	}
	if oldName = strings.TrimSpace(oldName); oldName != "" {
		if err := d.deleteOwnedNickname(ctx, tx, oldName, id); err != nil {
			return err
		}
	}
	if owner == id {
		return nil
	}
	if err := tx.Indexes().PutNickname(ctx, newName, id); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return ErrNicknameTaken
		}
		return err
	}
	return nil
}

// deleteOwnedNickname drops the index entry only if it still points at id.
func (d *userDirectory) deleteOwnedNickname(ctx context.Context, tx storage.Store, name, id string) error {
	owner, err := tx.Indexes().GetNickname(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if owner != id {
		return nil
	}
	return tx.Indexes().DeleteNickname(ctx, name)
}

func (d *userDirectory) ResolveByEmail(ctx context.Context, email string) (string, bool, error) {
	key := models.NormalizeEmail(email)
	if key == "" {
		return "", false, nil
	}
	return d.resolve(ctx, func() (string, error) { return d.store.Indexes().GetEmail(ctx, key) })
}

// ResolveByNickname 精确匹配昵称（区分大小写）。
func (d *userDirectory) ResolveByNickname(ctx context.Context, nickname string) (string, bool, error) {
	key := strings.TrimSpace(nickname)
	if key == "" {
		return "", false, nil
	}
	return d.resolve(ctx, func() (string, error) { return d.store.Indexes().GetNickname(ctx, key) })
}

func (d *userDirectory) resolve(ctx context.Context, get func() (string, error)) (string, bool, error) {
	id, err := retry.Value(ctx, d.retry, get)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// DeleteUser removes the profile and both index entries, then purges the
// user's graph edges. Deleting an absent user only re-runs the purge.
func (d *userDirectory) DeleteUser(ctx context.Context, id string) error {
	unlock := d.locks.Lock(profileKey(id))
	err := d.store.WithTx(ctx, func(tx storage.Store) error {
		user, err := tx.Users().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Indexes().DeleteEmail(ctx, models.NormalizeEmail(user.Email)); err != nil {
			return err
		}
		if name := strings.TrimSpace(user.Name); name != "" {
			if err := d.deleteOwnedNickname(ctx, tx, name, id); err != nil {
				return err
			}
		}
		if err := tx.Rooms().RemoveUser(ctx, id); err != nil {
			return err
		}
		return tx.Users().Delete(ctx, id)
	})
	unlock()
	if err != nil {
		return fmt.Errorf("删除用户 %s 失败: %w", id, err)
	}

	purgeErr := retry.Do(ctx, d.retry, func() error { return d.graph.PurgeUser(ctx, id) })
	if purgeErr == nil {
		d.log.Info("用户已删除", zap.String("userId", id))
		return nil
	}
	if !d.kafkaOn {
		return fmt.Errorf("清理用户 %s 的好友关系失败: %w", id, purgeErr)
	}
	d.log.Warn("好友关系清理失败，已加入重试队列", zap.String("userId", id), zap.Error(purgeErr))
	if err := d.purges.send(ctx, id, PurgeEvent{UserID: id, RequestedAt: time.Now()}); err != nil {
		return apperrors.Wrap(apperrors.ErrUnavailable, errors.Join(purgeErr, err), "清理好友关系失败且无法加入重试队列")
	}
	return nil
}

func (d *userDirectory) DisplayName(ctx context.Context, id string) (string, error) {
	user, err := retry.Value(ctx, d.retry, func() (*models.User, error) { return d.store.Users().GetByID(ctx, id) })
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return user.DisplayName(), nil
}

// Summaries returns the cards of the ids that exist, unknown ids are skipped.
func (d *userDirectory) Summaries(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}
	users, err := retry.Value(ctx, d.retry, func() ([]*models.User, error) { return d.store.Users().GetMany(ctx, ids) })
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
