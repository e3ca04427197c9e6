package storage

import (
	"context"

	"mobilechat/internal/models"
)

// Store groups the repositories of one backend. Repository methods report
// failures through the apperrors kinds: ErrNotFound for a missing record,
// ErrAlreadyExists for a unique key collision, ErrUnavailable for anything
// the backend could not complete.
type Store interface {
	Users() UserRepository
	Relations() RelationRepository
	Indexes() IndexRepository
	Rooms() RoomRepository
	Messages() MessageRepository
	Credentials() CredentialRepository

	// WithTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls every write back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository 定义了用户资料的数据操作。
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetMany(ctx context.Context, ids []string) ([]*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// RelationRepository stores directed edges of the social graph.
type RelationRepository interface {
	// Add is idempotent.
	Add(ctx context.Context, ownerID, peerID string, kind models.RelationKind) error
	// Remove reports whether an edge was deleted.
	Remove(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error)
	Has(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error)
	// Peers returns the peer ids of owner's edges of kind, sorted.
	Peers(ctx context.Context, ownerID string, kind models.RelationKind) ([]string, error)
	// RemoveAll deletes every edge userID takes part in, on either end,
	// and returns the distinct ids of the other ends.
	RemoveAll(ctx context.Context, userID string) ([]string, error)
}

// IndexRepository maps unique email and nickname keys to user ids.
type IndexRepository interface {
	PutEmail(ctx context.Context, email, userID string) error
	GetEmail(ctx context.Context, email string) (string, error)
	DeleteEmail(ctx context.Context, email string) error
	PutNickname(ctx context.Context, nickname, userID string) error
	GetNickname(ctx context.Context, nickname string) (string, error)
	DeleteNickname(ctx context.Context, nickname string) error
}

// RoomRepository 定义了聊天室及其成员的数据操作。
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	// List returns rooms oldest first.
	List(ctx context.Context) ([]*models.Room, error)
	// Delete removes the room and its memberships.
	Delete(ctx context.Context, id string) error
	// AddMember is idempotent.
	AddMember(ctx context.Context, roomID, userID string) error
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	// RemoveUser drops userID from every room it belongs to.
	RemoveUser(ctx context.Context, userID string) error
}

// MessageRepository 定义了消息数据操作的接口。
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// Last returns the message with the highest seq in the room.
	Last(ctx context.Context, roomID string) (*models.Message, error)
	// ListSince returns messages ordered by (timestamp, seq). A nil since
	// returns the whole room; otherwise only timestamp > *since.
	ListSince(ctx context.Context, roomID string, since *int64) ([]*models.Message, error)
	FindByClientID(ctx context.Context, roomID, senderID, clientMessageID string) (*models.Message, error)
	DeleteByRoom(ctx context.Context, roomID string) error
}

// CredentialRepository stores password logins.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	GetByUserID(ctx context.Context, userID string) (*models.Credential, error)
	Delete(ctx context.Context, userID string) error
}
