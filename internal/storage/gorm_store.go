package storage

import (
	"context"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by db.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository             { return NewGormUserRepository(s.db) }
func (s *gormStore) Relations() RelationRepository     { return NewGormRelationRepository(s.db) }
func (s *gormStore) Indexes() IndexRepository          { return NewGormIndexRepository(s.db) }
func (s *gormStore) Rooms() RoomRepository             { return NewGormRoomRepository(s.db) }
func (s *gormStore) Messages() MessageRepository       { return NewGormMessageRepository(s.db) }
func (s *gormStore) Credentials() CredentialRepository { return NewGormCredentialRepository(s.db) }

func (s *gormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormStore{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		// begin or commit failed
		return translateError(err, "transaction")
	}
	return err
}
