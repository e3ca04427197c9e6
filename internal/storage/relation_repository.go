package storage

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobilechat/internal/models"
)

type gormRelationRepository struct {
	db *gorm.DB
}

// NewGormRelationRepository creates a new GORM-based RelationRepository.
func NewGormRelationRepository(db *gorm.DB) RelationRepository {
	return &gormRelationRepository{db: db}
}

func (r *gormRelationRepository) Add(ctx context.Context, ownerID, peerID string, kind models.RelationKind) error {
	rel := models.UserRelation{OwnerID: ownerID, PeerID: peerID, Kind: kind, CreatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error
	return translateError(err, "add relation")
}

func (r *gormRelationRepository) Remove(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("owner_id = ? AND peer_id = ? AND kind = ?", ownerID, peerID, kind).
		Delete(&models.UserRelation{})
	if res.Error != nil {
		return false, translateError(res.Error, "remove relation")
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRelationRepository) Has(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserRelation{}).
		Where("owner_id = ? AND peer_id = ? AND kind = ?", ownerID, peerID, kind).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "check relation")
	}
	return count > 0, nil
}

func (r *gormRelationRepository) Peers(ctx context.Context, ownerID string, kind models.RelationKind) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.UserRelation{}).
		Where("owner_id = ? AND kind = ?", ownerID, kind).
		Order("peer_id").
		Pluck("peer_id", &ids).Error
	return ids, translateError(err, "list relation peers")
}

// RemoveAll 删除用户作为任一端的所有关系边。
func (r *gormRelationRepository) RemoveAll(ctx context.Context, userID string) ([]string, error) {
	var rels []models.UserRelation
	db := r.db.WithContext(ctx)
	if err := db.Where("owner_id = ? OR peer_id = ?", userID, userID).Find(&rels).Error; err != nil {
		return nil, translateError(err, "load user relations")
	}
	if err := db.Where("owner_id = ? OR peer_id = ?", userID, userID).Delete(&models.UserRelation{}).Error; err != nil {
		return nil, translateError(err, "delete user relations")
	}
	return otherEnds(rels, userID), nil
}

func otherEnds(rels []models.UserRelation, userID string) []string {
	seen := make(map[string]struct{})
	for _, rel := range rels {
		other := rel.PeerID
		if other == userID {
			other = rel.OwnerID
		}
		if other != userID {
			seen[other] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
