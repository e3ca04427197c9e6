package models

import "time"

// RelationKind 定义了用户关系的种类。
type RelationKind string

const (
	// RelationFriend: owner and peer are friends. Always stored in both directions.
	RelationFriend RelationKind = "friend"
	// RelationOutgoing: owner sent a pending request to peer.
	RelationOutgoing RelationKind = "outgoing"
	// RelationIncoming: owner received a pending request from peer.
	RelationIncoming RelationKind = "incoming"
)

// AllRelationKinds lists every kind, in a fixed order.
var AllRelationKinds = []RelationKind{RelationFriend, RelationOutgoing, RelationIncoming}

// UserRelation is one directed edge of the social graph. A pending request
// from a to b is the pair (a,b,outgoing) and (b,a,incoming); a friendship
// is (a,b,friend) and (b,a,friend).
type UserRelation struct {
	OwnerID   string       `gorm:"primaryKey;type:varchar(128)"`
	PeerID    string       `gorm:"primaryKey;type:varchar(128);index"`
	Kind      RelationKind `gorm:"primaryKey;type:varchar(16)"`
	CreatedAt time.Time
}

func (UserRelation) TableName() string {
	return "user_relations"
}
