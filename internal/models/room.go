package models

import "time"

// Room 代表一个聊天室。
type Room struct {
	ID           string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string `gorm:"type:varchar(100);not null" json:"name"`
	Secure       bool   `gorm:"not null;default:false" json:"secure"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
	CreatorID    string `gorm:"type:varchar(128);not null;index" json:"creatorId"`
	Timestamps

	MemberIDs []string `gorm:"-" json:"members"`
}

func (Room) TableName() string {
	return "rooms"
}

// Summary strips the room down to what the lobby list shows.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{ID: r.ID, Name: r.Name, Secure: r.Secure}
}

// RoomSummary 是聊天室列表中的一项。
type RoomSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secure bool   `json:"secure"`
}

// RoomMember records that a user may read and post in a room.
type RoomMember struct {
	RoomID   string    `gorm:"primaryKey;type:varchar(64)"`
	UserID   string    `gorm:"primaryKey;type:varchar(128);index"`
	JoinedAt time.Time `gorm:"not null"`
}

func (RoomMember) TableName() string {
	return "room_members"
}
