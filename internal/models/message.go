package models

import "time"

// MessageType 定义了消息的类型。
type MessageType string

const (
	TextMessageType  MessageType = "text"
	ImageMessageType MessageType = "image"
)

// Message 代表存储在数据库中的聊天消息。
// Exactly one of Text and ImageURL is set. Within a room, messages are
// ordered by (Timestamp, Seq); Seq is strictly increasing per room.
type Message struct {
	ID              string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RoomID          string      `gorm:"type:varchar(64);not null;uniqueIndex:idx_room_seq,priority:1;index:idx_room_ts,priority:1" json:"roomId"`
	Seq             int64       `gorm:"not null;uniqueIndex:idx_room_seq,priority:2" json:"seq"`
	SenderID        string      `gorm:"type:varchar(128);not null" json:"senderId"`
	SenderName      string      `gorm:"type:varchar(255)" json:"senderName"`
	Type            MessageType `gorm:"type:varchar(16);not null" json:"type"`
	Text            string      `gorm:"type:text" json:"text,omitempty"`
	ImageURL        string      `gorm:"type:varchar(1024)" json:"imageUrl,omitempty"`
	Timestamp       int64       `gorm:"not null;index:idx_room_ts,priority:2" json:"timestamp"` // epoch millis
	ClientMessageID string      `gorm:"type:varchar(128);index" json:"clientMessageId,omitempty"`
	CreatedAt       time.Time   `json:"-"`
}

func (Message) TableName() string {
	return "messages"
}
