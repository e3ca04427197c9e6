package models

import "strings"

// User 代表一个用户的资料及其好友关系集合。
// Name doubles as the user's nickname and is unique when set.
type User struct {
	ID       string `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Email    string `gorm:"type:varchar(255);not null" json:"email"`
	Name     string `gorm:"type:varchar(100)" json:"name"`
	Bio      string `gorm:"type:text" json:"bio"`
	PhotoURL string `gorm:"type:varchar(1024)" json:"photoUrl"`
	Timestamps

	// 以下集合由 user_relations 表派生，不直接存储在 users 表中。
	Friends        []string `gorm:"-" json:"friends"`
	InvitedFriends []string `gorm:"-" json:"invitedFriends"`
	FriendRequests []string `gorm:"-" json:"friendRequests"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// DisplayName is the trimmed name, or the email when the name is blank.
func (u *User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return u.Email
}

// Summary returns the public card shown in lists.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.DisplayName(), PhotoURL: u.PhotoURL}
}

// UserSummary holds minimal public information about a user.
type UserSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// EmailIndexEntry maps a normalized email to the user owning it.
type EmailIndexEntry struct {
	Email  string `gorm:"primaryKey;type:varchar(255)"`
	UserID string `gorm:"type:varchar(128);not null;index"`
}

func (EmailIndexEntry) TableName() string {
	return "email_index"
}

// NicknameIndexEntry maps a nickname to the user owning it.
type NicknameIndexEntry struct {
	Nickname string `gorm:"primaryKey;type:varchar(100)"`
	UserID   string `gorm:"type:varchar(128);not null;index"`
}

func (NicknameIndexEntry) TableName() string {
	return "nickname_index"
}

// Credential is the password login record for a local account.
type Credential struct {
	UserID       string `gorm:"primaryKey;type:varchar(128)"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	Timestamps
}

func (Credential) TableName() string {
	return "credentials"
}

// NormalizeEmail lowercases and trims an address for use as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
