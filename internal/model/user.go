package model

import (
	"strings"
	"time"
)

// User is a Telegram chat that owns tasks. Notifications go to TelegramID.
type User struct {
	ID            uint  `gorm:"primaryKey"`
	TelegramID    int64 `gorm:"uniqueIndex"`
	FirstName     string
	LastName      string
	Username      string
	DigestEnabled bool `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName picks the friendliest non-empty name.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return "@" + name
	}
	return "there"
}
