package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a registered chat account.
// PasswordHash never leaves the server: it is excluded from JSON so account
// listings sent to administrators carry no password material.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"` // UUID
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Nickname     string    `gorm:"not null" json:"nickname"`
	Role         Role      `gorm:"type:text;not null;default:user" json:"role"`
	IsBlocked    bool      `json:"isBlocked"`
	BlockEndTime int64     `json:"-"` // unix seconds, 0 = until unbanned
	BlockLevel   int       `json:"-"`
	LastBanDate  int64     `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return
}

// BlockedAt reports whether the account is banned at the given moment.
// A ban whose end time has passed no longer counts.
func (u *User) BlockedAt(now time.Time) bool {
	if !u.IsBlocked {
		return false
	}
	return u.BlockEndTime == 0 || now.Unix() < u.BlockEndTime
}

// Identity returns the authenticated identity bound to a connection of this account.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.Nickname, Role: u.Role}
}
