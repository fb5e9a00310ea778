package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rollen sind additiv: admin impliziert moderator.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User ist ein Community-Mitglied.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`

	Username string `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Role     string `json:"role" gorm:"size:16;default:'member'"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (User) TableName() string {
	return "users"
}
