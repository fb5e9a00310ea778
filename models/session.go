package models

import "time"

// Session bindet ein opakes Token an einen User. Abgelaufene Sessions
// werden bei der Auflösung wie anonyme Anfragen behandelt.
type Session struct {
	Token     string    `json:"token" gorm:"primaryKey;size:128"`
	UserID    string    `json:"user_id" gorm:"size:36;index;not null"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Session) TableName() string {
	return "sessions"
}
