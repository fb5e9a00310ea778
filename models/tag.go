package models

import "time"

// Tag ist ein kuratiertes Schlagwort. UsageCount ist abgeleitet und wird
// periodisch aus Content.Tags neu berechnet, nie inline hochgezählt.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug       string `json:"slug" gorm:"uniqueIndex;size:64;not null"` // lowercase, alnum + hyphen
	Name       string `json:"name" gorm:"not null"`
	UsageCount int    `json:"usage_count" gorm:"default:0"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Tag) TableName() string {
	return "tags"
}
