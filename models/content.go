package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Approval workflow states for submitted content.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Content ist ein von der Community eingereichter Link (Tweet, Video, Post)
// samt Plattform-Metadaten und Moderations-Workflow.
type Content struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Natürlicher Dedup-Schlüssel: (platform, platform_content_id)
	Platform          string `json:"platform" gorm:"index:idx_content_platform_cid,unique;size:32;not null"`
	PlatformContentID string `json:"platform_content_id" gorm:"index:idx_content_platform_cid,unique;size:256;not null"`
	URL               string `json:"url" gorm:"not null"`

	Title            string     `json:"title,omitempty"`
	Description      string     `json:"description,omitempty" gorm:"type:text"`
	ThumbnailURL     string     `json:"thumbnail_url,omitempty"`
	ContentCreatedAt *time.Time `json:"content_created_at,omitempty"`

	// Autor auf der Ursprungsplattform
	AuthorName      string `json:"author_name,omitempty"`
	AuthorUsername  string `json:"author_username,omitempty" gorm:"index"`
	AuthorURL       string `json:"author_url,omitempty"`
	AuthorAvatarURL string `json:"author_avatar_url,omitempty"`
	AuthorID        string `json:"author_id,omitempty"`

	// Klassifikation
	Tags           datatypes.JSONSlice[string] `json:"tags"`
	Channels       datatypes.JSONSlice[string] `json:"channels"`
	PrimaryChannel string                      `json:"primary_channel,omitempty" gorm:"index"`
	MediaAssets    datatypes.JSON              `json:"media_assets,omitempty"`
	Metadata       datatypes.JSON              `json:"metadata,omitempty"`

	// Herkunft
	SubmittedByUserID *string   `json:"submitted_by_user_id,omitempty" gorm:"size:36;index"`
	SubmittedAt       time.Time `json:"submitted_at"`

	// Moderations-Workflow: approved <=> approved_by und approved_at gesetzt
	ApprovalStatus string     `json:"approval_status" gorm:"size:16;index;default:'pending'"`
	ApprovedBy     *string    `json:"approved_by,omitempty" gorm:"size:36"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ApprovalReason string     `json:"approval_reason,omitempty"`
}

func (c *Content) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// TableName gibt explizit den Tabellennamen an.
func (Content) TableName() string {
	return "content"
}
