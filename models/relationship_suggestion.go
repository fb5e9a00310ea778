package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Suggestion workflow states. Alle außer pending sind terminal.
const (
	SuggestionPending  = "pending"
	SuggestionApproved = "approved"
	SuggestionRejected = "rejected"
	SuggestionMerged   = "merged"
)

// Vorgeschlagene Beziehungstypen zwischen zwei Tags.
const (
	RelationRelated     = "related"
	RelationToolOf      = "tool_of"
	RelationTechniqueOf = "technique_of"
	RelationPartOf      = "part_of"
)

// RelationshipSuggestion ist ein Kanten-Kandidat im Tag-Graphen.
// EntityA <= EntityB (kanonisches Paar); pro Paar existiert höchstens
// eine pending Suggestion, erzwungen durch den partiellen Unique-Index
// idx_suggestions_pending_pair (siehe AutoMigrate). AgreeCount und
// DisagreeCount sind Caches über dem Vote-Ledger und werden bei jeder
// Vote-Mutation neu berechnet.
type RelationshipSuggestion struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EntityA string `json:"entity_a" gorm:"index:idx_suggestions_pair;size:128;not null"`
	EntityB string `json:"entity_b" gorm:"index:idx_suggestions_pair;size:128;not null"`

	SuggestedType     string  `json:"suggested_type" gorm:"size:32;not null"`
	SuggestedStrength float64 `json:"suggested_strength"`
	SuggestedBy       *string `json:"suggested_by,omitempty" gorm:"size:36"` // null = automatisch erkannt
	SuggestionReason  string  `json:"suggestion_reason,omitempty" gorm:"type:text"`

	AgreeCount    int `json:"agree_count" gorm:"default:0"`
	DisagreeCount int `json:"disagree_count" gorm:"default:0"`

	Status      string     `json:"status" gorm:"size:16;index;default:'pending'"`
	DecidedBy   *string    `json:"decided_by,omitempty" gorm:"size:36"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty" gorm:"type:text"`
	MergedInto  *string    `json:"merged_into,omitempty" gorm:"size:36"`
}

// NetVotes ist das Standard-Ranking-Signal der Moderations-Queue.
func (s *RelationshipSuggestion) NetVotes() int {
	return s.AgreeCount - s.DisagreeCount
}

func (s *RelationshipSuggestion) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (RelationshipSuggestion) TableName() string {
	return "relationship_suggestions"
}
