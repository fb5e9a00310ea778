package models

import "time"

const (
	VoteAgree    = "agree"
	VoteDisagree = "disagree"
)

// RelationshipVote ist eine Zeile im Vote-Ledger: genau eine Stimme pro
// (kanonisches Paar, Voter). Erneutes Abstimmen überschreibt per Upsert.
// Dasselbe Ledger trägt Content-Paare (UUIDs) und Tag-Paare (Slugs).
type RelationshipVote struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EntityA string `json:"entity_a" gorm:"index:idx_votes_pair_voter,unique;size:128;not null"`
	EntityB string `json:"entity_b" gorm:"index:idx_votes_pair_voter,unique;size:128;not null"`
	VoterID string `json:"voter_id" gorm:"index:idx_votes_pair_voter,unique;size:36;not null"`

	Vote   string `json:"vote" gorm:"size:16;not null"` // agree | disagree
	Reason string `json:"reason,omitempty" gorm:"type:text"`
}

func (RelationshipVote) TableName() string {
	return "relationship_votes"
}
