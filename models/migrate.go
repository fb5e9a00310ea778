package models

import "gorm.io/gorm"

// AutoMigrate legt das komplette Schema an. Der partielle Unique-Index
// auf relationship_suggestions lässt sich nicht über Struct-Tags
// ausdrücken: pro kanonischem Paar höchstens eine pending Suggestion,
// vom Store erzwungen, nicht nur per Lookup geprüft.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Session{},
		&Content{},
		&Tag{},
		&RelationshipVote{},
		&RelationshipSuggestion{},
	); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_suggestions_pending_pair
		ON relationship_suggestions (entity_a, entity_b) WHERE status = 'pending'`).Error
}
