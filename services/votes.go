package services

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"linkboard/models"
)

// Tally sind die aggregierten Stimmen eines kanonischen Paars.
type Tally struct {
	Agree    int64 `json:"agree"`
	Disagree int64 `json:"disagree"`
	Net      int64 `json:"net"`
}

// VoteService ist das Vote-Ledger: eine Zeile pro (Paar, Voter),
// Upsert bei Konflikt, Tallies immer aus den Ledger-Zeilen gezählt.
type VoteService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewVoteService(db *gorm.DB, logger *zap.Logger) *VoteService {
	return &VoteService{DB: db, Logger: logger}
}

// Cast schreibt oder überschreibt die Stimme des Actors für das Paar.
// Erneutes Abstimmen ist idempotent bzw. last-write-wins; verschiedene
// Voter schreiben verschiedene Zeilen und brauchen kein Lock.
func (s *VoteService) Cast(entityA, entityB string, actor *Actor, vote, reason string) (*models.RelationshipVote, error) {
	if actor == nil {
		return nil, Errf(CodeUnauthenticated, "a session is required to vote")
	}
	if vote != models.VoteAgree && vote != models.VoteDisagree {
		return nil, Errf(CodeValidation, "vote must be %q or %q", models.VoteAgree, models.VoteDisagree)
	}
	low, high, err := NormalizePair(entityA, entityB)
	if err != nil {
		return nil, err
	}

	row := models.RelationshipVote{
		EntityA: low,
		EntityB: high,
		VoterID: actor.UserID,
		Vote:    vote,
		Reason:  reason,
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_a"}, {Name: "entity_b"}, {Name: "voter_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"vote":       vote,
			"reason":     reason,
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error; err != nil {
		s.Logger.Error("Vote upsert failed",
			zap.String("entity_a", low),
			zap.String("entity_b", high),
			zap.Error(err))
		return nil, persistenceErr()
	}

	s.refreshCachedTallies(low, high)

	// Nach einem Konflikt-Update trägt row keine verlässlichen IDs,
	// darum die Zeile für die Response frisch lesen.
	var fresh models.RelationshipVote
	if err := s.DB.Where("entity_a = ? AND entity_b = ? AND voter_id = ?", low, high, actor.UserID).
		First(&fresh).Error; err != nil {
		return nil, persistenceErr()
	}
	return &fresh, nil
}

// Get liefert die eigene Stimme des Actors oder nil, wenn keine existiert.
func (s *VoteService) Get(entityA, entityB string, actor *Actor) (*models.RelationshipVote, error) {
	if actor == nil {
		return nil, Errf(CodeUnauthenticated, "a session is required to read your vote")
	}
	low, high, err := NormalizePair(entityA, entityB)
	if err != nil {
		return nil, err
	}

	var vote models.RelationshipVote
	err = s.DB.Where("entity_a = ? AND entity_b = ? AND voter_id = ?", low, high, actor.UserID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr()
	}
	return &vote, nil
}

// Retract löscht die eigene Stimme. Löschen einer nicht vorhandenen
// Stimme ist kein Fehler.
func (s *VoteService) Retract(entityA, entityB string, actor *Actor) (bool, error) {
	if actor == nil {
		return false, Errf(CodeUnauthenticated, "a session is required to retract a vote")
	}
	low, high, err := NormalizePair(entityA, entityB)
	if err != nil {
		return false, err
	}

	res := s.DB.Where("entity_a = ? AND entity_b = ? AND voter_id = ?", low, high, actor.UserID).
		Delete(&models.RelationshipVote{})
	if res.Error != nil {
		s.Logger.Error("Vote delete failed", zap.Error(res.Error))
		return false, persistenceErr()
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	s.refreshCachedTallies(low, high)
	return true, nil
}

// TallyFor zählt die Ledger-Zeilen des kanonischen Paars.
func (s *VoteService) TallyFor(entityA, entityB string) (*Tally, error) {
	low, high, err := NormalizePair(entityA, entityB)
	if err != nil {
		return nil, err
	}
	return s.countPair(low, high)
}

func (s *VoteService) countPair(low, high string) (*Tally, error) {
	var agree, disagree int64
	pair := s.DB.Model(&models.RelationshipVote{}).
		Where("entity_a = ? AND entity_b = ?", low, high).
		Session(&gorm.Session{})
	if err := pair.Where("vote = ?", models.VoteAgree).Count(&agree).Error; err != nil {
		return nil, persistenceErr()
	}
	if err := pair.Where("vote = ?", models.VoteDisagree).Count(&disagree).Error; err != nil {
		return nil, persistenceErr()
	}
	return &Tally{Agree: agree, Disagree: disagree, Net: agree - disagree}, nil
}

// refreshCachedTallies schreibt die aus dem Ledger gezählten Werte auf
// jede pending Suggestion des Paars zurück, damit die Cache-Spalten nie
// von der Ground Truth wegdriften.
func (s *VoteService) refreshCachedTallies(low, high string) {
	tally, err := s.countPair(low, high)
	if err != nil {
		s.Logger.Warn("Tally recount failed",
			zap.String("entity_a", low),
			zap.String("entity_b", high))
		return
	}
	if err := s.DB.Model(&models.RelationshipSuggestion{}).
		Where("entity_a = ? AND entity_b = ? AND status = ?", low, high, models.SuggestionPending).
		Updates(map[string]any{
			"agree_count":    tally.Agree,
			"disagree_count": tally.Disagree,
		}).Error; err != nil {
		s.Logger.Warn("Cached tally update failed",
			zap.String("entity_a", low),
			zap.String("entity_b", high),
			zap.Error(err))
	}
}
