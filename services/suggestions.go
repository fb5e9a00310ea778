package services

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"linkboard/models"
)

// Decide-Aktionen. "modify" ist approve mit Overrides; beides wird in
// einem einzigen konditionalen UPDATE mit dem Statuswechsel angewendet.
const (
	DecideApprove = "approve"
	DecideModify  = "modify"
	DecideReject  = "reject"
	DecideMerge   = "merge"
)

// Sortierungen für die Moderations-Queue.
const (
	SortByVotes     = "votes"
	SortByCreatedAt = "created_at"
)

// DecideOverrides sind die optionalen Payload-Overrides des
// Modify-then-Approve-Pfads. MergeInto gehört zur merge-Aktion.
type DecideOverrides struct {
	Strength  *float64 `json:"strength"`
	Type      *string  `json:"relationshipType"`
	MergeInto *string  `json:"mergeInto"`
}

// BatchFailure beschreibt ein fehlgeschlagenes Item eines Batches.
type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult ist der Partial-Failure-Report eines Batches: Aufrufer
// können gezielt die fehlgeschlagene Teilmenge erneut versuchen.
type BatchResult struct {
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failures  []BatchFailure `json:"failures"`
}

// SuggestionService ist die Moderations-Queue für Tag-Beziehungs-
// Vorschläge: propose, list, decide, decideBatch.
type SuggestionService struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Votes  *VoteService
}

func NewSuggestionService(db *gorm.DB, logger *zap.Logger, votes *VoteService) *SuggestionService {
	return &SuggestionService{DB: db, Logger: logger, Votes: votes}
}

// Propose legt einen neuen Kanten-Kandidaten an. Existiert für das
// kanonische Paar bereits eine pending Suggestion, wird der Vorschlag
// als Duplikat abgelehnt; der Proposer soll stattdessen dort abstimmen.
func (s *SuggestionService) Propose(entityA, entityB, relType string, strength float64, actor *Actor, reason string) (*models.RelationshipSuggestion, error) {
	low, high, err := NormalizePair(entityA, entityB)
	if err != nil {
		return nil, err
	}
	if !validRelationType(relType) {
		return nil, Errf(CodeValidation, "unknown relationship type %q", relType)
	}
	if strength < 0 || strength > 1 {
		return nil, Errf(CodeValidation, "strength must be within [0,1], got %v", strength)
	}

	var existing models.RelationshipSuggestion
	err = s.DB.Where("entity_a = ? AND entity_b = ? AND status = ?", low, high, models.SuggestionPending).
		First(&existing).Error
	if err == nil {
		return nil, Errf(CodeDuplicatePending, "a pending suggestion for (%s, %s) already exists: %s", low, high, existing.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.Logger.Error("Pending suggestion lookup failed", zap.Error(err))
		return nil, persistenceErr()
	}

	suggestion := models.RelationshipSuggestion{
		EntityA:           low,
		EntityB:           high,
		SuggestedType:     relType,
		SuggestedStrength: strength,
		SuggestionReason:  reason,
		Status:            models.SuggestionPending,
	}
	if actor != nil {
		suggestion.SuggestedBy = &actor.UserID
	}
	// Das Ledger kann schon Stimmen für das Paar tragen; Cache-Spalten
	// direkt aus der Ground Truth initialisieren.
	if tally, terr := s.Votes.countPair(low, high); terr == nil {
		suggestion.AgreeCount = int(tally.Agree)
		suggestion.DisagreeCount = int(tally.Disagree)
	} else {
		s.Logger.Warn("Initial tally read failed, starting at zero",
			zap.String("entity_a", low),
			zap.String("entity_b", high),
			zap.Error(terr))
	}
	if err := s.DB.Create(&suggestion).Error; err != nil {
		// Der partielle Unique-Index fängt den Race zweier gleichzeitiger
		// Proposals, die beide keine pending Suggestion gesehen haben.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Errf(CodeDuplicatePending, "a pending suggestion for (%s, %s) already exists", low, high)
		}
		s.Logger.Error("Suggestion create failed", zap.Error(err))
		return nil, persistenceErr()
	}

	s.Logger.Info("Relationship suggested",
		zap.String("id", suggestion.ID),
		zap.String("entity_a", low),
		zap.String("entity_b", high),
		zap.String("type", relType))
	return &suggestion, nil
}

// List liefert eine Seite der Queue plus Gesamtzahl für die Pagination.
// sortBy=votes ordnet nach Netto-Stimmen absteigend, Gleichstand nach
// created_at aufsteigend, damit die Pagination stabil bleibt.
func (s *SuggestionService) List(status, sortBy string, limit, offset int) ([]models.RelationshipSuggestion, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := s.DB.Model(&models.RelationshipSuggestion{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.Logger.Error("Suggestion count failed", zap.Error(err))
		return nil, 0, persistenceErr()
	}

	switch sortBy {
	case SortByVotes:
		query = query.Order("(agree_count - disagree_count) desc, created_at asc")
	default:
		query = query.Order("created_at desc")
	}

	var suggestions []models.RelationshipSuggestion
	if err := query.Limit(limit).Offset(offset).Find(&suggestions).Error; err != nil {
		s.Logger.Error("Suggestion listing failed", zap.Error(err))
		return nil, 0, persistenceErr()
	}
	return suggestions, total, nil
}

// Decide führt eine einzelne Moderator-Entscheidung aus. Statuswechsel
// und Overrides stehen im selben konditionalen UPDATE: entweder beides
// oder nichts, und nur solange der Status noch pending ist.
func (s *SuggestionService) Decide(id, action string, overrides *DecideOverrides, notes string, actor *Actor) (*models.RelationshipSuggestion, error) {
	if actor == nil {
		return nil, Errf(CodeUnauthenticated, "a session is required to decide suggestions")
	}
	if !actor.IsModerator() {
		return nil, Errf(CodeForbidden, "deciding suggestions requires the moderator role")
	}

	now := time.Now()
	updates := map[string]any{
		"decided_by":   actor.UserID,
		"decided_at":   now,
		"review_notes": notes,
	}

	switch action {
	case DecideApprove, DecideModify:
		updates["status"] = models.SuggestionApproved
		if overrides != nil {
			if overrides.Strength != nil {
				if *overrides.Strength < 0 || *overrides.Strength > 1 {
					return nil, Errf(CodeValidation, "strength must be within [0,1], got %v", *overrides.Strength)
				}
				updates["suggested_strength"] = *overrides.Strength
			}
			if overrides.Type != nil {
				if !validRelationType(*overrides.Type) {
					return nil, Errf(CodeValidation, "unknown relationship type %q", *overrides.Type)
				}
				updates["suggested_type"] = *overrides.Type
			}
		}
	case DecideReject:
		updates["status"] = models.SuggestionRejected
	case DecideMerge:
		if overrides == nil || overrides.MergeInto == nil || *overrides.MergeInto == "" {
			return nil, Errf(CodeValidation, "merge requires mergeInto with the id of an approved suggestion")
		}
		var target models.RelationshipSuggestion
		if err := s.DB.Where("id = ?", *overrides.MergeInto).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, Errf(CodeNotFound, "merge target %s not found", *overrides.MergeInto)
			}
			return nil, persistenceErr()
		}
		if target.Status != models.SuggestionApproved {
			return nil, Errf(CodeValidation, "merge target %s is %s, not approved", target.ID, target.Status)
		}
		updates["status"] = models.SuggestionMerged
		updates["merged_into"] = target.ID
	default:
		return nil, Errf(CodeValidation, "unknown decide action %q", action)
	}

	res := s.DB.Model(&models.RelationshipSuggestion{}).
		Where("id = ? AND status = ?", id, models.SuggestionPending).
		Updates(updates)
	if res.Error != nil {
		s.Logger.Error("Suggestion decide update failed", zap.String("id", id), zap.Error(res.Error))
		return nil, persistenceErr()
	}
	if res.RowsAffected == 0 {
		var current models.RelationshipSuggestion
		if err := s.DB.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, Errf(CodeNotFound, "suggestion %s not found", id)
			}
			return nil, persistenceErr()
		}
		return nil, Errf(CodeInvalidTransition, "suggestion %s is already %s", id, current.Status)
	}

	var suggestion models.RelationshipSuggestion
	if err := s.DB.Where("id = ?", id).First(&suggestion).Error; err != nil {
		return nil, persistenceErr()
	}

	s.Logger.Info("Suggestion decided",
		zap.String("id", id),
		zap.String("action", action),
		zap.String("status", suggestion.Status),
		zap.String("moderator", actor.UserID))
	return &suggestion, nil
}

// DecideBatch verarbeitet jede ID unabhängig; ein fehlgeschlagenes Item
// bricht den Batch nicht ab. Per-Item-Overrides gibt es nur im
// Einzelpfad, darum sind hier nur approve und reject erlaubt.
func (s *SuggestionService) DecideBatch(ids []string, action, notes string, actor *Actor) (*BatchResult, error) {
	if actor == nil {
		return nil, Errf(CodeUnauthenticated, "a session is required to decide suggestions")
	}
	if !actor.IsModerator() {
		return nil, Errf(CodeForbidden, "deciding suggestions requires the moderator role")
	}
	if len(ids) == 0 {
		return nil, Errf(CodeValidation, "suggestionIds must not be empty")
	}
	if action != DecideApprove && action != DecideReject {
		return nil, Errf(CodeValidation, "batch action must be %q or %q", DecideApprove, DecideReject)
	}

	result := &BatchResult{Failures: []BatchFailure{}}
	for _, id := range ids {
		result.Processed++
		if _, err := s.Decide(id, action, nil, notes, actor); err != nil {
			msg := err.Error()
			if se, ok := AsServiceError(err); ok {
				msg = string(se.Code)
			}
			result.Failures = append(result.Failures, BatchFailure{ID: id, Error: msg})
			continue
		}
		result.Succeeded++
	}

	s.Logger.Info("Suggestion batch decided",
		zap.String("action", action),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

// Get liefert eine Suggestion per ID.
func (s *SuggestionService) Get(id string) (*models.RelationshipSuggestion, error) {
	var suggestion models.RelationshipSuggestion
	if err := s.DB.Where("id = ?", id).First(&suggestion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errf(CodeNotFound, "suggestion %s not found", id)
		}
		return nil, persistenceErr()
	}
	return &suggestion, nil
}

func validRelationType(t string) bool {
	switch t {
	case models.RelationRelated, models.RelationToolOf, models.RelationTechniqueOf, models.RelationPartOf:
		return true
	}
	return false
}
