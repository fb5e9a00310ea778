package services

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"linkboard/models"
)

// Actor ist die pro Request aufgelöste Identität. nil = anonym.
type Actor struct {
	UserID   string
	Username string
	Role     string
}

// IsModerator meldet, ob der Actor Moderations-Befugnis trägt.
// Die Rollen-Hierarchie ist additiv: admin impliziert moderator.
func (a *Actor) IsModerator() bool {
	return a != nil && (a.Role == models.RoleModerator || a.Role == models.RoleAdmin)
}

// ActorService löst Session-Tokens zu Actors auf.
type ActorService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewActorService(db *gorm.DB, logger *zap.Logger) *ActorService {
	return &ActorService{DB: db, Logger: logger}
}

// Resolve gibt den Actor zum Token zurück oder nil bei leerem, unbekanntem
// oder abgelaufenem Token. Auflösungsfehler sind nie fatal: eine anonyme
// Einreichung ist erlaubt und landet einfach in pending.
func (s *ActorService) Resolve(token string) *Actor {
	if token == "" {
		return nil
	}

	var session models.Session
	if err := s.DB.Where("token = ?", token).First(&session).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Warn("Session lookup failed", zap.Error(err))
		}
		return nil
	}
	if time.Now().After(session.ExpiresAt) {
		return nil
	}

	var user models.User
	if err := s.DB.Where("id = ?", session.UserID).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Logger.Warn("User lookup failed", zap.String("user_id", session.UserID), zap.Error(err))
		}
		return nil
	}

	return &Actor{UserID: user.ID, Username: user.Username, Role: user.Role}
}
