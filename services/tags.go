package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"linkboard/models"
)

// TagService pflegt die Tag-Taxonomie und den abgeleiteten UsageCount.
type TagService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewTagService(db *gorm.DB, logger *zap.Logger) *TagService {
	return &TagService{DB: db, Logger: logger}
}

// NormalizeSlug normalisiert ein Tag auf lowercase Alphanumerik + Hyphen.
// Leeres Ergebnis bedeutet: kein gültiges Tag.
func NormalizeSlug(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	lastHyphen := false
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// NormalizeSlugs normalisiert und dedupliziert eine Tag-Liste;
// die Eingabereihenfolge bleibt erhalten.
func NormalizeSlugs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		slug := NormalizeSlug(r)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// Ensure legt fehlende Tag-Zeilen für die Slugs an (DoNothing bei Konflikt).
func (s *TagService) Ensure(slugs []string) error {
	if len(slugs) == 0 {
		return nil
	}
	tags := make([]models.Tag, 0, len(slugs))
	for _, slug := range slugs {
		tags = append(tags, models.Tag{Slug: slug, Name: slug})
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&tags).Error
}

// List gibt alle Tags zurück, meistgenutzte zuerst.
func (s *TagService) List() ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.DB.Order("usage_count desc, slug asc").Find(&tags).Error; err != nil {
		s.Logger.Error("Tag listing failed", zap.Error(err))
		return nil, persistenceErr()
	}
	return tags, nil
}

// RecountUsage berechnet usage_count aller Tags aus der Content-Tag-
// Mitgliedschaft neu. Das Ledger (Content.Tags) ist Ground Truth, der
// Zähler nur eine Lese-Optimierung; darum läuft die Neuberechnung lazy
// per Cron statt transaktional mit jedem Content-Write.
func (s *TagService) RecountUsage(ctx context.Context) (int, error) {
	var contents []models.Content
	if err := s.DB.WithContext(ctx).
		Where("approval_status <> ?", models.ApprovalRejected).
		Select("id", "tags").Find(&contents).Error; err != nil {
		s.Logger.Error("Content scan for tag recount failed", zap.Error(err))
		return 0, persistenceErr()
	}

	counts := make(map[string]int)
	for _, c := range contents {
		for _, slug := range c.Tags {
			counts[slug]++
		}
	}

	var tags []models.Tag
	if err := s.DB.WithContext(ctx).Find(&tags).Error; err != nil {
		return 0, persistenceErr()
	}

	updated := 0
	for _, tag := range tags {
		want := counts[tag.Slug]
		if want == tag.UsageCount {
			continue
		}
		if err := s.DB.WithContext(ctx).Model(&models.Tag{}).
			Where("id = ?", tag.ID).
			Update("usage_count", want).Error; err != nil {
			s.Logger.Error("Tag usage update failed", zap.String("slug", tag.Slug), zap.Error(err))
			continue
		}
		updated++
	}

	s.Logger.Info("Tag usage recount completed",
		zap.Int("tags_seen", len(tags)),
		zap.Int("tags_updated", updated))
	return updated, nil
}
