package services

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"linkboard/models"
)

// Submit-Aktionen in der Response.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Review-Aktionen für pending Content.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// ContentDraft ist das eingehende Submission-Payload. Pointer-Felder
// unterscheiden "Feld weggelassen" von "Feld explizit leer", damit der
// Upsert nur mitgesendete Felder patcht.
type ContentDraft struct {
	Platform          string `json:"platform"`
	PlatformContentID string `json:"platformContentId"`
	URL               string `json:"url"`

	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	ThumbnailURL     *string    `json:"thumbnailUrl"`
	ContentCreatedAt *time.Time `json:"contentCreatedAt"`

	AuthorName      *string `json:"authorName"`
	AuthorUsername  *string `json:"authorUsername"`
	AuthorURL       *string `json:"authorUrl"`
	AuthorAvatarURL *string `json:"authorAvatarUrl"`
	AuthorID        *string `json:"authorId"`

	Tags           []string `json:"tags"`
	Channels       []string `json:"channels"`
	PrimaryChannel *string  `json:"primaryChannel"`

	MediaAssets json.RawMessage `json:"mediaAssets"`
	Metadata    json.RawMessage `json:"metadata"`
}

// SubmissionService ist das Submission Gate: validiert, löst die Rolle
// auf, entscheidet pending vs. auto-approved und schreibt die Content-Zeile.
type SubmissionService struct {
	DB            *gorm.DB
	Logger        *zap.Logger
	Tags          *TagService
	Notifier      Notifier
	NotifyTimeout time.Duration
}

func NewSubmissionService(db *gorm.DB, logger *zap.Logger, tags *TagService, notifier Notifier, notifyTimeout time.Duration) *SubmissionService {
	return &SubmissionService{
		DB:            db,
		Logger:        logger,
		Tags:          tags,
		Notifier:      notifier,
		NotifyTimeout: notifyTimeout,
	}
}

// Submit verarbeitet eine Einreichung. Existiert (platform,
// platform_content_id) bereits, werden nur die mitgesendeten Felder in die
// bestehende Zeile gepatcht; Workflow-Felder bleiben unberührt. Anonyme
// Einreichungen sind erlaubt und landen immer in pending.
func (s *SubmissionService) Submit(draft *ContentDraft, actor *Actor) (*models.Content, string, error) {
	platform := strings.ToLower(strings.TrimSpace(draft.Platform))
	platformContentID := strings.TrimSpace(draft.PlatformContentID)
	url := strings.TrimSpace(draft.URL)

	if platform == "" {
		return nil, "", Errf(CodeValidation, "platform is required")
	}
	if platformContentID == "" {
		return nil, "", Errf(CodeValidation, "platformContentId is required")
	}
	if url == "" {
		return nil, "", Errf(CodeValidation, "url is required")
	}

	tags := NormalizeSlugs(draft.Tags)
	channels := normalizeChannels(draft.Channels)
	if draft.PrimaryChannel != nil {
		p := strings.ToLower(strings.TrimSpace(*draft.PrimaryChannel))
		draft.PrimaryChannel = &p
	}
	if len(tags) == 0 && len(channels) == 0 {
		return nil, "", Errf(CodeValidation, "at least one of tags or channels must be non-empty")
	}

	var existing models.Content
	err := s.DB.Where("platform = ? AND platform_content_id = ?", platform, platformContentID).
		First(&existing).Error
	switch {
	case err == nil:
		return s.patchExisting(&existing, draft, tags, channels)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createNew(draft, actor, platform, platformContentID, url, tags, channels)
	default:
		s.Logger.Error("Content lookup failed", zap.Error(err))
		return nil, "", persistenceErr()
	}
}

func (s *SubmissionService) createNew(draft *ContentDraft, actor *Actor, platform, platformContentID, url string, tags, channels []string) (*models.Content, string, error) {
	if draft.PrimaryChannel != nil && *draft.PrimaryChannel != "" && !contains(channels, *draft.PrimaryChannel) {
		return nil, "", Errf(CodeValidation, "primaryChannel %q is not a member of channels", *draft.PrimaryChannel)
	}

	now := time.Now()
	content := models.Content{
		Platform:          platform,
		PlatformContentID: platformContentID,
		URL:               url,
		Tags:              tags,
		Channels:          channels,
		SubmittedAt:       now,
		ApprovalStatus:    models.ApprovalPending,
	}
	applyOptionalFields(&content, draft)

	if actor != nil {
		content.SubmittedByUserID = &actor.UserID
	}
	// Rollen-Gate: Moderatoren und Admins überspringen pending.
	if actor.IsModerator() {
		content.ApprovalStatus = models.ApprovalApproved
		content.ApprovedBy = &actor.UserID
		content.ApprovedAt = &now
	}

	if err := s.DB.Create(&content).Error; err != nil {
		s.Logger.Error("Content create failed",
			zap.String("platform", platform),
			zap.String("platform_content_id", platformContentID),
			zap.Error(err))
		return nil, "", persistenceErr()
	}

	if err := s.Tags.Ensure(tags); err != nil {
		s.Logger.Warn("Tag ensure failed", zap.Strings("tags", tags), zap.Error(err))
	}

	// Event nur bei frischer approved-Erzeugung, nicht bei Updates.
	if content.ApprovalStatus == models.ApprovalApproved {
		dispatchApproval(s.Notifier, s.NotifyTimeout, s.Logger, summarize(&content))
	}

	s.Logger.Info("Content submitted",
		zap.String("id", content.ID),
		zap.String("platform", platform),
		zap.String("status", content.ApprovalStatus))
	return &content, ActionCreated, nil
}

func (s *SubmissionService) patchExisting(existing *models.Content, draft *ContentDraft, tags, channels []string) (*models.Content, string, error) {
	updates := map[string]any{}

	if draft.Title != nil {
		updates["title"] = *draft.Title
	}
	if draft.Description != nil {
		updates["description"] = *draft.Description
	}
	if draft.ThumbnailURL != nil {
		updates["thumbnail_url"] = *draft.ThumbnailURL
	}
	if draft.ContentCreatedAt != nil {
		updates["content_created_at"] = *draft.ContentCreatedAt
	}
	if draft.AuthorName != nil {
		updates["author_name"] = *draft.AuthorName
	}
	if draft.AuthorUsername != nil {
		updates["author_username"] = *draft.AuthorUsername
	}
	if draft.AuthorURL != nil {
		updates["author_url"] = *draft.AuthorURL
	}
	if draft.AuthorAvatarURL != nil {
		updates["author_avatar_url"] = *draft.AuthorAvatarURL
	}
	if draft.AuthorID != nil {
		updates["author_id"] = *draft.AuthorID
	}
	if strings.TrimSpace(draft.URL) != "" {
		updates["url"] = strings.TrimSpace(draft.URL)
	}
	if draft.Tags != nil {
		updates["tags"] = datatypes.JSONSlice[string](tags)
	}
	if draft.Channels != nil {
		updates["channels"] = datatypes.JSONSlice[string](channels)
	}
	if draft.PrimaryChannel != nil {
		effective := []string(existing.Channels)
		if draft.Channels != nil {
			effective = channels
		}
		if *draft.PrimaryChannel != "" && !contains(effective, *draft.PrimaryChannel) {
			return nil, "", Errf(CodeValidation, "primaryChannel %q is not a member of channels", *draft.PrimaryChannel)
		}
		updates["primary_channel"] = *draft.PrimaryChannel
	}
	if len(draft.MediaAssets) > 0 {
		updates["media_assets"] = datatypes.JSON(draft.MediaAssets)
	}
	if len(draft.Metadata) > 0 {
		updates["metadata"] = datatypes.JSON(draft.Metadata)
	}

	if len(updates) > 0 {
		if err := s.DB.Model(existing).Updates(updates).Error; err != nil {
			s.Logger.Error("Content patch failed", zap.String("id", existing.ID), zap.Error(err))
			return nil, "", persistenceErr()
		}
	}
	if draft.Tags != nil {
		if err := s.Tags.Ensure(tags); err != nil {
			s.Logger.Warn("Tag ensure failed", zap.Strings("tags", tags), zap.Error(err))
		}
	}

	var fresh models.Content
	if err := s.DB.Where("id = ?", existing.ID).First(&fresh).Error; err != nil {
		return nil, "", persistenceErr()
	}

	s.Logger.Info("Content re-submission merged", zap.String("id", fresh.ID))
	return &fresh, ActionUpdated, nil
}

// Review führt eine Moderator-Entscheidung über pending Content aus.
// Der Übergang ist konditional (nur wenn der Status noch pending ist),
// der Verlierer eines Races bekommt INVALID_STATE_TRANSITION.
func (s *SubmissionService) Review(id, action, reason string, actor *Actor) (*models.Content, error) {
	if actor == nil {
		return nil, Errf(CodeUnauthenticated, "a session is required to review content")
	}
	if !actor.IsModerator() {
		return nil, Errf(CodeForbidden, "reviewing content requires the moderator role")
	}

	now := time.Now()
	var updates map[string]any
	switch action {
	case ReviewApprove:
		updates = map[string]any{
			"approval_status": models.ApprovalApproved,
			"approved_by":     actor.UserID,
			"approved_at":     now,
		}
	case ReviewReject:
		updates = map[string]any{
			"approval_status": models.ApprovalRejected,
			"approval_reason": reason,
			"approved_by":     nil,
			"approved_at":     nil,
		}
	default:
		return nil, Errf(CodeValidation, "unknown review action %q", action)
	}

	res := s.DB.Model(&models.Content{}).
		Where("id = ? AND approval_status = ?", id, models.ApprovalPending).
		Updates(updates)
	if res.Error != nil {
		s.Logger.Error("Content review update failed", zap.String("id", id), zap.Error(res.Error))
		return nil, persistenceErr()
	}
	if res.RowsAffected == 0 {
		var current models.Content
		if err := s.DB.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, Errf(CodeNotFound, "content %s not found", id)
			}
			return nil, persistenceErr()
		}
		return nil, Errf(CodeInvalidTransition, "content %s is already %s", id, current.ApprovalStatus)
	}

	var content models.Content
	if err := s.DB.Where("id = ?", id).First(&content).Error; err != nil {
		return nil, persistenceErr()
	}

	if action == ReviewApprove {
		dispatchApproval(s.Notifier, s.NotifyTimeout, s.Logger, summarize(&content))
	}

	s.Logger.Info("Content reviewed",
		zap.String("id", id),
		zap.String("action", action),
		zap.String("moderator", actor.UserID))
	return &content, nil
}

func applyOptionalFields(content *models.Content, draft *ContentDraft) {
	if draft.Title != nil {
		content.Title = *draft.Title
	}
	if draft.Description != nil {
		content.Description = *draft.Description
	}
	if draft.ThumbnailURL != nil {
		content.ThumbnailURL = *draft.ThumbnailURL
	}
	if draft.ContentCreatedAt != nil {
		content.ContentCreatedAt = draft.ContentCreatedAt
	}
	if draft.AuthorName != nil {
		content.AuthorName = *draft.AuthorName
	}
	if draft.AuthorUsername != nil {
		content.AuthorUsername = *draft.AuthorUsername
	}
	if draft.AuthorURL != nil {
		content.AuthorURL = *draft.AuthorURL
	}
	if draft.AuthorAvatarURL != nil {
		content.AuthorAvatarURL = *draft.AuthorAvatarURL
	}
	if draft.AuthorID != nil {
		content.AuthorID = *draft.AuthorID
	}
	if draft.PrimaryChannel != nil {
		content.PrimaryChannel = *draft.PrimaryChannel
	}
	if len(draft.MediaAssets) > 0 {
		content.MediaAssets = datatypes.JSON(draft.MediaAssets)
	}
	if len(draft.Metadata) > 0 {
		content.Metadata = datatypes.JSON(draft.Metadata)
	}
}

func summarize(c *models.Content) ContentSummary {
	summary := ContentSummary{
		ID:             c.ID,
		Platform:       c.Platform,
		URL:            c.URL,
		Title:          c.Title,
		PrimaryChannel: c.PrimaryChannel,
		Channels:       c.Channels,
		Tags:           c.Tags,
	}
	if c.ApprovedBy != nil {
		summary.ApprovedBy = *c.ApprovedBy
	}
	return summary
}

func normalizeChannels(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		ch := strings.ToLower(strings.TrimSpace(r))
		if ch == "" {
			continue
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
