package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linkboard/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, username, role string) *Actor {
	t.Helper()
	user := models.User{Username: username, Role: role}
	require.NoError(t, db.Create(&user).Error)
	return &Actor{UserID: user.ID, Username: user.Username, Role: user.Role}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []ContentSummary
}

func (r *recordingNotifier) NotifyApproved(ctx context.Context, content ContentSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, content)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingNotifier) last() ContentSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func newSubmissionFixture(t *testing.T) (*SubmissionService, *recordingNotifier, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop()
	notifier := &recordingNotifier{}
	tags := NewTagService(db, log)
	svc := NewSubmissionService(db, log, tags, notifier, time.Second)
	return svc, notifier, db
}
