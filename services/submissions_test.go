package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkboard/models"
)

func strptr(s string) *string { return &s }

func baseDraft() *ContentDraft {
	return &ContentDraft{
		Platform:          "twitter",
		PlatformContentID: "123",
		URL:               "https://x.com/a/status/123",
		Tags:              []string{"ai"},
	}
}

func TestSubmit_RequiresClassification(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)

	draft := baseDraft()
	draft.Tags = nil
	_, _, err := svc.Submit(draft, nil)
	require.Error(t, err)

	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, se.Code)
}

func TestSubmit_RequiredFields(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)

	for _, mutate := range []func(*ContentDraft){
		func(d *ContentDraft) { d.Platform = "" },
		func(d *ContentDraft) { d.PlatformContentID = " " },
		func(d *ContentDraft) { d.URL = "" },
	} {
		draft := baseDraft()
		mutate(draft)
		_, _, err := svc.Submit(draft, nil)
		require.Error(t, err)
		se, ok := AsServiceError(err)
		require.True(t, ok)
		assert.Equal(t, CodeValidation, se.Code)
	}
}

func TestSubmit_AnonymousIsPending(t *testing.T) {
	svc, notifier, _ := newSubmissionFixture(t)

	content, action, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, action)
	assert.Equal(t, models.ApprovalPending, content.ApprovalStatus)
	assert.Nil(t, content.ApprovedBy)
	assert.Nil(t, content.ApprovedAt)
	assert.Nil(t, content.SubmittedByUserID)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, notifier.count())
}

func TestSubmit_AutoApprovalHierarchy(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)
	admin := newTestUser(t, db, "alice", models.RoleAdmin)
	member := newTestUser(t, db, "bob", models.RoleMember)

	adminDraft := baseDraft()
	content, _, err := svc.Submit(adminDraft, admin)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, content.ApprovalStatus)
	require.NotNil(t, content.ApprovedBy)
	assert.Equal(t, admin.UserID, *content.ApprovedBy)
	require.NotNil(t, content.ApprovedAt)

	memberDraft := baseDraft()
	memberDraft.PlatformContentID = "456"
	content, _, err = svc.Submit(memberDraft, member)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, content.ApprovalStatus)
	assert.Nil(t, content.ApprovedBy)
	require.NotNil(t, content.SubmittedByUserID)
	assert.Equal(t, member.UserID, *content.SubmittedByUserID)
}

func TestSubmit_DedupPatchesExistingRow(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)

	first, action, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)
	require.Equal(t, ActionCreated, action)

	again := baseDraft()
	again.Title = strptr("New Title")
	second, action, err := svc.Submit(again, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "New Title", second.Title)
	assert.Equal(t, []string{"ai"}, []string(second.Tags))

	var rows int64
	require.NoError(t, db.Model(&models.Content{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestSubmit_UpdateLeavesWorkflowUntouched(t *testing.T) {
	svc, notifier, db := newSubmissionFixture(t)
	mod := newTestUser(t, db, "eve", models.RoleModerator)

	content, _, err := svc.Submit(baseDraft(), mod)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, content.ApprovalStatus)
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)

	again := baseDraft()
	again.Description = strptr("now with context")
	updated, action, err := svc.Submit(again, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, action)
	assert.Equal(t, models.ApprovalApproved, updated.ApprovalStatus)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, mod.UserID, *updated.ApprovedBy)

	// Updates lösen kein zweites Approval-Event aus
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, notifier.count())
}

func TestSubmit_PrimaryChannelMembership(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)

	draft := baseDraft()
	draft.Channels = []string{"news", "tech"}
	draft.PrimaryChannel = strptr("sports")
	_, _, err := svc.Submit(draft, nil)
	require.Error(t, err)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, se.Code)

	draft = baseDraft()
	draft.Channels = []string{"news", "tech"}
	draft.PrimaryChannel = strptr("Tech")
	content, _, err := svc.Submit(draft, nil)
	require.NoError(t, err)
	assert.Equal(t, "tech", content.PrimaryChannel)
}

func TestSubmit_EnsuresTagRows(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)

	draft := baseDraft()
	draft.Tags = []string{"AI", "Machine Learning", "ai"}
	content, _, err := svc.Submit(draft, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "machine-learning"}, []string(content.Tags))

	var tagRows int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&tagRows).Error)
	assert.EqualValues(t, 2, tagRows)
}

func TestReview_ApproveAndNotify(t *testing.T) {
	svc, notifier, db := newSubmissionFixture(t)
	mod := newTestUser(t, db, "eve", models.RoleModerator)

	content, _, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)
	require.Equal(t, models.ApprovalPending, content.ApprovalStatus)

	approved, err := svc.Review(content.ID, ReviewApprove, "", mod)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.ApprovalStatus)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, mod.UserID, *approved.ApprovedBy)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, content.ID, notifier.last().ID)
}

func TestReview_RejectKeepsApprovalFieldsNull(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)
	mod := newTestUser(t, db, "eve", models.RoleModerator)

	content, _, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)

	rejected, err := svc.Review(content.ID, ReviewReject, "off topic", mod)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.ApprovalStatus)
	assert.Nil(t, rejected.ApprovedBy)
	assert.Nil(t, rejected.ApprovedAt)
	assert.Equal(t, "off topic", rejected.ApprovalReason)
}

func TestReview_RaceLoserGetsInvalidTransition(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)
	mod := newTestUser(t, db, "eve", models.RoleModerator)

	content, _, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)

	_, err = svc.Review(content.ID, ReviewApprove, "", mod)
	require.NoError(t, err)

	_, err = svc.Review(content.ID, ReviewReject, "too late", mod)
	require.Error(t, err)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidTransition, se.Code)
}

func TestReview_RequiresModerator(t *testing.T) {
	svc, _, db := newSubmissionFixture(t)
	member := newTestUser(t, db, "bob", models.RoleMember)

	content, _, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)

	_, err = svc.Review(content.ID, ReviewApprove, "", nil)
	se, _ := AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeUnauthenticated, se.Code)

	_, err = svc.Review(content.ID, ReviewApprove, "", member)
	se, _ = AsServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, CodeForbidden, se.Code)
}

func TestSubmitReviewEndToEnd(t *testing.T) {
	svc, notifier, db := newSubmissionFixture(t)
	mod := newTestUser(t, db, "eve", models.RoleModerator)

	content, action, err := svc.Submit(baseDraft(), nil)
	require.NoError(t, err)
	require.Equal(t, ActionCreated, action)
	require.Equal(t, models.ApprovalPending, content.ApprovalStatus)

	var pending []models.Content
	require.NoError(t, db.Where("approval_status = ?", models.ApprovalPending).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, content.ID, pending[0].ID)

	_, err = svc.Review(content.ID, ReviewApprove, "", mod)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)

	var fetched models.Content
	require.NoError(t, db.Where("platform = ? AND platform_content_id = ?", "twitter", "123").First(&fetched).Error)
	assert.Equal(t, models.ApprovalApproved, fetched.ApprovalStatus)
}
