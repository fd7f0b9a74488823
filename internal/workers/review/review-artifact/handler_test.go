// internal/workers/review/review-artifact/handler_test.go
package reviewartifact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/core/review"
	"healthcard-workers/internal/models"
)

type stubReview struct {
	outcome *review.Outcome
	notes   []models.Notification
	err     error

	gotActor models.Actor
	gotInput review.ReviewInput
}

func (s *stubReview) Review(ctx context.Context, actor models.Actor, artifactID string, input review.ReviewInput) (*review.Outcome, []models.Notification, error) {
	s.gotActor = actor
	s.gotInput = input
	return s.outcome, s.notes, s.err
}

type stubLifecycle struct {
	status models.Status
	err    error

	gotOutcome review.Outcome
}

func (s *stubLifecycle) ApplyReviewOutcome(ctx context.Context, actor models.Actor, outcome review.Outcome) (models.Status, error) {
	s.gotOutcome = outcome
	return s.status, s.err
}

type stubNotifier struct {
	dispatched []models.Notification
}

func (s *stubNotifier) Dispatch(ctx context.Context, notes []models.Notification) {
	s.dispatched = append(s.dispatched, notes...)
}

func TestExecute_ApproveAdvancesApplication(t *testing.T) {
	rev := &stubReview{
		outcome: &review.Outcome{
			ArtifactID:    "artifact-001",
			ApplicationID: "app-001",
			Kind:          models.ArtifactKindDocument,
			Approved:      true,
			AttemptNumber: 1,
		},
		notes: []models.Notification{{RecipientID: "user-001", Kind: models.NotifyArtifactApproved}},
	}
	lc := &stubLifecycle{status: models.StatusPaymentValidation}
	nt := &stubNotifier{}
	handler := NewHandler(LoadConfig(), rev, lc, nt, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{
		ArtifactID:    "artifact-001",
		ReviewerID:    "reviewer-001",
		ReviewerRoles: []string{models.RoleReviewer},
		Decision:      "approve",
	})

	require.NoError(t, err)
	assert.Equal(t, "app-001", output.ApplicationID)
	assert.True(t, output.Approved)
	assert.Equal(t, string(models.StatusPaymentValidation), output.ApplicationStatus)
	assert.Equal(t, "reviewer-001", rev.gotActor.ID)
	assert.Equal(t, review.DecisionApprove, rev.gotInput.Decision)
	assert.Equal(t, "app-001", lc.gotOutcome.ApplicationID)
	assert.Len(t, nt.dispatched, 1)
}

func TestExecute_RejectAtCeilingReportsLock(t *testing.T) {
	rev := &stubReview{
		outcome: &review.Outcome{
			ArtifactID:    "artifact-003",
			ApplicationID: "app-001",
			Kind:          models.ArtifactKindDocument,
			Approved:      false,
			AttemptNumber: 3,
			Locked:        true,
		},
	}
	lc := &stubLifecycle{status: models.StatusAdministrativeReview}
	handler := NewHandler(LoadConfig(), rev, lc, &stubNotifier{}, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{
		ArtifactID:    "artifact-003",
		ReviewerID:    "reviewer-001",
		ReviewerRoles: []string{models.RoleReviewer},
		Decision:      "reject",
		Category:      "illegible",
		Reason:        "scan unreadable",
	})

	require.NoError(t, err)
	assert.True(t, output.Locked)
	assert.Equal(t, 3, output.AttemptNumber)
	assert.Equal(t, string(models.StatusAdministrativeReview), output.ApplicationStatus)
}

func TestExecute_ReviewFailureSkipsLifecycle(t *testing.T) {
	rev := &stubReview{err: errors.New("artifact already reviewed")}
	lc := &stubLifecycle{}
	nt := &stubNotifier{}
	handler := NewHandler(LoadConfig(), rev, lc, nt, logger.NewNoOpLogger())

	_, err := handler.Execute(context.Background(), &Input{
		ArtifactID:    "artifact-001",
		ReviewerID:    "reviewer-001",
		ReviewerRoles: []string{models.RoleReviewer},
		Decision:      "approve",
	})

	assert.Error(t, err)
	assert.Empty(t, lc.gotOutcome.ApplicationID)
	assert.Empty(t, nt.dispatched)
}
