// internal/core/lifecycle/service_test.go
package lifecycle

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcard-workers/internal/common/config"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/core/review"
	"healthcard-workers/internal/models"
)

type stubIssuer struct {
	card   *models.HealthCard
	called int
}

func (s *stubIssuer) Issue(ctx context.Context, applicationID string) (*models.HealthCard, []models.Notification, error) {
	s.called++
	return s.card, []models.Notification{{RecipientID: "user-001", Kind: models.NotifyHealthCardIssued}}, nil
}

type stubAuditor struct {
	entries []models.TransitionEntry
}

func (s *stubAuditor) Record(ctx context.Context, entry models.TransitionEntry) {
	s.entries = append(s.entries, entry)
}

func adminActor() models.Actor {
	return models.Actor{ID: "admin-001", Roles: []string{models.RoleAdmin}}
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *stubIssuer, *stubAuditor) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	issuer := &stubIssuer{card: &models.HealthCard{
		ID:                 "card-001",
		ApplicationID:      "app-001",
		RegistrationNumber: "HC-2026-0123456789AB",
		Status:             models.CardStatusActive,
	}}
	auditor := &stubAuditor{}

	svc := NewService(db, config.LifecycleConfig{ExpireAfterDays: 90}, issuer, auditor, logger.NewNoOpLogger())
	return svc, mock, issuer, auditor
}

func expectLoadForUpdate(mock sqlmock.Sqlmock, appID string, status models.Status, orientationRequired bool) {
	mock.ExpectQuery(`SELECT applicant_id, status, orientation_required, orientation_completed`).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows([]string{
			"applicant_id", "status", "orientation_required", "orientation_completed",
		}).AddRow("user-001", string(status), orientationRequired, false))
}

func expectMove(mock sqlmock.Sqlmock, appID string, to models.Status) {
	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs(string(to), sqlmock.AnyArg(), appID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_transitions`).
		WithArgs(sqlmock.AnyArg(), appID, sqlmock.AnyArg(), string(to),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCreateDraft_Success(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(sqlmock.AnyArg(), "user-001", "cat-food-handler", "new", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	app, err := svc.CreateDraft(context.Background(),
		models.Actor{ID: "user-001", Roles: []string{models.RoleApplicant}},
		CreateDraftInput{
			ApplicantID:         "user-001",
			JobCategoryID:       "cat-food-handler",
			OrientationRequired: true,
		})

	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, app.Status)
	assert.True(t, app.OrientationRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDraft_OpenApplicationConflict(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.CreateDraft(context.Background(),
		models.Actor{ID: "user-001", Roles: []string{models.RoleApplicant}},
		CreateDraftInput{ApplicantID: "user-001", JobCategoryID: "cat-food-handler"})

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_AdvancesToDocumentVerification(t *testing.T) {
	svc, mock, _, auditor := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusDraft, false)
	expectMove(mock, "app-001", models.StatusSubmitted)
	expectMove(mock, "app-001", models.StatusDocumentVerification)
	mock.ExpectCommit()

	status, err := svc.Submit(context.Background(),
		models.Actor{ID: "user-001", Roles: []string{models.RoleApplicant}}, "app-001")

	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentVerification, status)
	assert.Len(t, auditor.entries, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_RejectsNonDraft(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusUnderReview, false)
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(),
		models.Actor{ID: "user-001", Roles: []string{models.RoleApplicant}}, "app-001")

	assert.ErrorIs(t, err, derr.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReviewOutcome_Routing(t *testing.T) {
	cases := []struct {
		name                string
		currentStatus       models.Status
		orientationRequired bool
		outcome             review.Outcome
		want                models.Status
	}{
		{
			name:          "document approved moves to payment validation",
			currentStatus: models.StatusDocumentVerification,
			outcome:       review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindDocument, Approved: true, AttemptNumber: 1},
			want:          models.StatusPaymentValidation,
		},
		{
			name:          "document rejected moves to revision",
			currentStatus: models.StatusDocumentVerification,
			outcome:       review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindDocument, AttemptNumber: 1},
			want:          models.StatusDocumentsNeedRevision,
		},
		{
			name:          "locked lineage escalates",
			currentStatus: models.StatusDocumentVerification,
			outcome:       review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindDocument, AttemptNumber: 3, Locked: true},
			want:          models.StatusAdministrativeReview,
		},
		{
			name:                "payment approved with orientation required",
			currentStatus:       models.StatusPaymentValidation,
			orientationRequired: true,
			outcome:             review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindPayment, Approved: true, AttemptNumber: 1},
			want:                models.StatusOrientationPending,
		},
		{
			name:          "payment approved without orientation skips to review",
			currentStatus: models.StatusPaymentValidation,
			outcome:       review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindPayment, Approved: true, AttemptNumber: 1},
			want:          models.StatusUnderReview,
		},
		{
			name:          "payment rejected moves to payment revision",
			currentStatus: models.StatusPaymentValidation,
			outcome:       review.Outcome{ApplicationID: "app-001", Kind: models.ArtifactKindPayment, AttemptNumber: 2},
			want:          models.StatusPaymentNeedsRevision,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mock, _, _ := newTestService(t)

			mock.ExpectBegin()
			expectLoadForUpdate(mock, "app-001", tc.currentStatus, tc.orientationRequired)
			expectMove(mock, "app-001", tc.want)
			mock.ExpectCommit()

			status, err := svc.ApplyReviewOutcome(context.Background(),
				models.Actor{ID: "reviewer-001", Roles: []string{models.RoleReviewer}}, tc.outcome)

			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOnArtifactResubmitted_ReturnsToVerification(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusDocumentsNeedRevision, false)
	expectMove(mock, "app-001", models.StatusDocumentVerification)
	mock.ExpectCommit()

	status, err := svc.OnArtifactResubmitted(context.Background(), "app-001", models.ArtifactKindDocument)

	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentVerification, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnArtifactResubmitted_NoOpWhenAlreadyVerifying(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusDocumentVerification, false)
	mock.ExpectCommit()

	status, err := svc.OnArtifactResubmitted(context.Background(), "app-001", models.ArtifactKindDocument)

	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentVerification, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnArtifactResubmitted_LeavesEscalatedApplicationAlone(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusAdministrativeReview, false)
	mock.ExpectRollback()

	_, err := svc.OnArtifactResubmitted(context.Background(), "app-001", models.ArtifactKindPayment)

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnArtifactResubmitted_PaymentCannotSkipDocumentVerification(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusDocumentVerification, false)
	mock.ExpectRollback()

	_, err := svc.OnArtifactResubmitted(context.Background(), "app-001", models.ArtifactKindPayment)

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_IssuesCard(t *testing.T) {
	svc, mock, issuer, auditor := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusUnderReview, false)
	expectMove(mock, "app-001", models.StatusApproved)
	mock.ExpectExec(`UPDATE applications SET admin_remarks`).
		WithArgs("all checks passed", "app-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	card, notes, err := svc.Approve(context.Background(), adminActor(), "app-001", "all checks passed")

	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "card-001", card.ID)
	assert.Equal(t, 1, issuer.called)
	assert.Len(t, auditor.entries, 1)

	kinds := make([]string, 0, len(notes))
	for _, n := range notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, models.NotifyApplicationApproved)
	assert.Contains(t, kinds, models.NotifyHealthCardIssued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_RequiresAdminRole(t *testing.T) {
	svc, _, issuer, _ := newTestService(t)

	_, _, err := svc.Approve(context.Background(),
		models.Actor{ID: "reviewer-001", Roles: []string{models.RoleReviewer}}, "app-001", "")

	assert.ErrorIs(t, err, derr.ErrUnauthorized)
	assert.Zero(t, issuer.called)
}

func TestReject_OnlyFromUnderReview(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusDraft, false)
	mock.ExpectRollback()

	_, err := svc.Reject(context.Background(), adminActor(), "app-001", "incomplete")

	assert.ErrorIs(t, err, derr.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminResolve_MovesOutOfEscalation(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusAdministrativeReview, false)
	expectMove(mock, "app-001", models.StatusDocumentVerification)
	mock.ExpectCommit()

	status, err := svc.AdminResolve(context.Background(), adminActor(), "app-001",
		models.StatusDocumentVerification, "attempts reset after manual verification")

	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentVerification, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminResolve_RejectsNonEscalatedApplication(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusUnderReview, false)
	mock.ExpectRollback()

	_, err := svc.AdminResolve(context.Background(), adminActor(), "app-001",
		models.StatusApproved, "")

	assert.ErrorIs(t, err, derr.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpire_NonTerminal(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusOrientationPending, true)
	expectMove(mock, "app-001", models.StatusExpired)
	mock.ExpectCommit()

	notes, err := svc.Expire(context.Background(), models.SystemActor, "app-001", "application timed out")

	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyApplicationExpired, notes[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpire_TerminalFails(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectBegin()
	expectLoadForUpdate(mock, "app-001", models.StatusApproved, false)
	mock.ExpectRollback()

	_, err := svc.Expire(context.Background(), models.SystemActor, "app-001", "application timed out")

	assert.ErrorIs(t, err, derr.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery(`SELECT applicant_id, job_category_id`).
		WithArgs("app-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Get(context.Background(), "app-missing")

	assert.ErrorIs(t, err, derr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
