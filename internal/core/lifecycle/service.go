// internal/core/lifecycle/service.go

// Package lifecycle owns the application status machine. Every status change
// goes through this package, is validated against the transition table, and
// leaves an audit row in the same transaction.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthcard-workers/internal/common/config"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/metrics"
	"healthcard-workers/internal/core/review"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/notify"
)

// CardIssuer is satisfied by the health card issuer.
type CardIssuer interface {
	Issue(ctx context.Context, applicationID string) (*models.HealthCard, []models.Notification, error)
}

// Auditor mirrors committed transition entries to a secondary store.
// Implementations must be best-effort; failures never reach the caller.
type Auditor interface {
	Record(ctx context.Context, entry models.TransitionEntry)
}

type Service struct {
	db      *sql.DB
	cfg     config.LifecycleConfig
	issuer  CardIssuer
	auditor Auditor
	log     logger.Logger
}

func NewService(db *sql.DB, cfg config.LifecycleConfig, issuer CardIssuer, auditor Auditor, log logger.Logger) *Service {
	return &Service{
		db:      db,
		cfg:     cfg,
		issuer:  issuer,
		auditor: auditor,
		log:     log.WithFields(map[string]interface{}{"component": "lifecycle"}),
	}
}

type CreateDraftInput struct {
	ApplicantID         string                 `json:"applicantId"`
	JobCategoryID       string                 `json:"jobCategoryId"`
	ApplicationType     models.ApplicationType `json:"applicationType"`
	OrientationRequired bool                   `json:"orientationRequired"`
}

// CreateDraft opens a new application. An applicant may hold at most one
// non-terminal application at a time.
func (s *Service) CreateDraft(ctx context.Context, actor models.Actor, input CreateDraftInput) (*models.Application, error) {
	if input.ApplicantID == "" || input.JobCategoryID == "" {
		return nil, fmt.Errorf("%w: applicantId and jobCategoryId are required", derr.ErrConflict)
	}
	if input.ApplicationType == "" {
		input.ApplicationType = models.ApplicationTypeNew
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, derr.Storagef("begin draft tx: %v", err)
	}
	defer tx.Rollback()

	var open bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM applications
			WHERE applicant_id = $1 AND status NOT IN ('approved', 'rejected', 'expired')
		)`, input.ApplicantID).Scan(&open)
	if err != nil {
		return nil, derr.Storagef("open application check failed: %v", err)
	}
	if open {
		return nil, fmt.Errorf("%w: applicant %s already has an open application",
			derr.ErrConflict, input.ApplicantID)
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:                  uuid.New().String(),
		ApplicantID:         input.ApplicantID,
		JobCategoryID:       input.JobCategoryID,
		ApplicationType:     input.ApplicationType,
		Status:              models.StatusDraft,
		OrientationRequired: input.OrientationRequired,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (
			id, applicant_id, job_category_id, application_type, status,
			orientation_required, orientation_completed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 'draft', $5, FALSE, $6, $6)`,
		app.ID, app.ApplicantID, app.JobCategoryID, app.ApplicationType,
		app.OrientationRequired, now)
	if err != nil {
		return nil, derr.Storagef("application insert failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, derr.Storagef("commit draft tx: %v", err)
	}

	s.log.Info("application draft created", map[string]interface{}{
		"applicationId": app.ID,
		"applicantId":   app.ApplicantID,
		"actorId":       actor.ID,
	})

	return app, nil
}

// Submit moves a draft into the verification pipeline. Document checking
// starts immediately, so the submitted state is passed through in the same
// transaction and both edges are audited.
func (s *Service) Submit(ctx context.Context, actor models.Actor, applicationID string) (models.Status, error) {
	var entries []models.TransitionEntry

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", derr.Storagef("begin submit tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return "", err
	}

	e1, err := s.move(ctx, tx, app, models.StatusSubmitted, actor, "application submitted")
	if err != nil {
		return "", err
	}
	e2, err := s.move(ctx, tx, app, models.StatusDocumentVerification, models.SystemActor, "awaiting document verification")
	if err != nil {
		return "", err
	}
	entries = append(entries, e1, e2)

	if err := tx.Commit(); err != nil {
		return "", derr.Storagef("commit submit tx: %v", err)
	}

	s.audit(ctx, entries)
	return app.Status, nil
}

// ApplyReviewOutcome routes a review protocol outcome into a status change:
// revision cycles for plain rejections, escalation when the lineage locked,
// forward progress on approval.
func (s *Service) ApplyReviewOutcome(ctx context.Context, actor models.Actor, outcome review.Outcome) (models.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", derr.Storagef("begin outcome tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, outcome.ApplicationID)
	if err != nil {
		return "", err
	}

	var target models.Status
	var reason string

	switch {
	case outcome.Locked:
		target = models.StatusAdministrativeReview
		reason = fmt.Sprintf("%s attempts exhausted after %d rejections", outcome.Kind, outcome.AttemptNumber)
	case outcome.Kind == models.ArtifactKindDocument && outcome.Approved:
		target = models.StatusPaymentValidation
		reason = "documents approved"
	case outcome.Kind == models.ArtifactKindDocument:
		target = models.StatusDocumentsNeedRevision
		reason = fmt.Sprintf("document rejected, attempt %d", outcome.AttemptNumber)
	case outcome.Kind == models.ArtifactKindPayment && outcome.Approved:
		if app.OrientationRequired {
			target = models.StatusOrientationPending
			reason = "payment approved, orientation required"
		} else {
			target = models.StatusUnderReview
			reason = "payment approved, no orientation required"
		}
	default:
		target = models.StatusPaymentNeedsRevision
		reason = fmt.Sprintf("payment rejected, attempt %d", outcome.AttemptNumber)
	}

	entry, err := s.move(ctx, tx, app, target, actor, reason)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", derr.Storagef("commit outcome tx: %v", err)
	}

	s.audit(ctx, []models.TransitionEntry{entry})
	return app.Status, nil
}

// OnArtifactResubmitted returns an application from its revision state to
// the matching verification state after a qualifying resubmission.
func (s *Service) OnArtifactResubmitted(ctx context.Context, applicationID string, kind models.ArtifactKind) (models.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", derr.Storagef("begin resubmit tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return "", err
	}

	target := models.StatusDocumentVerification
	source := models.StatusDocumentsNeedRevision
	if kind == models.ArtifactKindPayment {
		target = models.StatusPaymentValidation
		source = models.StatusPaymentNeedsRevision
	}

	// First submissions arrive while the application is already in the
	// verification state; only the matching revision state moves back.
	// Anything else (escalated, wrong phase) must not be pulled along by a
	// resubmission: administrative_review only leaves via an admin action,
	// and a payment submit cannot skip ahead of document verification.
	if app.Status == target {
		_ = tx.Commit()
		return app.Status, nil
	}
	if app.Status != source {
		return "", fmt.Errorf("%w: application %s is %s, a %s submission expects %s or %s",
			derr.ErrConflict, applicationID, app.Status, kind, source, target)
	}

	entry, err := s.move(ctx, tx, app, target, models.SystemActor,
		fmt.Sprintf("%s resubmitted", kind))
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", derr.Storagef("commit resubmit tx: %v", err)
	}

	s.audit(ctx, []models.TransitionEntry{entry})
	return app.Status, nil
}

// --- scheduler callbacks; run inside the scheduler's booking transaction ---

func (s *Service) OnOrientationBooked(ctx context.Context, tx *sql.Tx, applicationID string) error {
	return s.moveInCallerTx(ctx, tx, applicationID, models.StatusOrientationScheduled, "orientation slot booked")
}

func (s *Service) OnOrientationCheckedIn(ctx context.Context, tx *sql.Tx, applicationID string) error {
	return s.moveInCallerTx(ctx, tx, applicationID, models.StatusAttendanceValidation, "checked in at orientation")
}

func (s *Service) OnOrientationMissed(ctx context.Context, tx *sql.Tx, applicationID string) error {
	return s.moveInCallerTx(ctx, tx, applicationID, models.StatusOrientationPending, "orientation missed, slot released")
}

func (s *Service) OnOrientationCancelled(ctx context.Context, tx *sql.Tx, applicationID string) error {
	return s.moveInCallerTx(ctx, tx, applicationID, models.StatusOrientationPending, "booking cancelled")
}

// OnOrientationCompleted records attendance and moves the application to
// final review. orientationCompleted may only become true here.
func (s *Service) OnOrientationCompleted(ctx context.Context, tx *sql.Tx, applicationID string) error {
	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE applications SET orientation_completed = TRUE WHERE id = $1`,
		applicationID)
	if err != nil {
		return derr.Storagef("orientation flag update failed: %v", err)
	}

	_, err = s.move(ctx, tx, app, models.StatusUnderReview, models.SystemActor, "orientation completed")
	return err
}

// Approve finalizes an application and triggers health card issuance.
// Issuance is idempotent, so a crash between commit and issue is recovered
// by re-running the operation.
func (s *Service) Approve(ctx context.Context, actor models.Actor, applicationID, remarks string) (*models.HealthCard, []models.Notification, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, nil, fmt.Errorf("%w: approving requires the admin role", derr.ErrUnauthorized)
	}

	applicantID, entry, err := s.decide(ctx, actor, applicationID, models.StatusApproved, remarks)
	if err != nil {
		return nil, nil, err
	}
	s.audit(ctx, []models.TransitionEntry{entry})

	notes := []models.Notification{notify.ApplicationDecided(applicantID, applicationID, true)}

	if s.issuer == nil {
		return nil, notes, nil
	}
	card, issueNotes, err := s.issuer.Issue(ctx, applicationID)
	if err != nil {
		return nil, notes, err
	}
	return card, append(notes, issueNotes...), nil
}

// Reject is terminal; only an explicit administrative override re-opens the
// application afterwards.
func (s *Service) Reject(ctx context.Context, actor models.Actor, applicationID, remarks string) ([]models.Notification, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: rejecting requires the admin role", derr.ErrUnauthorized)
	}

	applicantID, entry, err := s.decide(ctx, actor, applicationID, models.StatusRejected, remarks)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, []models.TransitionEntry{entry})

	return []models.Notification{notify.ApplicationDecided(applicantID, applicationID, false)}, nil
}

// AdminResolve moves an escalated application out of administrative review
// after manual remediation, forward or back.
func (s *Service) AdminResolve(ctx context.Context, actor models.Actor, applicationID string, target models.Status, reason string) (models.Status, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return "", fmt.Errorf("%w: resolving requires the admin role", derr.ErrUnauthorized)
	}
	if !target.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", derr.ErrInvalidTransition, target)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", derr.Storagef("begin resolve tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return "", err
	}
	if app.Status != models.StatusAdministrativeReview {
		return "", fmt.Errorf("%w: %s -> %s (resolve only applies to %s)",
			derr.ErrInvalidTransition, app.Status, target, models.StatusAdministrativeReview)
	}

	entry, err := s.move(ctx, tx, app, target, actor, reason)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", derr.Storagef("commit resolve tx: %v", err)
	}

	s.audit(ctx, []models.TransitionEntry{entry})
	return app.Status, nil
}

// Expire times out a non-terminal application.
func (s *Service) Expire(ctx context.Context, actor models.Actor, applicationID, reason string) ([]models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, derr.Storagef("begin expire tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	entry, err := s.move(ctx, tx, app, models.StatusExpired, actor, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, derr.Storagef("commit expire tx: %v", err)
	}

	s.audit(ctx, []models.TransitionEntry{entry})
	return []models.Notification{notify.ApplicationExpired(app.ApplicantID, applicationID)}, nil
}

// ExpireStale expires every non-terminal application untouched for longer
// than the configured window. Individual failures are logged and skipped so
// one bad record cannot halt the sweep.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.AddDate(0, 0, -s.cfg.ExpireAfterDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM applications
		WHERE status NOT IN ('approved', 'rejected', 'expired') AND updated_at < $1`,
		cutoff)
	if err != nil {
		return 0, derr.Storagef("stale query failed: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, derr.Storagef("stale scan failed: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, derr.Storagef("stale rows failed: %v", err)
	}

	expired := 0
	for _, id := range ids {
		if _, err := s.Expire(ctx, models.SystemActor, id, "application timed out"); err != nil {
			s.log.WithError(err).Warn("stale expire failed", map[string]interface{}{
				"applicationId": id,
			})
			continue
		}
		expired++
	}

	return expired, nil
}

// Get returns the current application record.
func (s *Service) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	app := &models.Application{ID: applicationID}
	err := s.db.QueryRowContext(ctx, `
		SELECT applicant_id, job_category_id, application_type, status,
		       orientation_required, orientation_completed, admin_remarks,
		       created_at, updated_at
		FROM applications WHERE id = $1`, applicationID).
		Scan(&app.ApplicantID, &app.JobCategoryID, &app.ApplicationType,
			&app.Status, &app.OrientationRequired, &app.OrientationCompleted,
			&app.AdminRemarks, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: application %s", derr.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, derr.Storagef("application read failed: %v", err)
	}
	return app, nil
}

// Transitions returns the audit trail for an application, oldest first.
func (s *Service) Transitions(ctx context.Context, applicationID string) ([]models.TransitionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_status, to_status, actor_id, reason, created_at
		FROM application_transitions
		WHERE application_id = $1
		ORDER BY created_at ASC`, applicationID)
	if err != nil {
		return nil, derr.Storagef("transitions query failed: %v", err)
	}
	defer rows.Close()

	var entries []models.TransitionEntry
	for rows.Next() {
		e := models.TransitionEntry{ApplicationID: applicationID}
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.ActorID, &e.Reason, &e.OccurredAt); err != nil {
			return nil, derr.Storagef("transitions scan failed: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- internals ---

func (s *Service) decide(ctx context.Context, actor models.Actor, applicationID string, target models.Status, remarks string) (string, models.TransitionEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", models.TransitionEntry{}, derr.Storagef("begin decide tx: %v", err)
	}
	defer tx.Rollback()

	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return "", models.TransitionEntry{}, err
	}
	if app.Status != models.StatusUnderReview {
		return "", models.TransitionEntry{}, fmt.Errorf("%w: %s -> %s (decisions require %s)",
			derr.ErrInvalidTransition, app.Status, target, models.StatusUnderReview)
	}

	entry, err := s.move(ctx, tx, app, target, actor, remarks)
	if err != nil {
		return "", models.TransitionEntry{}, err
	}

	if remarks != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE applications SET admin_remarks = $1 WHERE id = $2`,
			remarks, applicationID)
		if err != nil {
			return "", models.TransitionEntry{}, derr.Storagef("remarks update failed: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", models.TransitionEntry{}, derr.Storagef("commit decide tx: %v", err)
	}

	return app.ApplicantID, entry, nil
}

func (s *Service) moveInCallerTx(ctx context.Context, tx *sql.Tx, applicationID string, target models.Status, reason string) error {
	app, err := s.loadForUpdate(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	_, err = s.move(ctx, tx, app, target, models.SystemActor, reason)
	return err
}

func (s *Service) loadForUpdate(ctx context.Context, tx *sql.Tx, applicationID string) (*models.Application, error) {
	app := &models.Application{ID: applicationID}
	err := tx.QueryRowContext(ctx, `
		SELECT applicant_id, status, orientation_required, orientation_completed
		FROM applications WHERE id = $1
		FOR UPDATE`, applicationID).
		Scan(&app.ApplicantID, &app.Status, &app.OrientationRequired, &app.OrientationCompleted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: application %s", derr.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, derr.Storagef("application lock failed: %v", err)
	}
	return app, nil
}

// move validates the edge, updates the row, and appends the audit record.
// app.Status is advanced in place so multi-edge operations chain naturally.
func (s *Service) move(ctx context.Context, tx *sql.Tx, app *models.Application, to models.Status, actor models.Actor, reason string) (models.TransitionEntry, error) {
	from := app.Status
	if !CanTransition(from, to) {
		return models.TransitionEntry{}, fmt.Errorf("%w: %s -> %s (legal targets: %s)",
			derr.ErrInvalidTransition, from, to, ValidTargets(from))
	}

	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3`,
		to, now, app.ID)
	if err != nil {
		return models.TransitionEntry{}, derr.Storagef("status update failed: %v", err)
	}

	entry := models.TransitionEntry{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		From:          from,
		To:            to,
		ActorID:       actor.ID,
		Reason:        reason,
		OccurredAt:    now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO application_transitions (
			id, application_id, from_status, to_status, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ApplicationID, entry.From, entry.To, entry.ActorID,
		entry.Reason, entry.OccurredAt)
	if err != nil {
		return models.TransitionEntry{}, derr.Storagef("transition insert failed: %v", err)
	}

	app.Status = to
	metrics.ApplicationTransitions.WithLabelValues(string(from), string(to)).Inc()

	s.log.Info("application transitioned", map[string]interface{}{
		"applicationId": app.ID,
		"from":          string(from),
		"to":            string(to),
		"actorId":       actor.ID,
		"reason":        reason,
	})

	return entry, nil
}

func (s *Service) audit(ctx context.Context, entries []models.TransitionEntry) {
	if s.auditor == nil {
		return
	}
	for _, e := range entries {
		s.auditor.Record(ctx, e)
	}
}
