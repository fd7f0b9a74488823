// internal/core/review/service.go

// Package review implements the artifact review protocol: one generic
// rejection/resubmission cycle applied to document and payment lineages,
// with an attempt ceiling that freezes the lineage and forces escalation.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/metrics"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/notify"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReviewInput carries the reviewer's verdict details. Category and Reason
// are required for rejections.
type ReviewInput struct {
	Decision       Decision `json:"decision"`
	Category       string   `json:"category,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	SpecificIssues []string `json:"specificIssues,omitempty"`
	Remarks        string   `json:"remarks,omitempty"`
}

// Outcome is what the review protocol reports back to the state machine.
type Outcome struct {
	ArtifactID    string              `json:"artifactId"`
	ApplicationID string              `json:"applicationId"`
	Kind          models.ArtifactKind `json:"kind"`
	Approved      bool                `json:"approved"`
	AttemptNumber int                 `json:"attemptNumber"`
	Locked        bool                `json:"locked"`
}

type Service struct {
	db          *sql.DB
	maxAttempts int
	log         logger.Logger
}

func NewService(db *sql.DB, maxAttempts int, log logger.Logger) *Service {
	return &Service{
		db:          db,
		maxAttempts: maxAttempts,
		log:         log.WithFields(map[string]interface{}{"component": "review"}),
	}
}

// Submit creates a new pending artifact for the lineage. The locked-lineage
// and open-artifact checks run inside the same transaction as the insert so
// concurrent submits cannot both slip through.
func (s *Service) Submit(ctx context.Context, actor models.Actor, lineage models.Lineage, payloadRef string) (string, error) {
	if payloadRef == "" {
		return "", fmt.Errorf("%w: payload reference is required", derr.ErrConflict)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", derr.Storagef("begin submit tx: %v", err)
	}
	defer tx.Rollback()

	// The application must be in the lineage's phase before an artifact is
	// accepted; checking under the row lock keeps the insert and the status
	// move that follows consistent. Payments cannot be submitted until the
	// documents have cleared verification.
	var appStatus models.Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM applications WHERE id = $1 FOR UPDATE`,
		lineage.ApplicationID).Scan(&appStatus)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: application %s", derr.ErrNotFound, lineage.ApplicationID)
	}
	if err != nil {
		return "", derr.Storagef("application read failed: %v", err)
	}
	if !submittable(lineage.Kind, appStatus) {
		return "", fmt.Errorf("%w: application %s is %s, no %s submission is open",
			derr.ErrConflict, lineage.ApplicationID, appStatus, lineage.Kind)
	}

	var locked bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM rejection_records
			WHERE application_id = $1 AND kind = $2 AND document_type = $3
			  AND attempt_number >= $4
		)`, lineage.ApplicationID, lineage.Kind, lineage.DocumentType, s.maxAttempts).Scan(&locked)
	if err != nil {
		return "", derr.Storagef("lineage lock check failed: %v", err)
	}
	if locked {
		return "", fmt.Errorf("%w: lineage %s", derr.ErrLineageLocked, lineage)
	}

	// Re-read the newest artifact under a row lock; this serializes racing
	// submits on the same lineage.
	var (
		prevID      string
		prevStatus  models.ReviewStatus
		prevAttempt int
	)
	attempt := 1
	hasPrev := true
	err = tx.QueryRowContext(ctx, `
		SELECT id, review_status, attempt_number FROM artifacts
		WHERE application_id = $1 AND kind = $2 AND document_type = $3
		ORDER BY attempt_number DESC LIMIT 1
		FOR UPDATE`, lineage.ApplicationID, lineage.Kind, lineage.DocumentType).
		Scan(&prevID, &prevStatus, &prevAttempt)
	if err == sql.ErrNoRows {
		hasPrev = false
	} else if err != nil {
		return "", derr.Storagef("lineage head read failed: %v", err)
	}

	if hasPrev {
		if prevStatus == models.ReviewStatusPending || prevStatus == models.ReviewStatusApproved {
			return "", fmt.Errorf("%w: %s artifact already open for lineage %s",
				derr.ErrConflict, prevStatus, lineage)
		}
		attempt = prevAttempt + 1
	}

	artifactID := uuid.New().String()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO artifacts (
			id, application_id, kind, document_type, payload_ref,
			review_status, attempt_number, created_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)`,
		artifactID, lineage.ApplicationID, lineage.Kind, lineage.DocumentType,
		payloadRef, attempt, now)
	if err != nil {
		return "", derr.Storagef("artifact insert failed: %v", err)
	}

	if hasPrev {
		// Link the rejected predecessor and close out its rejection record.
		_, err = tx.ExecContext(ctx,
			`UPDATE artifacts SET superseded_by = $1 WHERE id = $2`,
			artifactID, prevID)
		if err != nil {
			return "", derr.Storagef("supersede link failed: %v", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rejection_records SET was_replaced = TRUE, replaced_at = $1
			WHERE application_id = $2 AND kind = $3 AND document_type = $4
			  AND attempt_number = $5 AND was_replaced = FALSE`,
			now, lineage.ApplicationID, lineage.Kind, lineage.DocumentType, prevAttempt)
		if err != nil {
			return "", derr.Storagef("rejection record update failed: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", derr.Storagef("commit submit tx: %v", err)
	}

	s.log.Info("artifact submitted", map[string]interface{}{
		"artifactId": artifactID,
		"lineage":    lineage.String(),
		"attempt":    attempt,
		"actorId":    actor.ID,
	})

	return artifactID, nil
}

// Review applies a reviewer decision to a pending artifact. Concurrent
// reviews serialize on the artifact row; the loser sees AlreadyReviewed.
func (s *Service) Review(ctx context.Context, actor models.Actor, artifactID string, input ReviewInput) (*Outcome, []models.Notification, error) {
	if !actor.HasRole(models.RoleReviewer) && !actor.HasRole(models.RoleAdmin) {
		return nil, nil, fmt.Errorf("%w: reviewing requires the reviewer role", derr.ErrUnauthorized)
	}
	if input.Decision != DecisionApprove && input.Decision != DecisionReject {
		return nil, nil, fmt.Errorf("%w: unknown decision %q", derr.ErrInvalidTransition, input.Decision)
	}
	if input.Decision == DecisionReject && (input.Category == "" || input.Reason == "") {
		return nil, nil, fmt.Errorf("%w: rejection requires category and reason", derr.ErrConflict)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, derr.Storagef("begin review tx: %v", err)
	}
	defer tx.Rollback()

	var (
		appID        string
		kind         models.ArtifactKind
		documentType string
		status       models.ReviewStatus
		attempt      int
		applicantID  string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT a.application_id, a.kind, a.document_type, a.review_status,
		       a.attempt_number, app.applicant_id
		FROM artifacts a
		JOIN applications app ON app.id = a.application_id
		WHERE a.id = $1
		FOR UPDATE OF a`, artifactID).
		Scan(&appID, &kind, &documentType, &status, &attempt, &applicantID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: artifact %s", derr.ErrNotFound, artifactID)
	}
	if err != nil {
		return nil, nil, derr.Storagef("artifact read failed: %v", err)
	}

	if status != models.ReviewStatusPending {
		return nil, nil, fmt.Errorf("%w: artifact %s is %s", derr.ErrAlreadyReviewed, artifactID, status)
	}

	now := time.Now().UTC()
	outcome := &Outcome{
		ArtifactID:    artifactID,
		ApplicationID: appID,
		Kind:          kind,
		AttemptNumber: attempt,
	}
	var notes []models.Notification

	switch input.Decision {
	case DecisionApprove:
		_, err = tx.ExecContext(ctx, `
			UPDATE artifacts SET review_status = 'approved', reviewed_by = $1,
			       reviewed_at = $2, remarks = $3
			WHERE id = $4`,
			actor.ID, now, input.Remarks, artifactID)
		if err != nil {
			return nil, nil, derr.Storagef("approve update failed: %v", err)
		}
		outcome.Approved = true
		notes = append(notes, notify.ArtifactApproved(applicantID, kind, appID))

	case DecisionReject:
		_, err = tx.ExecContext(ctx, `
			UPDATE artifacts SET review_status = 'rejected', reviewed_by = $1,
			       reviewed_at = $2, remarks = $3
			WHERE id = $4`,
			actor.ID, now, input.Remarks, artifactID)
		if err != nil {
			return nil, nil, derr.Storagef("reject update failed: %v", err)
		}

		issuesJSON, err := json.Marshal(input.SpecificIssues)
		if err != nil {
			issuesJSON = []byte("[]")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rejection_records (
				id, application_id, kind, document_type, rejected_by, rejected_at,
				category, reason, specific_issues, attempt_number,
				was_replaced, notification_sent
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, FALSE)`,
			uuid.New().String(), appID, kind, documentType, actor.ID, now,
			input.Category, input.Reason, issuesJSON, attempt)
		if err != nil {
			return nil, nil, derr.Storagef("rejection record insert failed: %v", err)
		}

		rejLineage := models.Lineage{ApplicationID: appID, Kind: kind, DocumentType: documentType}
		outcome.Locked = attempt >= s.maxAttempts
		if outcome.Locked {
			notes = append(notes, notify.LineageEscalated(applicantID, rejLineage, attempt))
		} else {
			remaining := s.maxAttempts - attempt
			notes = append(notes, notify.ArtifactRejected(applicantID, rejLineage, input.Reason, attempt, remaining))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, derr.Storagef("commit review tx: %v", err)
	}

	metrics.ArtifactsReviewed.WithLabelValues(string(kind), string(input.Decision)).Inc()
	if outcome.Locked {
		metrics.LineagesLocked.WithLabelValues(string(kind)).Inc()
	}

	s.log.Info("artifact reviewed", map[string]interface{}{
		"artifactId":    artifactID,
		"applicationId": appID,
		"decision":      string(input.Decision),
		"attempt":       attempt,
		"locked":        outcome.Locked,
		"reviewerId":    actor.ID,
	})

	return outcome, notes, nil
}

// submittable reports whether an artifact of the given kind may be
// submitted while the application is in the given status.
func submittable(kind models.ArtifactKind, status models.Status) bool {
	switch kind {
	case models.ArtifactKindPayment:
		return status == models.StatusPaymentValidation || status == models.StatusPaymentNeedsRevision
	default:
		return status == models.StatusDocumentVerification || status == models.StatusDocumentsNeedRevision
	}
}

// History returns the rejection records for a lineage, oldest first.
func (s *Service) History(ctx context.Context, lineage models.Lineage) ([]models.RejectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rejected_by, rejected_at, category, reason, specific_issues,
		       attempt_number, was_replaced, replaced_at, notification_sent
		FROM rejection_records
		WHERE application_id = $1 AND kind = $2 AND document_type = $3
		ORDER BY attempt_number ASC`,
		lineage.ApplicationID, lineage.Kind, lineage.DocumentType)
	if err != nil {
		return nil, derr.Storagef("history query failed: %v", err)
	}
	defer rows.Close()

	var records []models.RejectionRecord
	for rows.Next() {
		rec := models.RejectionRecord{
			ApplicationID: lineage.ApplicationID,
			Kind:          lineage.Kind,
			DocumentType:  lineage.DocumentType,
		}
		var issuesJSON []byte
		var replacedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.RejectedBy, &rec.RejectedAt, &rec.Category,
			&rec.Reason, &issuesJSON, &rec.AttemptNumber, &rec.WasReplaced,
			&replacedAt, &rec.NotificationSent); err != nil {
			return nil, derr.Storagef("history scan failed: %v", err)
		}
		if len(issuesJSON) > 0 {
			_ = json.Unmarshal(issuesJSON, &rec.SpecificIssues)
		}
		if replacedAt.Valid {
			t := replacedAt.Time
			rec.ReplacedAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, derr.Storagef("history rows failed: %v", err)
	}

	return records, nil
}
