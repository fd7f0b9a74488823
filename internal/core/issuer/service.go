// internal/core/issuer/service.go

// Package issuer mints health cards for approved applications. Issue is
// idempotent per application so it can be safely retried after a crash
// between approval and issuance.
package issuer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"healthcard-workers/internal/common/config"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/metrics"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/notify"
)

type Service struct {
	db  *sql.DB
	cfg config.HealthCardConfig
	log logger.Logger
}

func NewService(db *sql.DB, cfg config.HealthCardConfig, log logger.Logger) *Service {
	return &Service{
		db:  db,
		cfg: cfg,
		log: log.WithFields(map[string]interface{}{"component": "issuer"}),
	}
}

// Issue creates the card for an approved application, or returns the
// existing active card when one was already minted.
func (s *Service) Issue(ctx context.Context, applicationID string) (*models.HealthCard, []models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, derr.Storagef("begin issue tx: %v", err)
	}
	defer tx.Rollback()

	existing := &models.HealthCard{ApplicationID: applicationID, Status: models.CardStatusActive}
	err = tx.QueryRowContext(ctx, `
		SELECT id, registration_number, issued_date, expiry_date
		FROM health_cards
		WHERE application_id = $1 AND status = 'active'
		FOR UPDATE`, applicationID).
		Scan(&existing.ID, &existing.RegistrationNumber, &existing.IssuedDate, &existing.ExpiryDate)
	if err == nil {
		_ = tx.Commit()
		return existing, nil, nil
	}
	if err != sql.ErrNoRows {
		return nil, nil, derr.Storagef("active card lookup failed: %v", err)
	}

	var applicantID string
	var status models.Status
	err = tx.QueryRowContext(ctx,
		`SELECT applicant_id, status FROM applications WHERE id = $1`, applicationID).
		Scan(&applicantID, &status)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: application %s", derr.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, nil, derr.Storagef("application read failed: %v", err)
	}
	if status != models.StatusApproved {
		return nil, nil, fmt.Errorf("%w: application %s is %s, issuance requires %s",
			derr.ErrConflict, applicationID, status, models.StatusApproved)
	}

	now := time.Now().UTC()
	card := &models.HealthCard{
		ID:                 uuid.New().String(),
		ApplicationID:      applicationID,
		RegistrationNumber: s.registrationNumber(now),
		IssuedDate:         now,
		ExpiryDate:         now.AddDate(0, s.cfg.ValidityMonths, 0),
		Status:             models.CardStatusActive,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO health_cards (
			id, application_id, registration_number, issued_date, expiry_date, status
		) VALUES ($1, $2, $3, $4, $5, 'active')`,
		card.ID, card.ApplicationID, card.RegistrationNumber,
		card.IssuedDate, card.ExpiryDate)
	if err != nil {
		return nil, nil, derr.Storagef("card insert failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, derr.Storagef("commit issue tx: %v", err)
	}

	metrics.HealthCardsIssued.Inc()
	s.log.Info("health card issued", map[string]interface{}{
		"healthCardId":       card.ID,
		"applicationId":      applicationID,
		"registrationNumber": card.RegistrationNumber,
	})

	notes := []models.Notification{
		notify.HealthCardIssued(applicantID, card.ID, card.RegistrationNumber, card.ExpiryDate),
	}
	return card, notes, nil
}

// Revoke withdraws a card. Revoking an already revoked card is a no-op.
func (s *Service) Revoke(ctx context.Context, actor models.Actor, cardID, reason string) ([]models.Notification, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: revoking requires the admin role", derr.ErrUnauthorized)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, derr.Storagef("begin revoke tx: %v", err)
	}
	defer tx.Rollback()

	var status models.CardStatus
	var applicantID string
	err = tx.QueryRowContext(ctx, `
		SELECT hc.status, app.applicant_id
		FROM health_cards hc
		JOIN applications app ON app.id = hc.application_id
		WHERE hc.id = $1
		FOR UPDATE OF hc`, cardID).Scan(&status, &applicantID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: health card %s", derr.ErrNotFound, cardID)
	}
	if err != nil {
		return nil, derr.Storagef("card lock failed: %v", err)
	}
	if status == models.CardStatusRevoked {
		return nil, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE health_cards
		SET status = 'revoked', revoked_at = $1, revoked_reason = $2
		WHERE id = $3`, now, reason, cardID)
	if err != nil {
		return nil, derr.Storagef("card revoke failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, derr.Storagef("commit revoke tx: %v", err)
	}

	s.log.Info("health card revoked", map[string]interface{}{
		"healthCardId": cardID,
		"actorId":      actor.ID,
		"reason":       reason,
	})

	return []models.Notification{notify.HealthCardRevoked(applicantID, cardID, reason)}, nil
}

// Get returns a card by id.
func (s *Service) Get(ctx context.Context, cardID string) (*models.HealthCard, error) {
	card := &models.HealthCard{ID: cardID}
	var revokedAt sql.NullTime
	var revokedReason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT application_id, registration_number, issued_date, expiry_date,
		       status, revoked_at, revoked_reason
		FROM health_cards WHERE id = $1`, cardID).
		Scan(&card.ApplicationID, &card.RegistrationNumber, &card.IssuedDate,
			&card.ExpiryDate, &card.Status, &revokedAt, &revokedReason)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: health card %s", derr.ErrNotFound, cardID)
	}
	if err != nil {
		return nil, derr.Storagef("card read failed: %v", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		card.RevokedAt = &t
	}
	card.RevokedReason = revokedReason.String
	return card, nil
}

// registrationNumber builds HC-<year>-<12 hex chars>, e.g. HC-2026-4F1A09C2B3D7.
func (s *Service) registrationNumber(now time.Time) string {
	prefix := s.cfg.RegistrationPrefix
	if prefix == "" {
		prefix = "HC"
	}
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), raw[:12])
}
