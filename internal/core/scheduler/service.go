// internal/core/scheduler/service.go

// Package scheduler manages orientation slot booking. Capacity is enforced
// in the database with a conditional decrement, so concurrent bookings can
// never oversell a schedule.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthcard-workers/internal/common/config"
	"healthcard-workers/internal/common/database"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/metrics"
	"healthcard-workers/internal/models"
	"healthcard-workers/internal/notify"
)

// ApplicationAdvancer is the lifecycle hook the scheduler drives. Methods
// run inside the scheduler's transaction so booking and status change
// commit or roll back together.
type ApplicationAdvancer interface {
	OnOrientationBooked(ctx context.Context, tx *sql.Tx, applicationID string) error
	OnOrientationCancelled(ctx context.Context, tx *sql.Tx, applicationID string) error
	OnOrientationCheckedIn(ctx context.Context, tx *sql.Tx, applicationID string) error
	OnOrientationCompleted(ctx context.Context, tx *sql.Tx, applicationID string) error
	OnOrientationMissed(ctx context.Context, tx *sql.Tx, applicationID string) error
}

type Service struct {
	db       *sql.DB
	cache    *database.RedisClient
	advancer ApplicationAdvancer
	cfg      config.OrientationConfig
	log      logger.Logger
}

func NewService(db *sql.DB, cache *database.RedisClient, advancer ApplicationAdvancer, cfg config.OrientationConfig, log logger.Logger) *Service {
	return &Service{
		db:       db,
		cache:    cache,
		advancer: advancer,
		cfg:      cfg,
		log:      log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Book reserves a slot on the schedule for the application. One active
// booking per application; the slot decrement is the capacity gate.
func (s *Service) Book(ctx context.Context, actor models.Actor, applicationID, scheduleID string) (*models.OrientationBooking, []models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, derr.Storagef("begin booking tx: %v", err)
	}
	defer tx.Rollback()

	var hasActive bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM orientation_bookings
			WHERE application_id = $1 AND status IN ('scheduled', 'checked_in', 'completed')
		)`, applicationID).Scan(&hasActive)
	if err != nil {
		return nil, nil, derr.Storagef("active booking check failed: %v", err)
	}
	if hasActive {
		metrics.BookingsDenied.WithLabelValues("already_booked").Inc()
		return nil, nil, fmt.Errorf("%w: application %s already holds a booking",
			derr.ErrAlreadyBooked, applicationID)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orientation_schedules
		SET available_slots = available_slots - 1
		WHERE id = $1 AND available_slots > 0`, scheduleID)
	if err != nil {
		return nil, nil, derr.Storagef("slot decrement failed: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, derr.Storagef("slot decrement result: %v", err)
	}
	if affected == 0 {
		// Distinguish a full schedule from a missing one.
		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orientation_schedules WHERE id = $1)`,
			scheduleID).Scan(&exists)
		if err != nil {
			return nil, nil, derr.Storagef("schedule probe failed: %v", err)
		}
		if !exists {
			return nil, nil, fmt.Errorf("%w: schedule %s", derr.ErrNotFound, scheduleID)
		}
		metrics.BookingsDenied.WithLabelValues("no_capacity").Inc()
		return nil, nil, fmt.Errorf("%w: schedule %s is full", derr.ErrNoCapacity, scheduleID)
	}

	var startsAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT starts_at FROM orientation_schedules WHERE id = $1`, scheduleID).
		Scan(&startsAt)
	if err != nil {
		return nil, nil, derr.Storagef("schedule read failed: %v", err)
	}

	now := time.Now().UTC()
	booking := &models.OrientationBooking{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		UserID:        actor.ID,
		ScheduleID:    scheduleID,
		Status:        models.BookingStatusScheduled,
		BookedAt:      now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orientation_bookings (
			id, application_id, user_id, schedule_id, status, booked_at
		) VALUES ($1, $2, $3, $4, 'scheduled', $5)`,
		booking.ID, booking.ApplicationID, booking.UserID, booking.ScheduleID, now)
	if err != nil {
		return nil, nil, derr.Storagef("booking insert failed: %v", err)
	}

	if err := s.advancer.OnOrientationBooked(ctx, tx, applicationID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, derr.Storagef("commit booking tx: %v", err)
	}

	metrics.BookingsCreated.Inc()
	s.invalidateAvailability(ctx, scheduleID)

	s.log.Info("orientation booked", map[string]interface{}{
		"bookingId":     booking.ID,
		"applicationId": applicationID,
		"scheduleId":    scheduleID,
	})

	notes := []models.Notification{
		notify.BookingConfirmed(actor.ID, booking.ID, scheduleID, startsAt),
	}
	return booking, notes, nil
}

// Cancel releases a booking and its slot. Cancelling an already cancelled
// booking is a no-op so retried jobs stay safe.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, bookingID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return derr.Storagef("begin cancel tx: %v", err)
	}
	defer tx.Rollback()

	booking, err := s.loadForUpdate(ctx, tx, bookingID)
	if err != nil {
		return err
	}

	switch booking.Status {
	case models.BookingStatusCancelled:
		return nil
	case models.BookingStatusScheduled, models.BookingStatusCheckedIn:
		// cancellable
	default:
		return fmt.Errorf("%w: booking %s is %s and cannot be cancelled",
			derr.ErrConflict, bookingID, booking.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orientation_bookings SET status = 'cancelled' WHERE id = $1`,
		bookingID)
	if err != nil {
		return derr.Storagef("booking cancel failed: %v", err)
	}

	if err := s.releaseSlot(ctx, tx, booking.ScheduleID); err != nil {
		return err
	}

	if err := s.advancer.OnOrientationCancelled(ctx, tx, booking.ApplicationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return derr.Storagef("commit cancel tx: %v", err)
	}

	s.invalidateAvailability(ctx, booking.ScheduleID)

	s.log.Info("booking cancelled", map[string]interface{}{
		"bookingId":     bookingID,
		"applicationId": booking.ApplicationID,
		"actorId":       actor.ID,
	})
	return nil
}

// CheckIn marks attendance. It is only valid once the slot has started.
func (s *Service) CheckIn(ctx context.Context, bookingID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return derr.Storagef("begin check-in tx: %v", err)
	}
	defer tx.Rollback()

	booking, err := s.loadForUpdate(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusScheduled {
		return fmt.Errorf("%w: booking %s is %s, check-in requires scheduled",
			derr.ErrConflict, bookingID, booking.Status)
	}

	var startsAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT starts_at FROM orientation_schedules WHERE id = $1`,
		booking.ScheduleID).Scan(&startsAt)
	if err != nil {
		return derr.Storagef("schedule read failed: %v", err)
	}
	if now.UTC().Before(startsAt.UTC()) {
		return fmt.Errorf("%w: slot starts at %s, check-in opens then",
			derr.ErrConflict, startsAt.UTC().Format(time.RFC3339))
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orientation_bookings SET status = 'checked_in', checked_in_at = $1 WHERE id = $2`,
		now.UTC(), bookingID)
	if err != nil {
		return derr.Storagef("check-in update failed: %v", err)
	}

	if err := s.advancer.OnOrientationCheckedIn(ctx, tx, booking.ApplicationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return derr.Storagef("commit check-in tx: %v", err)
	}

	s.log.Info("attendee checked in", map[string]interface{}{
		"bookingId":     bookingID,
		"applicationId": booking.ApplicationID,
	})
	return nil
}

// Complete records finished attendance for a checked-in booking.
func (s *Service) Complete(ctx context.Context, bookingID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return derr.Storagef("begin complete tx: %v", err)
	}
	defer tx.Rollback()

	booking, err := s.loadForUpdate(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusCheckedIn {
		return fmt.Errorf("%w: booking %s is %s, completion requires checked_in",
			derr.ErrConflict, bookingID, booking.Status)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orientation_bookings SET status = 'completed', completed_at = $1 WHERE id = $2`,
		now.UTC(), bookingID)
	if err != nil {
		return derr.Storagef("completion update failed: %v", err)
	}

	if err := s.advancer.OnOrientationCompleted(ctx, tx, booking.ApplicationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return derr.Storagef("commit complete tx: %v", err)
	}

	s.log.Info("orientation completed", map[string]interface{}{
		"bookingId":     bookingID,
		"applicationId": booking.ApplicationID,
	})
	return nil
}

// SweepNoShows marks scheduled bookings whose slot started more than the
// grace window ago as missed, releases their slots, and sends the
// application back to the pending state. Each booking gets its own
// transaction; a failure is logged and the sweep moves on.
func (s *Service) SweepNoShows(ctx context.Context, now time.Time) (int, []models.Notification, error) {
	cutoff := now.UTC().Add(-time.Duration(s.cfg.NoShowGraceMinutes) * time.Minute)

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.application_id, b.user_id, b.schedule_id
		FROM orientation_bookings b
		JOIN orientation_schedules sch ON sch.id = b.schedule_id
		WHERE b.status = 'scheduled' AND sch.starts_at < $1`, cutoff)
	if err != nil {
		return 0, nil, derr.Storagef("no-show query failed: %v", err)
	}
	defer rows.Close()

	var candidates []models.OrientationBooking
	for rows.Next() {
		var b models.OrientationBooking
		if err := rows.Scan(&b.ID, &b.ApplicationID, &b.UserID, &b.ScheduleID); err != nil {
			return 0, nil, derr.Storagef("no-show scan failed: %v", err)
		}
		candidates = append(candidates, b)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, derr.Storagef("no-show rows failed: %v", err)
	}

	swept := 0
	var notes []models.Notification
	for _, b := range candidates {
		if err := s.sweepOne(ctx, b); err != nil {
			s.log.WithError(err).Warn("no-show sweep skipped booking", map[string]interface{}{
				"bookingId": b.ID,
			})
			continue
		}
		swept++
		notes = append(notes, notify.BookingMissed(b.UserID, b.ID, b.ScheduleID))
		s.invalidateAvailability(ctx, b.ScheduleID)
	}

	if swept > 0 {
		metrics.NoShowsSwept.Add(float64(swept))
		s.log.Info("no-show sweep finished", map[string]interface{}{
			"swept": swept,
		})
	}
	return swept, notes, nil
}

func (s *Service) sweepOne(ctx context.Context, b models.OrientationBooking) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return derr.Storagef("begin sweep tx: %v", err)
	}
	defer tx.Rollback()

	// Conditional update: a check-in that raced the sweep wins.
	res, err := tx.ExecContext(ctx,
		`UPDATE orientation_bookings SET status = 'missed' WHERE id = $1 AND status = 'scheduled'`,
		b.ID)
	if err != nil {
		return derr.Storagef("missed update failed: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return derr.Storagef("missed update result: %v", err)
	}
	if affected == 0 {
		return tx.Commit()
	}

	if err := s.releaseSlot(ctx, tx, b.ScheduleID); err != nil {
		return err
	}

	if err := s.advancer.OnOrientationMissed(ctx, tx, b.ApplicationID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return derr.Storagef("commit sweep tx: %v", err)
	}
	return nil
}

// Availability serves the slot count through a short-lived Redis cache.
// Booking paths invalidate the key, so staleness is bounded by the TTL
// and corrected by the conditional decrement anyway.
func (s *Service) Availability(ctx context.Context, scheduleID string) (*models.ScheduleAvailability, error) {
	key := availabilityKey(scheduleID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err == nil {
			var av models.ScheduleAvailability
			if err := json.Unmarshal([]byte(cached), &av); err == nil {
				return &av, nil
			}
		} else if !database.IsNil(err) {
			s.log.WithError(err).Warn("availability cache read failed", map[string]interface{}{
				"scheduleId": scheduleID,
			})
		}
	}

	av := &models.ScheduleAvailability{ScheduleID: scheduleID}
	err := s.db.QueryRowContext(ctx, `
		SELECT starts_at, total_slots, available_slots
		FROM orientation_schedules WHERE id = $1`, scheduleID).
		Scan(&av.StartsAt, &av.TotalSlots, &av.AvailableSlots)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: schedule %s", derr.ErrNotFound, scheduleID)
	}
	if err != nil {
		return nil, derr.Storagef("availability read failed: %v", err)
	}

	if s.cache != nil {
		if body, err := json.Marshal(av); err == nil {
			ttl := time.Duration(s.cfg.AvailabilityCacheTTLSeconds) * time.Second
			if err := s.cache.Set(ctx, key, string(body), ttl); err != nil {
				s.log.WithError(err).Warn("availability cache write failed", map[string]interface{}{
					"scheduleId": scheduleID,
				})
			}
		}
	}
	return av, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *sql.Tx, bookingID string) (*models.OrientationBooking, error) {
	b := &models.OrientationBooking{ID: bookingID}
	err := tx.QueryRowContext(ctx, `
		SELECT application_id, user_id, schedule_id, status
		FROM orientation_bookings WHERE id = $1
		FOR UPDATE`, bookingID).
		Scan(&b.ApplicationID, &b.UserID, &b.ScheduleID, &b.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking %s", derr.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, derr.Storagef("booking lock failed: %v", err)
	}
	return b, nil
}

// releaseSlot returns one slot, clamped at total capacity.
func (s *Service) releaseSlot(ctx context.Context, tx *sql.Tx, scheduleID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orientation_schedules
		SET available_slots = available_slots + 1
		WHERE id = $1 AND available_slots < total_slots`, scheduleID)
	if err != nil {
		return derr.Storagef("slot release failed: %v", err)
	}
	return nil
}

func (s *Service) invalidateAvailability(ctx context.Context, scheduleID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, availabilityKey(scheduleID)); err != nil {
		s.log.WithError(err).Warn("availability cache invalidation failed", map[string]interface{}{
			"scheduleId": scheduleID,
		})
	}
}

func availabilityKey(scheduleID string) string {
	return "orientation:availability:" + scheduleID
}
