// internal/core/scheduler/service_test.go
package scheduler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcard-workers/internal/common/config"
	"healthcard-workers/internal/common/database"
	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/core/lifecycle"
	"healthcard-workers/internal/models"
)

type stubAdvancer struct {
	booked, cancelled, checkedIn, completed, missed []string
}

func (s *stubAdvancer) OnOrientationBooked(ctx context.Context, tx *sql.Tx, applicationID string) error {
	s.booked = append(s.booked, applicationID)
	return nil
}

func (s *stubAdvancer) OnOrientationCancelled(ctx context.Context, tx *sql.Tx, applicationID string) error {
	s.cancelled = append(s.cancelled, applicationID)
	return nil
}

func (s *stubAdvancer) OnOrientationCheckedIn(ctx context.Context, tx *sql.Tx, applicationID string) error {
	s.checkedIn = append(s.checkedIn, applicationID)
	return nil
}

func (s *stubAdvancer) OnOrientationCompleted(ctx context.Context, tx *sql.Tx, applicationID string) error {
	s.completed = append(s.completed, applicationID)
	return nil
}

func (s *stubAdvancer) OnOrientationMissed(ctx context.Context, tx *sql.Tx, applicationID string) error {
	s.missed = append(s.missed, applicationID)
	return nil
}

func testOrientationConfig() config.OrientationConfig {
	return config.OrientationConfig{
		NoShowGraceMinutes:          60,
		SweepIntervalMinutes:        15,
		AvailabilityCacheTTLSeconds: 30,
	}
}

func newTestService(t *testing.T, cache *database.RedisClient) (*Service, sqlmock.Sqlmock, *stubAdvancer) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	advancer := &stubAdvancer{}
	svc := NewService(db, cache, advancer, testOrientationConfig(), logger.NewNoOpLogger())
	return svc, mock, advancer
}

func applicantActor() models.Actor {
	return models.Actor{ID: "user-001", Roles: []string{models.RoleApplicant}}
}

func expectLoadBooking(mock sqlmock.Sqlmock, bookingID string, status models.BookingStatus) {
	mock.ExpectQuery(`SELECT application_id, user_id, schedule_id, status`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{
			"application_id", "user_id", "schedule_id", "status",
		}).AddRow("app-001", "user-001", "sched-001", string(status)))
}

func TestBook_Success(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)
	startsAt := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT starts_at FROM orientation_schedules`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"starts_at"}).AddRow(startsAt))
	mock.ExpectExec(`INSERT INTO orientation_bookings`).
		WithArgs(sqlmock.AnyArg(), "app-001", "user-001", "sched-001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, notes, err := svc.Book(context.Background(), applicantActor(), "app-001", "sched-001")

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusScheduled, booking.Status)
	assert.Equal(t, []string{"app-001"}, advancer.booked)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyBookingConfirmed, notes[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBook_NoCapacity(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, _, err := svc.Book(context.Background(), applicantActor(), "app-001", "sched-001")

	assert.ErrorIs(t, err, derr.ErrNoCapacity)
	assert.Empty(t, advancer.booked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBook_ScheduleNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("sched-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, _, err := svc.Book(context.Background(), applicantActor(), "app-001", "sched-missing")

	assert.ErrorIs(t, err, derr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBook_AlreadyBooked(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, _, err := svc.Book(context.Background(), applicantActor(), "app-001", "sched-001")

	assert.ErrorIs(t, err, derr.ErrAlreadyBooked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The conditional decrement is the capacity gate: the last slot goes to
// whichever transaction's UPDATE lands first, the other sees zero rows.
func TestBook_LastSlotRace(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)
	startsAt := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)

	// Winner takes the last slot.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT starts_at FROM orientation_schedules`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"starts_at"}).AddRow(startsAt))
	mock.ExpectExec(`INSERT INTO orientation_bookings`).
		WithArgs(sqlmock.AnyArg(), "app-001", "user-001", "sched-001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Loser's decrement affects no rows.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("app-002").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, _, err := svc.Book(context.Background(), applicantActor(), "app-001", "sched-001")
	require.NoError(t, err)

	_, _, err = svc.Book(context.Background(),
		models.Actor{ID: "user-002", Roles: []string{models.RoleApplicant}}, "app-002", "sched-001")
	assert.ErrorIs(t, err, derr.ErrNoCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_ReleasesSlot(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusScheduled)
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'cancelled'`).
		WithArgs("booking-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Cancel(context.Background(), applicantActor(), "booking-001")

	require.NoError(t, err)
	assert.Equal(t, []string{"app-001"}, advancer.cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A checked-in attendee can still cancel: the booking releases its slot and
// the application returns from attendance validation to the pending state.
// Driven through the real state machine rather than a stub so the edge is
// covered end to end.
func TestCancel_CheckedInBookingReturnsApplicationToPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewNoOpLogger()
	lifecycleSvc := lifecycle.NewService(db, config.LifecycleConfig{ExpireAfterDays: 90}, nil, nil, log)
	svc := NewService(db, nil, lifecycleSvc, testOrientationConfig(), log)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusCheckedIn)
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'cancelled'`).
		WithArgs("booking-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT applicant_id, status, orientation_required, orientation_completed`).
		WithArgs("app-001").
		WillReturnRows(sqlmock.NewRows([]string{
			"applicant_id", "status", "orientation_required", "orientation_completed",
		}).AddRow("user-001", string(models.StatusAttendanceValidation), true, false))
	mock.ExpectExec(`UPDATE applications SET status`).
		WithArgs(string(models.StatusOrientationPending), sqlmock.AnyArg(), "app-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_transitions`).
		WithArgs(sqlmock.AnyArg(), "app-001", string(models.StatusAttendanceValidation),
			string(models.StatusOrientationPending), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = svc.Cancel(context.Background(), applicantActor(), "booking-001")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_AlreadyCancelledIsNoOp(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusCancelled)
	mock.ExpectRollback()

	err := svc.Cancel(context.Background(), applicantActor(), "booking-001")

	assert.NoError(t, err)
	assert.Empty(t, advancer.cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_MissedBookingFails(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusMissed)
	mock.ExpectRollback()

	err := svc.Cancel(context.Background(), applicantActor(), "booking-001")

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_BeforeSlotStartFails(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)
	startsAt := now.Add(time.Hour)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusScheduled)
	mock.ExpectQuery(`SELECT starts_at FROM orientation_schedules`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"starts_at"}).AddRow(startsAt))
	mock.ExpectRollback()

	err := svc.CheckIn(context.Background(), "booking-001", now)

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.Empty(t, advancer.checkedIn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_AfterSlotStart(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)
	startsAt := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	now := startsAt.Add(5 * time.Minute)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusScheduled)
	mock.ExpectQuery(`SELECT starts_at FROM orientation_schedules`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"starts_at"}).AddRow(startsAt))
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'checked_in'`).
		WithArgs(sqlmock.AnyArg(), "booking-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.CheckIn(context.Background(), "booking-001", now)

	require.NoError(t, err)
	assert.Equal(t, []string{"app-001"}, advancer.checkedIn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_RequiresCheckedIn(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusScheduled)
	mock.ExpectRollback()

	err := svc.Complete(context.Background(), "booking-001", time.Now().UTC())

	assert.ErrorIs(t, err, derr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_Success(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)

	mock.ExpectBegin()
	expectLoadBooking(mock, "booking-001", models.BookingStatusCheckedIn)
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'completed'`).
		WithArgs(sqlmock.AnyArg(), "booking-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Complete(context.Background(), "booking-001", time.Now().UTC())

	require.NoError(t, err)
	assert.Equal(t, []string{"app-001"}, advancer.completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepNoShows_MarksMissedAndSkipsRacedCheckIn(t *testing.T) {
	svc, mock, advancer := newTestService(t, nil)
	now := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT b.id, b.application_id, b.user_id, b.schedule_id`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "user_id", "schedule_id"}).
			AddRow("booking-001", "app-001", "user-001", "sched-001").
			AddRow("booking-002", "app-002", "user-002", "sched-001"))

	// booking-001 is swept to missed.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'missed'`).
		WithArgs("booking-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orientation_schedules`).
		WithArgs("sched-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// booking-002 checked in between query and sweep; conditional update
	// affects no rows and the sweep leaves it alone.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE orientation_bookings SET status = 'missed'`).
		WithArgs("booking-002").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	swept, notes, err := svc.SweepNoShows(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, []string{"app-001"}, advancer.missed)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyBookingMissed, notes[0].Kind)
	assert.Equal(t, "user-001", notes[0].RecipientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailability_CachesReads(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { cache.Close() })

	svc, mock, _ := newTestService(t, cache)
	startsAt := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)

	// First read misses the cache and hits the database.
	mock.ExpectQuery(`SELECT starts_at, total_slots, available_slots`).
		WithArgs("sched-001").
		WillReturnRows(sqlmock.NewRows([]string{"starts_at", "total_slots", "available_slots"}).
			AddRow(startsAt, 30, 12))

	first, err := svc.Availability(context.Background(), "sched-001")
	require.NoError(t, err)
	assert.Equal(t, 12, first.AvailableSlots)

	// Second read is served from the cache; no further DB expectation.
	second, err := svc.Availability(context.Background(), "sched-001")
	require.NoError(t, err)
	assert.Equal(t, first.AvailableSlots, second.AvailableSlots)
	assert.Equal(t, first.TotalSlots, second.TotalSlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailability_ScheduleNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t, nil)

	mock.ExpectQuery(`SELECT starts_at, total_slots, available_slots`).
		WithArgs("sched-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Availability(context.Background(), "sched-missing")

	assert.ErrorIs(t, err, derr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
