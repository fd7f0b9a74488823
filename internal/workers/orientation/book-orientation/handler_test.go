// internal/workers/orientation/book-orientation/handler_test.go
package bookorientation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derr "healthcard-workers/internal/common/errors"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/models"
)

type stubScheduler struct {
	booking *models.OrientationBooking
	notes   []models.Notification
	err     error

	gotActor      models.Actor
	gotApp, gotID string
}

func (s *stubScheduler) Book(ctx context.Context, actor models.Actor, applicationID, scheduleID string) (*models.OrientationBooking, []models.Notification, error) {
	s.gotActor = actor
	s.gotApp = applicationID
	s.gotID = scheduleID
	return s.booking, s.notes, s.err
}

type stubNotifier struct {
	dispatched []models.Notification
}

func (s *stubNotifier) Dispatch(ctx context.Context, notes []models.Notification) {
	s.dispatched = append(s.dispatched, notes...)
}

func TestExecute_BooksSlot(t *testing.T) {
	bookedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	sched := &stubScheduler{
		booking: &models.OrientationBooking{
			ID:            "booking-001",
			ApplicationID: "app-001",
			UserID:        "user-001",
			ScheduleID:    "sched-001",
			Status:        models.BookingStatusScheduled,
			BookedAt:      bookedAt,
		},
		notes: []models.Notification{{RecipientID: "user-001", Kind: models.NotifyBookingConfirmed}},
	}
	nt := &stubNotifier{}
	handler := NewHandler(LoadConfig(), sched, nt, logger.NewNoOpLogger())

	output, err := handler.Execute(context.Background(), &Input{
		ApplicationID: "app-001",
		ScheduleID:    "sched-001",
		UserID:        "user-001",
	})

	require.NoError(t, err)
	assert.Equal(t, "booking-001", output.BookingID)
	assert.Equal(t, "scheduled", output.BookingStatus)
	assert.Equal(t, bookedAt.Format(time.RFC3339), output.BookedAt)
	assert.Equal(t, "user-001", sched.gotActor.ID)
	assert.True(t, sched.gotActor.HasRole(models.RoleApplicant))
	assert.Len(t, nt.dispatched, 1)
}

func TestExecute_FullSchedulePropagatesError(t *testing.T) {
	sched := &stubScheduler{
		err: fmt.Errorf("%w: schedule sched-001 is full", derr.ErrNoCapacity),
	}
	nt := &stubNotifier{}
	handler := NewHandler(LoadConfig(), sched, nt, logger.NewNoOpLogger())

	_, err := handler.Execute(context.Background(), &Input{
		ApplicationID: "app-001",
		ScheduleID:    "sched-001",
		UserID:        "user-001",
	})

	assert.ErrorIs(t, err, derr.ErrNoCapacity)
	assert.Empty(t, nt.dispatched)
}
