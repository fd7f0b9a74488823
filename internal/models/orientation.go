// internal/models/orientation.go
package models

import "time"

type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusCheckedIn BookingStatus = "checked_in"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusMissed    BookingStatus = "missed"
)

// Active reports whether the booking holds a slot.
func (s BookingStatus) Active() bool {
	switch s {
	case BookingStatusScheduled, BookingStatusCheckedIn, BookingStatusCompleted:
		return true
	}
	return false
}

type Venue struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Capacity int    `json:"capacity"`
}

// OrientationSchedule is a bookable time slot. availableSlots never leaves
// [0, totalSlots]; only the scheduler's booking operations mutate it.
type OrientationSchedule struct {
	ID             string    `json:"id"`
	StartsAt       time.Time `json:"startsAt"`
	Venue          Venue     `json:"venue"`
	TotalSlots     int       `json:"totalSlots"`
	AvailableSlots int       `json:"availableSlots"`
}

// OrientationBooking is one applicant's reservation against a schedule.
type OrientationBooking struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"applicationId"`
	UserID        string        `json:"userId"`
	ScheduleID    string        `json:"scheduleId"`
	Status        BookingStatus `json:"status"`
	BookedAt      time.Time     `json:"bookedAt"`
	CheckedInAt   *time.Time    `json:"checkedInAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// ScheduleAvailability is the cached read-model served to slot pickers.
type ScheduleAvailability struct {
	ScheduleID     string    `json:"scheduleId"`
	StartsAt       time.Time `json:"startsAt"`
	TotalSlots     int       `json:"totalSlots"`
	AvailableSlots int       `json:"availableSlots"`
}
