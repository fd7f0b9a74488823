// internal/workers/orientation/book-orientation/models.go
package bookorientation

type Input struct {
	ApplicationID string `json:"applicationId"`
	ScheduleID    string `json:"scheduleId"`
	UserID        string `json:"userId"`
}

type Output struct {
	BookingID     string `json:"bookingId"`
	BookingStatus string `json:"bookingStatus"`
	BookedAt      string `json:"bookedAt"` // ISO 8601
}
