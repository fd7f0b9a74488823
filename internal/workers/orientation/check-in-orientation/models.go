// internal/workers/orientation/check-in-orientation/models.go
package checkinorientation

type Input struct {
	BookingID string `json:"bookingId"`
}

type Output struct {
	BookingStatus string `json:"bookingStatus"`
	CheckedInAt   string `json:"checkedInAt"` // ISO 8601
}
