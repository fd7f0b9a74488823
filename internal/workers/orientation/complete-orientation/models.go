// internal/workers/orientation/complete-orientation/models.go
package completeorientation

type Input struct {
	BookingID string `json:"bookingId"`
}

type Output struct {
	BookingStatus string `json:"bookingStatus"`
	CompletedAt   string `json:"completedAt"` // ISO 8601
}
