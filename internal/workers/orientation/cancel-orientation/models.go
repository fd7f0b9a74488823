// internal/workers/orientation/cancel-orientation/models.go
package cancelorientation

type Input struct {
	BookingID string `json:"bookingId"`
	ActorID   string `json:"actorId"`
}

type Output struct {
	BookingStatus string `json:"bookingStatus"`
	CancelledAt   string `json:"cancelledAt"` // ISO 8601
}
