// internal/models/notification.go
package models

// Notification kinds emitted by the core.
const (
	NotifyArtifactApproved    = "artifact_approved"
	NotifyArtifactRejected    = "artifact_rejected"
	NotifyLineageEscalated    = "lineage_escalated"
	NotifyBookingConfirmed    = "booking_confirmed"
	NotifyBookingMissed       = "booking_missed"
	NotifyApplicationApproved = "application_approved"
	NotifyApplicationRejected = "application_rejected"
	NotifyApplicationExpired  = "application_expired"
	NotifyHealthCardIssued    = "health_card_issued"
	NotifyHealthCardRevoked   = "health_card_revoked"
)

// Notification is an intent, not a delivery: the core decides that something
// should be sent and with what payload; an external collaborator delivers it.
type Notification struct {
	RecipientID string                 `json:"recipientId"`
	Kind        string                 `json:"kind"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}
