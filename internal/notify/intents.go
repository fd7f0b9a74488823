// internal/notify/intents.go
package notify

import (
	"time"

	"healthcard-workers/internal/models"
)

// Intent builders. The core emits these; the dispatcher (or any other
// delivery collaborator) decides channel and wording.

func ArtifactApproved(recipientID string, kind models.ArtifactKind, applicationID string) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyArtifactApproved,
		Payload: map[string]interface{}{
			"applicationId": applicationID,
			"artifactKind":  string(kind),
		},
	}
}

func ArtifactRejected(recipientID string, lineage models.Lineage, reason string, attempt, remaining int) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyArtifactRejected,
		Payload: map[string]interface{}{
			"applicationId":     lineage.ApplicationID,
			"artifactKind":      string(lineage.Kind),
			"documentType":      lineage.DocumentType,
			"reason":            reason,
			"attemptNumber":     attempt,
			"remainingAttempts": remaining,
		},
	}
}

func LineageEscalated(recipientID string, lineage models.Lineage, attempt int) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyLineageEscalated,
		Payload: map[string]interface{}{
			"applicationId": lineage.ApplicationID,
			"artifactKind":  string(lineage.Kind),
			"documentType":  lineage.DocumentType,
			"attemptNumber": attempt,
		},
	}
}

func BookingConfirmed(recipientID, bookingID, scheduleID string, startsAt time.Time) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyBookingConfirmed,
		Payload: map[string]interface{}{
			"bookingId":  bookingID,
			"scheduleId": scheduleID,
			"startsAt":   startsAt.Format(time.RFC3339),
		},
	}
}

func BookingMissed(recipientID, bookingID, scheduleID string) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyBookingMissed,
		Payload: map[string]interface{}{
			"bookingId":  bookingID,
			"scheduleId": scheduleID,
		},
	}
}

func ApplicationDecided(recipientID, applicationID string, approved bool) models.Notification {
	kind := models.NotifyApplicationRejected
	if approved {
		kind = models.NotifyApplicationApproved
	}
	return models.Notification{
		RecipientID: recipientID,
		Kind:        kind,
		Payload: map[string]interface{}{
			"applicationId": applicationID,
		},
	}
}

func ApplicationExpired(recipientID, applicationID string) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyApplicationExpired,
		Payload: map[string]interface{}{
			"applicationId": applicationID,
		},
	}
}

func HealthCardIssued(recipientID, cardID, registrationNumber string, expiry time.Time) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyHealthCardIssued,
		Payload: map[string]interface{}{
			"healthCardId":       cardID,
			"registrationNumber": registrationNumber,
			"expiryDate":         expiry.Format(time.RFC3339),
		},
	}
}

func HealthCardRevoked(recipientID, cardID, reason string) models.Notification {
	return models.Notification{
		RecipientID: recipientID,
		Kind:        models.NotifyHealthCardRevoked,
		Payload: map[string]interface{}{
			"healthCardId": cardID,
			"reason":       reason,
		},
	}
}
