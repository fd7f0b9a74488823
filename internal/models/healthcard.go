// internal/models/healthcard.go
package models

import "time"

type CardStatus string

const (
	CardStatusActive  CardStatus = "active"
	CardStatusRevoked CardStatus = "revoked"
	CardStatusExpired CardStatus = "expired"
)

// HealthCard is the issued credential. At most one active card exists per
// application; the registration number is globally unique and immutable.
type HealthCard struct {
	ID                 string     `json:"id"`
	ApplicationID      string     `json:"applicationId"`
	RegistrationNumber string     `json:"registrationNumber"`
	IssuedDate         time.Time  `json:"issuedDate"`
	ExpiryDate         time.Time  `json:"expiryDate"`
	Status             CardStatus `json:"status"`
	RevokedAt          *time.Time `json:"revokedAt,omitempty"`
	RevokedReason      string     `json:"revokedReason,omitempty"`
}
