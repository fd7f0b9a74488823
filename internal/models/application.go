// internal/models/application.go
package models

import "time"

type ApplicationType string

const (
	ApplicationTypeNew   ApplicationType = "new"
	ApplicationTypeRenew ApplicationType = "renew"
)

// Application is one applicant's request for a health-card category.
// Mutated exclusively by the lifecycle state machine.
type Application struct {
	ID                   string          `json:"id"`
	ApplicantID          string          `json:"applicantId"`
	JobCategoryID        string          `json:"jobCategoryId"`
	ApplicationType      ApplicationType `json:"applicationType"`
	Status               Status          `json:"status"`
	OrientationRequired  bool            `json:"orientationRequired"`
	OrientationCompleted bool            `json:"orientationCompleted"`
	AdminRemarks         string          `json:"adminRemarks,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// TransitionEntry is one audit record of a status change.
type TransitionEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	ActorID       string    `json:"actorId"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}
