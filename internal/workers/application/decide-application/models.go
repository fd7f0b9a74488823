// internal/workers/application/decide-application/models.go
package decideapplication

type Input struct {
	ApplicationID string   `json:"applicationId"`
	Approve       bool     `json:"approve"`
	Remarks       string   `json:"remarks,omitempty"`
	ActorID       string   `json:"actorId"`
	ActorRoles    []string `json:"actorRoles"`
}

type Output struct {
	ApplicationStatus  string `json:"applicationStatus"`
	HealthCardID       string `json:"healthCardId,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	DecidedAt          string `json:"decidedAt"` // ISO 8601
}
