// internal/workers/application/submit-application/models.go
package submitapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
	ActorID       string `json:"actorId"`
}

type Output struct {
	ApplicationStatus string `json:"applicationStatus"`
	SubmittedAt       string `json:"submittedAt"` // ISO 8601
}
