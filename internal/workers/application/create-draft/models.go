// internal/workers/application/create-draft/models.go
package createdraft

type Input struct {
	ApplicantID         string `json:"applicantId"`
	JobCategoryID       string `json:"jobCategoryId"`
	ApplicationType     string `json:"applicationType"` // "new" or "renew"
	OrientationRequired bool   `json:"orientationRequired"`
	ActorID             string `json:"actorId"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	CreatedAt         string `json:"createdAt"` // ISO 8601
}
