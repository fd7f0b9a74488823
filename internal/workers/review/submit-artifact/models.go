// internal/workers/review/submit-artifact/models.go
package submitartifact

type Input struct {
	ApplicationID string `json:"applicationId"`
	Kind          string `json:"kind"`         // "document" or "payment"
	DocumentType  string `json:"documentType"` // empty for payment proofs
	PayloadRef    string `json:"payloadRef"`
	ActorID       string `json:"actorId"`
}

type Output struct {
	ArtifactID        string `json:"artifactId"`
	ApplicationStatus string `json:"applicationStatus"`
	SubmittedAt       string `json:"submittedAt"` // ISO 8601
}
