// internal/workers/healthcard/issue-health-card/models.go
package issuehealthcard

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	HealthCardID       string `json:"healthCardId"`
	RegistrationNumber string `json:"registrationNumber"`
	IssuedDate         string `json:"issuedDate"` // ISO 8601
	ExpiryDate         string `json:"expiryDate"` // ISO 8601
}
