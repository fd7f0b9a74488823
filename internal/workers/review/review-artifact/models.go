// internal/workers/review/review-artifact/models.go
package reviewartifact

type Input struct {
	ArtifactID     string   `json:"artifactId"`
	ReviewerID     string   `json:"reviewerId"`
	ReviewerRoles  []string `json:"reviewerRoles"`
	Decision       string   `json:"decision"` // "approve" or "reject"
	Category       string   `json:"category,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	SpecificIssues []string `json:"specificIssues,omitempty"`
	Remarks        string   `json:"remarks,omitempty"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	Approved          bool   `json:"approved"`
	AttemptNumber     int    `json:"attemptNumber"`
	Locked            bool   `json:"locked"`
	ApplicationStatus string `json:"applicationStatus"`
	ReviewedAt        string `json:"reviewedAt"` // ISO 8601
}
