// internal/workers/healthcard/revoke-health-card/models.go
package revokehealthcard

type Input struct {
	HealthCardID string   `json:"healthCardId"`
	Reason       string   `json:"reason"`
	ActorID      string   `json:"actorId"`
	ActorRoles   []string `json:"actorRoles"`
}

type Output struct {
	CardStatus string `json:"cardStatus"`
	RevokedAt  string `json:"revokedAt"` // ISO 8601
}
