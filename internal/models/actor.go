// internal/models/actor.go
package models

// Roles recognized by the core. Identity verification happens upstream; the
// core only checks role preconditions on state-changing operations.
const (
	RoleApplicant = "applicant"
	RoleReviewer  = "reviewer"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Actor is the verified caller identity handed in by the request layer.
// It replaces the source system's ambient "current admin" scoping state.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SystemActor is used for transitions the machine performs on its own
// (timeout sweeps, booking callbacks).
var SystemActor = Actor{ID: "system", Roles: []string{RoleSystem}}
