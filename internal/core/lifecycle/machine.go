// internal/core/lifecycle/machine.go
package lifecycle

import (
	"sort"
	"strings"

	"healthcard-workers/internal/models"
)

// transitions is the single source of truth for legal lifecycle edges.
// The exact set of intermediate states is policy; changing it means editing
// this map, nothing else.
var transitions = map[models.Status][]models.Status{
	models.StatusDraft: {
		models.StatusSubmitted,
		models.StatusExpired,
	},
	models.StatusSubmitted: {
		models.StatusDocumentVerification,
		models.StatusExpired,
	},
	models.StatusDocumentVerification: {
		models.StatusDocumentsNeedRevision,
		models.StatusPaymentValidation,
		models.StatusAdministrativeReview,
		models.StatusExpired,
	},
	models.StatusDocumentsNeedRevision: {
		models.StatusDocumentVerification,
		models.StatusAdministrativeReview,
		models.StatusExpired,
	},
	models.StatusPaymentValidation: {
		models.StatusPaymentNeedsRevision,
		models.StatusOrientationPending,
		models.StatusUnderReview,
		models.StatusAdministrativeReview,
		models.StatusExpired,
	},
	models.StatusPaymentNeedsRevision: {
		models.StatusPaymentValidation,
		models.StatusAdministrativeReview,
		models.StatusExpired,
	},
	models.StatusOrientationPending: {
		models.StatusOrientationScheduled,
		models.StatusExpired,
	},
	models.StatusOrientationScheduled: {
		models.StatusAttendanceValidation,
		models.StatusOrientationPending, // booking missed or cancelled
		models.StatusExpired,
	},
	models.StatusAttendanceValidation: {
		models.StatusUnderReview,
		models.StatusOrientationPending, // checked-in booking cancelled
		models.StatusExpired,
	},
	models.StatusUnderReview: {
		models.StatusApproved,
		models.StatusRejected,
		models.StatusExpired,
	},
	// Only an administrative action leaves this state; the automated
	// machine never self-transitions out of it.
	models.StatusAdministrativeReview: {
		models.StatusDocumentVerification,
		models.StatusPaymentValidation,
		models.StatusApproved,
		models.StatusRejected,
		models.StatusExpired,
	},
	models.StatusApproved: {},
	models.StatusRejected: {},
	models.StatusExpired:  {},
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to models.Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidTargets lists the legal targets of from, sorted, for error messages.
func ValidTargets(from models.Status) string {
	targets := transitions[from]
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
