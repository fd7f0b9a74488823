// internal/models/status.go
package models

// Status is the closed set of application lifecycle states. The source
// system grew several divergent status vocabularies; this type is the single
// reconciled one and no other string literals are valid.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusDocumentVerification  Status = "document_verification"
	StatusDocumentsNeedRevision Status = "documents_need_revision"
	StatusPaymentValidation     Status = "payment_validation"
	StatusPaymentNeedsRevision  Status = "payment_needs_revision"
	StatusOrientationPending    Status = "orientation_pending"
	StatusOrientationScheduled  Status = "orientation_scheduled"
	StatusAttendanceValidation  Status = "attendance_validation"
	StatusUnderReview           Status = "under_review"
	StatusApproved              Status = "approved"
	StatusRejected              Status = "rejected"
	StatusExpired               Status = "expired"
	StatusAdministrativeReview  Status = "administrative_review"
)

// AllStatuses lists every member of the enum, in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusDocumentVerification,
	StatusDocumentsNeedRevision,
	StatusPaymentValidation,
	StatusPaymentNeedsRevision,
	StatusOrientationPending,
	StatusOrientationScheduled,
	StatusAttendanceValidation,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusExpired,
	StatusAdministrativeReview,
}

// Valid reports whether s is a member of the enum.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the automated machine can ever leave s.
// AdministrativeReview is terminal for the machine but not for an admin.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
