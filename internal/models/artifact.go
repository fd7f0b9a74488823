// internal/models/artifact.go
package models

import (
	"fmt"
	"time"
)

type ArtifactKind string

const (
	ArtifactKindDocument ArtifactKind = "document"
	ArtifactKindPayment  ArtifactKind = "payment"
)

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Lineage identifies one ordered sequence of submission attempts: a document
// type within an application, or the single payment within an application
// (DocumentType empty).
type Lineage struct {
	ApplicationID string       `json:"applicationId"`
	Kind          ArtifactKind `json:"kind"`
	DocumentType  string       `json:"documentType,omitempty"`
}

func (l Lineage) String() string {
	if l.Kind == ArtifactKindPayment {
		return fmt.Sprintf("%s/payment", l.ApplicationID)
	}
	return fmt.Sprintf("%s/document/%s", l.ApplicationID, l.DocumentType)
}

// Artifact is a single submitted document or payment awaiting review.
type Artifact struct {
	ID            string       `json:"id"`
	ApplicationID string       `json:"applicationId"`
	Kind          ArtifactKind `json:"kind"`
	DocumentType  string       `json:"documentType,omitempty"`
	PayloadRef    string       `json:"payloadRef"`
	ReviewStatus  ReviewStatus `json:"reviewStatus"`
	ReviewedBy    string       `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewedAt,omitempty"`
	Remarks       string       `json:"remarks,omitempty"`
	AttemptNumber int          `json:"attemptNumber"`
	SupersededBy  string       `json:"supersededBy,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// RejectionRecord is an append-only audit entry, one per rejection event.
// Immutable after creation except WasReplaced/ReplacedAt (set once when a
// successor artifact is accepted) and NotificationSent (set once).
type RejectionRecord struct {
	ID               string       `json:"id"`
	ApplicationID    string       `json:"applicationId"`
	Kind             ArtifactKind `json:"kind"`
	DocumentType     string       `json:"documentType,omitempty"`
	RejectedBy       string       `json:"rejectedBy"`
	RejectedAt       time.Time    `json:"rejectedAt"`
	Category         string       `json:"category"`
	Reason           string       `json:"reason"`
	SpecificIssues   []string     `json:"specificIssues,omitempty"`
	AttemptNumber    int          `json:"attemptNumber"`
	WasReplaced      bool         `json:"wasReplaced"`
	ReplacedAt       *time.Time   `json:"replacedAt,omitempty"`
	NotificationSent bool         `json:"notificationSent"`
}
