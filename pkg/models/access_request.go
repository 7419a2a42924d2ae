package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessRequestStatus is the lifecycle state of a private access request
type AccessRequestStatus string

const (
	AccessRequestStatusPending  AccessRequestStatus = "pending"
	AccessRequestStatusApproved AccessRequestStatus = "approved"
	AccessRequestStatusDenied   AccessRequestStatus = "denied"
)

// GrantWindow is how long an approval lets the requester see private media.
const GrantWindow = 72 * time.Hour

// AccessRequest is one requester's ask to see one target's private photos.
type AccessRequest struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	RequesterID uuid.UUID           `db:"requester_id" json:"requester_id"`
	TargetID    uuid.UUID           `db:"target_id" json:"target_id"`
	Status      AccessRequestStatus `db:"status" json:"status"`
	ReviewedBy  *uuid.UUID          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ExpiresAt   *time.Time          `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (AccessRequest) TableName() string {
	return "access_requests"
}

func (r AccessRequest) IsPending() bool {
	return r.Status == AccessRequestStatusPending
}

// ActiveAt reports whether the request grants access at now. Expiry is only
// ever evaluated here; the row keeps reading approved after it lapses.
func (r AccessRequest) ActiveAt(now time.Time) bool {
	return r.Status == AccessRequestStatusApproved && r.ExpiresAt != nil && now.Before(*r.ExpiresAt)
}
