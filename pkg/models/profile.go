package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the one-per-account record whose two flags drive the preview gate.
type Profile struct {
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	DisplayName string     `db:"display_name" json:"display_name"`
	IsComplete  bool       `db:"is_complete" json:"is_complete"`
	IsApproved  bool       `db:"is_approved" json:"is_approved"`
	ApprovedBy  *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Profile) TableName() string {
	return "profiles"
}

// HasFullAccess is recomputed from the two flags on every call and never stored.
func (p Profile) HasFullAccess() bool {
	return p.IsComplete && p.IsApproved
}

// Block records that Blocker no longer wants contact from Blocked.
type Block struct {
	BlockerID uuid.UUID `db:"blocker_id" json:"blocker_id"`
	BlockedID uuid.UUID `db:"blocked_id" json:"blocked_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (Block) TableName() string {
	return "blocks"
}
