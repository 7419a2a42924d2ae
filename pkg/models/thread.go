package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Thread is the single conversation between two accounts. The pair is stored
// canonically with UserLow < UserHigh so either direction finds the same row.
type Thread struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserLow   uuid.UUID `db:"user_low" json:"user_low"`
	UserHigh  uuid.UUID `db:"user_high" json:"user_high"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Thread) TableName() string {
	return "threads"
}

// CanonicalPair orders two account ids the same way postgres orders uuids.
func CanonicalPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

func (t Thread) HasParticipant(userID uuid.UUID) bool {
	return userID == t.UserLow || userID == t.UserHigh
}

// OtherParticipant returns the participant that is not userID. ok is false
// when userID is not in the thread.
func (t Thread) OtherParticipant(userID uuid.UUID) (other uuid.UUID, ok bool) {
	switch userID {
	case t.UserLow:
		return t.UserHigh, true
	case t.UserHigh:
		return t.UserLow, true
	default:
		return uuid.Nil, false
	}
}

// ThreadSummary is one inbox row as seen by a single participant.
type ThreadSummary struct {
	Thread
	OtherUserID   uuid.UUID  `db:"other_user_id" json:"other_user_id"`
	UnreadCount   int        `db:"unread_count" json:"unread_count"`
	LastMessage   *string    `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}
