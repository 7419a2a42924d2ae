package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MessageKind distinguishes user-written messages from platform notices
type MessageKind string

const (
	MessageKindUser   MessageKind = "user"
	MessageKindSystem MessageKind = "system"
	MessageKindAdmin  MessageKind = "admin"
)

// ParticipantRole is the side of a message a participant is on.
type ParticipantRole string

const (
	RoleSender    ParticipantRole = "sender"
	RoleRecipient ParticipantRole = "recipient"
)

// RoleSet is the set of sides that have hidden a message. It is stored as a
// postgres text[].
type RoleSet []ParticipantRole

func (s RoleSet) Has(role ParticipantRole) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

func (s RoleSet) With(role ParticipantRole) RoleSet {
	if s.Has(role) {
		return s
	}
	return append(append(RoleSet(nil), s...), role)
}

func (s *RoleSet) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	out := make(RoleSet, 0, len(raw))
	for _, r := range raw {
		out = append(out, ParticipantRole(r))
	}
	*s = out
	return nil
}

func (s RoleSet) Value() (driver.Value, error) {
	raw := make(pq.StringArray, 0, len(s))
	for _, r := range s {
		raw = append(raw, string(r))
	}
	return raw.Value()
}

// Message is one entry in a thread. Only IsRead and HiddenFor ever change.
type Message struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	ThreadID    uuid.UUID   `db:"thread_id" json:"thread_id"`
	SenderID    uuid.UUID   `db:"sender_id" json:"sender_id"`
	RecipientID uuid.UUID   `db:"recipient_id" json:"recipient_id"`
	Text        string      `db:"body" json:"text"`
	Kind        MessageKind `db:"kind" json:"kind"`
	IsRead      bool        `db:"is_read" json:"is_read"`
	HiddenFor   RoleSet     `db:"hidden_for" json:"-"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Message) TableName() string {
	return "messages"
}

// RoleOf reports which side of the message userID is on.
func (m Message) RoleOf(userID uuid.UUID) (ParticipantRole, bool) {
	switch userID {
	case m.SenderID:
		return RoleSender, true
	case m.RecipientID:
		return RoleRecipient, true
	default:
		return "", false
	}
}

func (m Message) VisibleTo(userID uuid.UUID) bool {
	role, ok := m.RoleOf(userID)
	return ok && !m.HiddenFor.Has(role)
}
