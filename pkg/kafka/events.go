package kafka

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAccessRequestCreated  EventType = "access_request.created"
	EventAccessRequestApproved EventType = "access_request.approved"
	EventAccessRequestDenied   EventType = "access_request.denied"
	EventProfileApproved       EventType = "profile.approved"
	EventProfileRevoked        EventType = "profile.revoked"
)

// Event is the envelope of everything clover announces. Access request
// events fill the request fields; profile events fill UserID.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Type        EventType  `json:"type"`
	OccurredAt  time.Time  `json:"occurred_at"`
	ActorID     uuid.UUID  `json:"actor_id"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	RequesterID *uuid.UUID `json:"requester_id,omitempty"`
	TargetID    *uuid.UUID `json:"target_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
}

// Key is the partition key of the event
func (e Event) Key() string {
	switch {
	case e.RequestID != nil:
		return e.RequestID.String()
	case e.UserID != nil:
		return e.UserID.String()
	default:
		return e.ID.String()
	}
}
