// Package errors holds the expected failures of the gating and messaging
// core. They are values callers branch on with errors.Is and that the HTTP
// layer turns into status codes; none of them indicate corruption.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

type Kind string

const (
	KindInvalidPair    Kind = "invalid_pair"
	KindNotParticipant Kind = "not_participant"
	KindEmptyMessage   Kind = "empty_message"
	KindSelfRequest    Kind = "self_request"
	KindNotAuthorized  Kind = "not_authorized"
	KindInvalidState   Kind = "invalid_state"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
)

// Sentinels for errors.Is. A DomainError matches the sentinel of its kind.
var (
	ErrInvalidPair    = &DomainError{Kind: KindInvalidPair, Message: "a conversation needs two different accounts"}
	ErrNotParticipant = &DomainError{Kind: KindNotParticipant, Message: "account is not a participant of this conversation"}
	ErrEmptyMessage   = &DomainError{Kind: KindEmptyMessage, Message: "message text is empty"}
	ErrSelfRequest    = &DomainError{Kind: KindSelfRequest, Message: "cannot request access to your own photos"}
	ErrNotAuthorized  = &DomainError{Kind: KindNotAuthorized, Message: "not authorized"}
	ErrInvalidState   = &DomainError{Kind: KindInvalidState, Message: "request is not in a state that allows this action"}
	ErrNotFound       = &DomainError{Kind: KindNotFound, Message: "not found"}
	ErrRateLimited    = &DomainError{Kind: KindRateLimited, Message: "too many messages, slow down"}
)

type DomainError struct {
	Kind    Kind
	Message string
	Meta    map[string]any
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind
}

// With returns a copy of e carrying an extra meta value.
func (e *DomainError) With(key string, value any) *DomainError {
	meta := make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	return &DomainError{Kind: e.Kind, Message: e.Message, Meta: meta}
}

func New(kind Kind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *DomainError {
	return New(KindNotFound, format, args...)
}

func InvalidState(format string, args ...any) *DomainError {
	return New(KindInvalidState, format, args...)
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

func StatusCode(kind Kind) int {
	switch kind {
	case KindInvalidPair, KindEmptyMessage, KindSelfRequest:
		return http.StatusBadRequest
	case KindNotParticipant, KindNotAuthorized:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts a domain error for the echo error handler. Other
// errors are returned unchanged.
func ToHTTPError(err error) error {
	var de *DomainError
	if !errors.As(err, &de) {
		return err
	}
	meta := map[string]any{"kind": string(de.Kind)}
	for k, v := range de.Meta {
		meta[k] = v
	}
	return WithMeta(httperror.NewHTTPError(StatusCode(de.Kind), de.Message), meta)
}

// WithMeta converts err to an httperror carrying meta in its response body.
func WithMeta(err error, meta map[string]any) error {
	httpErr := httperror.ToHTTPError(err)
	if httpErr.Meta == nil {
		httpErr.Meta = map[string]any{}
	}
	for k, v := range meta {
		httpErr.Meta[k] = v
	}
	return httpErr
}
