package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
)

func TestDomainError_IsMatchesKind(t *testing.T) {
	err := apperrors.InvalidState("request %s is already %s", "r1", "approved")
	wrapped := fmt.Errorf("approve: %w", err)

	assert.ErrorIs(t, wrapped, apperrors.ErrInvalidState)
	assert.NotErrorIs(t, wrapped, apperrors.ErrNotFound)
	assert.Equal(t, "request r1 is already approved", err.Error())
	assert.True(t, apperrors.IsDomainError(wrapped))
	assert.False(t, apperrors.IsDomainError(errors.New("boom")))
}

func TestDomainError_WithCopies(t *testing.T) {
	limited := apperrors.ErrRateLimited.With("retry_in_seconds", 12)

	assert.Equal(t, 12, limited.Meta["retry_in_seconds"])
	assert.Nil(t, apperrors.ErrRateLimited.Meta, "the sentinel is left untouched")
	assert.ErrorIs(t, limited, apperrors.ErrRateLimited)
}

func TestStatusCode(t *testing.T) {
	cases := map[apperrors.Kind]int{
		apperrors.KindInvalidPair:    http.StatusBadRequest,
		apperrors.KindEmptyMessage:   http.StatusBadRequest,
		apperrors.KindSelfRequest:    http.StatusBadRequest,
		apperrors.KindNotParticipant: http.StatusForbidden,
		apperrors.KindNotAuthorized:  http.StatusForbidden,
		apperrors.KindInvalidState:   http.StatusConflict,
		apperrors.KindNotFound:       http.StatusNotFound,
		apperrors.KindRateLimited:    http.StatusTooManyRequests,
		apperrors.Kind("other"):      http.StatusInternalServerError,
	}
	for kind, code := range cases {
		assert.Equal(t, code, apperrors.StatusCode(kind), kind)
	}
}

func TestToHTTPError(t *testing.T) {
	err := apperrors.ToHTTPError(fmt.Errorf("post: %w", apperrors.ErrNotParticipant))
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, apperrors.ToHTTPError(plain))
}
