package middleware

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDCVerifier_Identity(t *testing.T) {
	v, err := newOIDCVerifier(nil, "")
	require.NoError(t, err)
	sub := uuid.New()

	staff, err := v.identity(sub.String(), map[string]any{
		"realm_access": map[string]any{"roles": []any{"member", "staff"}},
	})
	require.NoError(t, err)
	assert.Equal(t, sub, staff.UserID)
	assert.True(t, staff.Staff)

	member, err := v.identity(sub.String(), map[string]any{
		"realm_access": map[string]any{"roles": []any{"member"}},
	})
	require.NoError(t, err)
	assert.False(t, member.Staff)

	noRoles, err := v.identity(sub.String(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, noRoles.Staff)

	_, err = v.identity("not-a-uuid", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestOIDCVerifier_CustomExpression(t *testing.T) {
	v, err := newOIDCVerifier(nil, "is_staff")
	require.NoError(t, err)

	id, err := v.identity(uuid.NewString(), map[string]any{"is_staff": true})
	require.NoError(t, err)
	assert.True(t, id.Staff)

	_, err = newOIDCVerifier(nil, "realm_access.[")
	assert.Error(t, err)
}
