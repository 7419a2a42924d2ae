package models_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestCanonicalPair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	low, high := models.CanonicalPair(b, a)
	assert.Equal(t, a, low)
	assert.Equal(t, b, high)

	low2, high2 := models.CanonicalPair(a, b)
	assert.Equal(t, low, low2)
	assert.Equal(t, high, high2)
}

func TestThread_OtherParticipant(t *testing.T) {
	low, high := models.CanonicalPair(uuid.New(), uuid.New())
	thread := models.Thread{UserLow: low, UserHigh: high}

	other, ok := thread.OtherParticipant(low)
	assert.True(t, ok)
	assert.Equal(t, high, other)

	_, ok = thread.OtherParticipant(uuid.New())
	assert.False(t, ok)
}

func TestMessage_VisibleTo(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	msg := models.Message{SenderID: sender, RecipientID: recipient}

	assert.True(t, msg.VisibleTo(sender))
	assert.True(t, msg.VisibleTo(recipient))
	assert.False(t, msg.VisibleTo(uuid.New()))

	msg.HiddenFor = msg.HiddenFor.With(models.RoleRecipient)
	assert.True(t, msg.VisibleTo(sender))
	assert.False(t, msg.VisibleTo(recipient))
}

func TestRoleSet_ScanValue(t *testing.T) {
	set := models.RoleSet{models.RoleSender}
	value, err := set.Value()
	require.NoError(t, err)

	var scanned models.RoleSet
	require.NoError(t, scanned.Scan([]byte(value.(string))))
	assert.True(t, scanned.Has(models.RoleSender))
	assert.False(t, scanned.Has(models.RoleRecipient))

	var empty models.RoleSet
	require.NoError(t, empty.Scan([]byte("{}")))
	assert.Empty(t, empty)
}

func TestAccessRequest_ActiveAt(t *testing.T) {
	reviewed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := reviewed.Add(models.GrantWindow)
	req := models.AccessRequest{Status: models.AccessRequestStatusApproved, ExpiresAt: &expires}

	assert.True(t, req.ActiveAt(reviewed))
	assert.True(t, req.ActiveAt(expires.Add(-time.Second)))
	assert.False(t, req.ActiveAt(expires), "the window is half-open")

	req.Status = models.AccessRequestStatusDenied
	assert.False(t, req.ActiveAt(reviewed))

	pending := models.AccessRequest{Status: models.AccessRequestStatusPending}
	assert.True(t, pending.IsPending())
	assert.False(t, pending.ActiveAt(reviewed))
}

func TestProfile_HasFullAccess(t *testing.T) {
	assert.False(t, models.Profile{IsComplete: true}.HasFullAccess())
	assert.False(t, models.Profile{IsApproved: true}.HasFullAccess())
	assert.True(t, models.Profile{IsComplete: true, IsApproved: true}.HasFullAccess())
}
