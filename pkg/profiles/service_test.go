package profiles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/memstore"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/profiles"
)

type recordedEvents struct {
	events []kafka.Event
	err    error
}

func (r *recordedEvents) Publish(_ context.Context, evt *kafka.Event) error {
	r.events = append(r.events, *evt)
	return r.err
}

func newService(t *testing.T) (*profiles.Service, *memstore.Store, *recordedEvents) {
	t.Helper()
	store := memstore.New()
	events := &recordedEvents{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return profiles.NewService(logger, store.Profiles(), store.Blocks(), events), store, events
}

func TestState_MissingProfileIsPreview(t *testing.T) {
	svc, _, _ := newService(t)

	state, err := svc.State(context.Background(), uuid.New(), false)
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.False(t, state.Complete)
	assert.False(t, state.Approved)
	assert.Equal(t, gate.Redirect, gate.Decide(state, "/messages/").Outcome)
}

func TestState_ApprovalVisibleOnNextRead(t *testing.T) {
	svc, _, events := newService(t)
	ctx := context.Background()
	user, staff := uuid.New(), uuid.New()

	_, err := svc.SubmitComplete(ctx, user, "Robin")
	require.NoError(t, err)

	state, err := svc.State(ctx, user, false)
	require.NoError(t, err)
	assert.Equal(t, gate.Redirect, gate.Decide(state, "/messages/").Outcome)

	profile, err := svc.Approve(ctx, staff, user)
	require.NoError(t, err)
	assert.True(t, profile.HasFullAccess())

	state, err = svc.State(ctx, user, false)
	require.NoError(t, err)
	assert.Equal(t, gate.Allow, gate.Decide(state, "/messages/").Outcome)

	require.Len(t, events.events, 1)
	assert.Equal(t, kafka.EventProfileApproved, events.events[0].Type)
	assert.Equal(t, staff, events.events[0].ActorID)
}

func TestRevoke_KeepsCompletion(t *testing.T) {
	svc, _, events := newService(t)
	ctx := context.Background()
	user, staff := uuid.New(), uuid.New()

	_, err := svc.SubmitComplete(ctx, user, "")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, staff, user)
	require.NoError(t, err)

	profile, err := svc.Revoke(ctx, staff, user)
	require.NoError(t, err)
	assert.True(t, profile.IsComplete)
	assert.False(t, profile.IsApproved)
	assert.Equal(t, kafka.EventProfileRevoked, events.events[len(events.events)-1].Type)
}

func TestApprove_EventFailureIsNotReturned(t *testing.T) {
	svc, _, events := newService(t)
	events.err = errors.New("broker down")

	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
}

func TestState_StaffSkipsProfileRead(t *testing.T) {
	svc, store, _ := newService(t)
	store.Fail = errors.New("db down")

	state, err := svc.State(context.Background(), uuid.New(), true)
	require.NoError(t, err)
	assert.True(t, state.Staff)
}

func TestState_StoreFailurePropagates(t *testing.T) {
	svc, store, _ := newService(t)
	store.Fail = errors.New("db down")

	_, err := svc.State(context.Background(), uuid.New(), false)
	assert.Error(t, err)
	assert.False(t, apperrors.IsDomainError(err))
}

func TestBlocking(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	assert.ErrorIs(t, svc.Block(ctx, a, a), apperrors.ErrInvalidPair)

	require.NoError(t, svc.Block(ctx, a, b))
	require.NoError(t, svc.Block(ctx, a, b))

	blocked, err := svc.IsBlocked(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, blocked)

	list, err := svc.ListBlocked(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Unblock(ctx, a, b))
	blocked, err = svc.IsBlocked(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestListAwaitingApproval_CompleteFirst(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	incomplete, complete := uuid.New(), uuid.New()

	_, err := svc.Get(ctx, incomplete)
	require.NoError(t, err)
	_, err = svc.SubmitComplete(ctx, complete, "Kai")
	require.NoError(t, err)

	pending, err := svc.ListAwaitingApproval(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, complete, pending[0].UserID)
}
