package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/testenv"
	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

func pair() (uuid.UUID, uuid.UUID) {
	return models.CanonicalPair(uuid.New(), uuid.New())
}

func TestProfileRepository_Lifecycle(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewProfileRepository(db, testenv.Logger())
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.Get(ctx, userID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	profile, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.False(t, profile.IsComplete)
	assert.False(t, profile.IsApproved)

	again, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, profile.CreatedAt.Unix(), again.CreatedAt.Unix())

	profile, err = repo.MarkComplete(ctx, userID, "Sam")
	require.NoError(t, err)
	assert.True(t, profile.IsComplete)
	assert.Equal(t, "Sam", profile.DisplayName)
	assert.False(t, profile.HasFullAccess())

	pending, err := repo.ListAwaitingApproval(ctx, 1000)
	require.NoError(t, err)
	assert.Contains(t, profileIDs(pending), userID)

	staff := uuid.New()
	profile, err = repo.SetApproved(ctx, userID, true, staff)
	require.NoError(t, err)
	assert.True(t, profile.HasFullAccess())
	require.NotNil(t, profile.ApprovedBy)
	assert.Equal(t, staff, *profile.ApprovedBy)

	profile, err = repo.SetApproved(ctx, userID, false, staff)
	require.NoError(t, err)
	assert.False(t, profile.HasFullAccess())
	assert.True(t, profile.IsComplete)
}

func profileIDs(profiles []models.Profile) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	return ids
}

func TestBlockRepository_EitherDirection(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewBlockRepository(db, testenv.Logger())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	blocked, err := repo.ExistsEitherWay(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, repo.Create(ctx, a, b))
	require.NoError(t, repo.Create(ctx, a, b), "blocking twice is a no-op")

	blocked, err = repo.ExistsEitherWay(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocks, err := repo.ListByBlocker(ctx, a)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, b, blocks[0].BlockedID)

	require.NoError(t, repo.Delete(ctx, a, b))
	blocked, err = repo.ExistsEitherWay(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestThreadRepository_ConcurrentGetOrCreate(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewThreadRepository(db, testenv.Logger())
	ctx := context.Background()
	low, high := pair()

	const workers = 16
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			thread, err := repo.GetOrCreate(ctx, low, high)
			errs[i] = err
			if err == nil {
				ids[i] = thread.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM threads WHERE user_low = $1 AND user_high = $2", low, high))
	assert.Equal(t, 1, count)
}

func TestThreadRepository_RejectsNonCanonicalPair(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewThreadRepository(db, testenv.Logger())
	low, high := pair()

	_, err := repo.GetOrCreate(context.Background(), high, low)
	assert.Error(t, err)
}

func TestMessageRepository_UnreadAndHiding(t *testing.T) {
	db := testenv.Postgres(t)
	logger := testenv.Logger()
	threads := repositories.NewThreadRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger)
	ctx := context.Background()

	low, high := pair()
	thread, err := threads.GetOrCreate(ctx, low, high)
	require.NoError(t, err)

	for _, text := range []string{"hi", "you there?"} {
		require.NoError(t, messages.Create(ctx, &models.Message{
			ThreadID: thread.ID, SenderID: low, RecipientID: high, Text: text,
		}))
	}
	require.NoError(t, messages.Create(ctx, &models.Message{
		ThreadID: thread.ID, SenderID: high, RecipientID: low, Text: "yes",
	}))

	unread, err := messages.CountUnread(ctx, high)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	visible, err := messages.ListVisible(ctx, thread.ID, high, 10)
	require.NoError(t, err)
	require.Len(t, visible, 3)
	assert.Equal(t, "hi", visible[0].Text)
	assert.Equal(t, "yes", visible[2].Text)

	marked, err := messages.MarkRead(ctx, thread.ID, high)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	unread, err = messages.CountUnread(ctx, high)
	require.NoError(t, err)
	assert.Zero(t, unread)

	hidden, err := messages.HideForParticipant(ctx, thread.ID, low)
	require.NoError(t, err)
	assert.Equal(t, int64(3), hidden)

	hidden, err = messages.HideForParticipant(ctx, thread.ID, low)
	require.NoError(t, err)
	assert.Zero(t, hidden, "hiding twice changes nothing")

	visible, err = messages.ListVisible(ctx, thread.ID, low, 10)
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = messages.ListVisible(ctx, thread.ID, high, 10)
	require.NoError(t, err)
	assert.Len(t, visible, 3, "the other side keeps its history")

	lowInbox, err := threads.ListForUser(ctx, low, 10)
	require.NoError(t, err)
	assert.Empty(t, lowInbox)

	highInbox, err := threads.ListForUser(ctx, high, 10)
	require.NoError(t, err)
	require.Len(t, highInbox, 1)
	assert.Equal(t, low, highInbox[0].OtherUserID)
	require.NotNil(t, highInbox[0].LastMessage)
	assert.Equal(t, "yes", *highInbox[0].LastMessage)
}

func TestAccessRequestRepository_OnePendingPerPair(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewAccessRequestRepository(db, testenv.Logger())
	ctx := context.Background()
	requester, target := uuid.New(), uuid.New()

	first := &models.AccessRequest{RequesterID: requester, TargetID: target}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &models.AccessRequest{RequesterID: requester, TargetID: target})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, repositories.OnePendingConstraint))

	pending, err := repo.GetPending(ctx, requester, target)
	require.NoError(t, err)
	assert.Equal(t, first.ID, pending.ID)

	count, err := repo.CountPendingForTarget(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccessRequestRepository_ReviewHasSingleWinner(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewAccessRequestRepository(db, testenv.Logger())
	ctx := context.Background()
	requester, target := uuid.New(), uuid.New()

	request := &models.AccessRequest{RequesterID: requester, TargetID: target}
	require.NoError(t, repo.Create(ctx, request))

	reviewedAt := time.Now().UTC().Truncate(time.Microsecond)
	expiresAt := reviewedAt.Add(models.GrantWindow)

	const reviewers = 8
	var wg sync.WaitGroup
	results := make([]error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			review := repositories.Review{
				RequestID:  request.ID,
				Status:     models.AccessRequestStatusApproved,
				ReviewerID: target,
				ReviewedAt: reviewedAt,
				ExpiresAt:  &expiresAt,
			}
			if i%2 == 1 {
				review.Status = models.AccessRequestStatusDenied
				review.ExpiresAt = nil
			}
			_, results[i] = repo.Review(ctx, review)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	}
	assert.Equal(t, 1, winners)

	stored, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPending())

	if stored.Status == models.AccessRequestStatusApproved {
		active, err := repo.GetActive(ctx, requester, target, reviewedAt.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, request.ID, active.ID)

		_, err = repo.GetActive(ctx, requester, target, reviewedAt.Add(73*time.Hour))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	}

	latest, err := repo.GetLatest(ctx, requester, target)
	require.NoError(t, err)
	assert.Equal(t, request.ID, latest.ID)
}

func TestAccessRequestRepository_NotFound(t *testing.T) {
	db := testenv.Postgres(t)
	repo := repositories.NewAccessRequestRepository(db, testenv.Logger())

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.Review(context.Background(), repositories.Review{
		RequestID:  uuid.New(),
		Status:     models.AccessRequestStatusDenied,
		ReviewedAt: time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}
