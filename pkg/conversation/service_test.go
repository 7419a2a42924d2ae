package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/memstore"
	"github.com/Ramsey-B/clover/pkg/conversation"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
)

type stubLimiter struct {
	allowed int
	calls   int
	err     error
}

func (l *stubLimiter) Allow(context.Context, string) (*redis.RateLimitResult, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if l.calls > l.allowed {
		return &redis.RateLimitResult{Allowed: false, RetryIn: 30 * time.Second}, nil
	}
	return &redis.RateLimitResult{Allowed: true}, nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, ids...)
	return nil
}

func newService(opts ...conversation.Option) (*conversation.Service, *memstore.Store) {
	store := memstore.New()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	svc := conversation.NewService(logger, store, store.Threads(), store.Messages(), store.Blocks(), opts...)
	return svc, store
}

func TestGetOrCreateThread_Canonical(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	ab, err := svc.GetOrCreateThread(ctx, a, b)
	require.NoError(t, err)
	ba, err := svc.GetOrCreateThread(ctx, b, a)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, 1, store.ThreadCount())
	assert.True(t, ab.HasParticipant(a))
	assert.True(t, ab.HasParticipant(b))
}

func TestGetOrCreateThread_Concurrent(t *testing.T) {
	svc, store := newService()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u1, u2 := a, b
			if i%2 == 0 {
				u1, u2 = b, a
			}
			_, err := svc.GetOrCreateThread(context.Background(), u1, u2)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, store.ThreadCount())
}

func TestGetOrCreateThread_SelfIsInvalid(t *testing.T) {
	svc, _ := newService()
	a := uuid.New()

	_, err := svc.GetOrCreateThread(context.Background(), a, a)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPair)
}

func TestPostMessage(t *testing.T) {
	invalidator := &recordingInvalidator{}
	svc, _ := newService(conversation.WithBadgeInvalidator(invalidator))
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	thread, err := svc.GetOrCreateThread(ctx, a, b)
	require.NoError(t, err)

	msg, err := svc.PostMessage(ctx, thread.ID, a, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, b, msg.RecipientID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, models.MessageKindUser, msg.Kind)
	assert.False(t, msg.IsRead)
	assert.Contains(t, invalidator.users, b)
}

func TestPostMessage_Rejections(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	thread, err := svc.GetOrCreateThread(ctx, a, b)
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, thread.ID, c, "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)

	_, err = svc.PostMessage(ctx, thread.ID, a, " \n\t ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyMessage)

	_, err = svc.PostMessage(ctx, uuid.New(), a, "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.Empty(t, store.AllMessages())
}

func TestPostMessage_BlockedEitherWay(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, store.Blocks().Create(ctx, b, a))

	_, err := svc.PostTo(ctx, a, b, "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	_, err = svc.PostTo(ctx, b, a, "hi")
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)
	assert.Zero(t, store.ThreadCount(), "a blocked pair gets no thread")

	_, err = svc.PostAdminMessage(ctx, a, b, "platform notice")
	assert.NoError(t, err, "admin messages ignore blocks")
}

func TestPostMessage_RateLimited(t *testing.T) {
	limiter := &stubLimiter{allowed: 2}
	svc, _ := newService(conversation.WithRateLimiter(limiter))
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		_, err := svc.PostTo(ctx, a, b, "hi")
		require.NoError(t, err)
	}
	_, err := svc.PostTo(ctx, a, b, "hi")
	require.ErrorIs(t, err, apperrors.ErrRateLimited)

	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 30, de.Meta["retry_in_seconds"])
}

func TestPostMessage_LimiterDownFailsOpen(t *testing.T) {
	svc, _ := newService(conversation.WithRateLimiter(&stubLimiter{err: errors.New("redis down")}))

	_, err := svc.PostTo(context.Background(), uuid.New(), uuid.New(), "hi")
	assert.NoError(t, err)
}

func TestUnreadCount_AcrossThreads(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	me, x, y := uuid.New(), uuid.New(), uuid.New()

	for _, sender := range []uuid.UUID{x, x, y} {
		_, err := svc.PostTo(ctx, sender, me, "ping")
		require.NoError(t, err)
	}
	_, err := svc.PostTo(ctx, me, x, "pong")
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	thread, err := svc.GetOrCreateThread(ctx, me, x)
	require.NoError(t, err)
	n, err := svc.MarkRead(ctx, thread.ID, me)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = svc.MarkRead(ctx, thread.ID, me)
	require.NoError(t, err)
	assert.Zero(t, n, "marking read twice is a no-op")

	count, err = svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.UnreadCount(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkRead_ThirdParty(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	thread, err := svc.GetOrCreateThread(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, thread.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestDeleteConversation_OnlyActorsView(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	thread, err := svc.GetOrCreateThread(ctx, a, b)
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, thread.ID, a, "one")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, thread.ID, b, "two")
	require.NoError(t, err)

	unread, err := svc.UnreadCount(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	require.NoError(t, svc.DeleteConversation(ctx, thread.ID, a))

	mine, err := svc.ListMessages(ctx, thread.ID, a, 0)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := svc.ListMessages(ctx, thread.ID, b, 0)
	require.NoError(t, err)
	assert.Len(t, theirs, 2)

	unread, err = svc.UnreadCount(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "the sender hiding a message does not read it for the recipient")

	unread, err = svc.UnreadCount(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, unread, "deleting reads what the actor had received")

	inbox, err := svc.ListThreads(ctx, a, 0)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	_, err = svc.PostMessage(ctx, thread.ID, b, "three")
	require.NoError(t, err)
	inbox, err = svc.ListThreads(ctx, a, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1, "a new message brings the thread back")
	assert.Equal(t, "three", *inbox[0].LastMessage)

	err = svc.DeleteConversation(ctx, thread.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}

func TestPostNotice_RequiresParticipant(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	thread, err := svc.GetOrCreateThread(ctx, a, b)
	require.NoError(t, err)

	msg, err := svc.PostNotice(ctx, thread, b, models.MessageKindSystem, "notice")
	require.NoError(t, err)
	assert.Equal(t, a, msg.RecipientID)
	assert.Equal(t, models.MessageKindSystem, msg.Kind)

	_, err = svc.PostNotice(ctx, thread, uuid.New(), models.MessageKindSystem, "notice")
	assert.ErrorIs(t, err, apperrors.ErrNotParticipant)
}
