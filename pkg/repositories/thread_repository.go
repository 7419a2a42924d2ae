package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const threadsTable = "threads"

const threadPairConstraint = "threads_pair_key"

var threadStruct = database.NewStruct(new(models.Thread))

// ThreadRepository handles database operations for threads
type ThreadRepository struct {
	*Repository
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db database.DB, logger ectologger.Logger) *ThreadRepository {
	return &ThreadRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetOrCreate returns the thread for the canonical pair (low, high) in one
// atomic upsert. Concurrent first contact resolves on threads_pair_key; if
// the statement still reports a violation the row is re-read once.
func (r *ThreadRepository) GetOrCreate(ctx context.Context, low, high uuid.UUID) (*models.Thread, error) {
	ctx, span := tracing.StartSpan(ctx, "ThreadRepository.GetOrCreate")
	defer span.End()

	qctx, q, cancel := r.q(ctx)
	defer cancel()

	query := `
		INSERT INTO threads (id, user_low, user_high, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_low, user_high)
		DO UPDATE SET user_low = threads.user_low
		RETURNING id, user_low, user_high, created_at, updated_at`

	var thread models.Thread
	err := q.GetContext(qctx, &thread, query, uuid.New(), low, high)
	if database.IsUniqueViolation(err, threadPairConstraint) {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"user_low":  low,
			"user_high": high,
		}).Warn("thread upsert raced, re-reading")
		return r.GetByPair(ctx, low, high)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_low":  low,
			"user_high": high,
		}).Error("failed to get or create thread")
		return nil, storeError("get or create thread", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id": thread.ID,
	}).Debugf("Got or created %s for %s/%s", threadsTable, low, high)
	return &thread, nil
}

// GetByID retrieves a thread by ID
func (r *ThreadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	ctx, span := tracing.StartSpan(ctx, "ThreadRepository.GetByID")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := threadStruct.SelectFrom(threadsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var thread models.Thread
	err := q.GetContext(ctx, &thread, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("thread %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id": id,
		}).Error("failed to get thread by ID")
		return nil, storeError("get thread", err)
	}
	return &thread, nil
}

// GetByPair retrieves the thread of a canonical pair
func (r *ThreadRepository) GetByPair(ctx context.Context, low, high uuid.UUID) (*models.Thread, error) {
	ctx, span := tracing.StartSpan(ctx, "ThreadRepository.GetByPair")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := threadStruct.SelectFrom(threadsTable)
	sb.Where(sb.Equal("user_low", low), sb.Equal("user_high", high))

	query, args := sb.Build()
	var thread models.Thread
	err := q.GetContext(ctx, &thread, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("no thread between %s and %s", low, high)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_low":  low,
			"user_high": high,
		}).Error("failed to get thread by pair")
		return nil, storeError("get thread by pair", err)
	}
	return &thread, nil
}

// Touch advances the inbox ordering key of a thread
func (r *ThreadRepository) Touch(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ThreadRepository.Touch")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ub := database.NewUpdateBuilder()
	ub.Update(threadsTable)
	ub.Set(ub.Assign("updated_at", database.Now()))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id": id,
		}).Error("failed to touch thread")
		return storeError("touch thread", err)
	}
	return nil
}

// ListForUser returns the inbox of userID: threads that still have at least
// one message visible to the user, most recently active first.
func (r *ThreadRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ThreadSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ThreadRepository.ListForUser")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT t.id, t.user_low, t.user_high, t.created_at, t.updated_at,
		       CASE WHEN t.user_low = $1 THEN t.user_high ELSE t.user_low END AS other_user_id,
		       (SELECT COUNT(*) FROM messages u
		         WHERE u.thread_id = t.id AND u.recipient_id = $1 AND u.is_read = FALSE) AS unread_count,
		       lm.body AS last_message,
		       lm.created_at AS last_message_at
		FROM threads t
		JOIN LATERAL (
		    SELECT m.body, m.created_at
		    FROM messages m
		    WHERE m.thread_id = t.id
		      AND NOT ((CASE WHEN m.sender_id = $1 THEN 'sender' ELSE 'recipient' END) = ANY (m.hidden_for))
		    ORDER BY m.created_at DESC
		    LIMIT 1
		) lm ON TRUE
		WHERE t.user_low = $1 OR t.user_high = $1
		ORDER BY t.updated_at DESC
		LIMIT $2`

	summaries := []models.ThreadSummary{}
	if err := q.SelectContext(ctx, &summaries, query, userID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id": userID,
		}).Error("failed to list threads")
		return nil, storeError("list threads", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": userID,
		"count":   len(summaries),
	}).Debugf("Listed %s for user", threadsTable)
	return summaries, nil
}
