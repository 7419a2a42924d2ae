package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const blocksTable = "blocks"

var blockStruct = database.NewStruct(new(models.Block))

// BlockRepository handles database operations for blocks
type BlockRepository struct {
	*Repository
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db database.DB, logger ectologger.Logger) *BlockRepository {
	return &BlockRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create blocks blockedID for blockerID. Blocking twice is a no-op.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.Create")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ib := database.NewInsertBuilder()
	ib.InsertInto(blocksTable).
		Cols("blocker_id", "blocked_id", "created_at").
		Values(blockerID, blockedID, database.Now()).
		OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blocker_id": blockerID,
			"blocked_id": blockedID,
		}).Error("failed to create block")
		return storeError("create block", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"blocker_id": blockerID,
		"blocked_id": blockedID,
	}).Info("User blocked")
	return nil
}

// Delete removes a block if present
func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.Delete")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(blocksTable)
	db.Where(db.Equal("blocker_id", blockerID), db.Equal("blocked_id", blockedID))

	query, args := db.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blocker_id": blockerID,
			"blocked_id": blockedID,
		}).Error("failed to delete block")
		return storeError("delete block", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"blocker_id": blockerID,
		"blocked_id": blockedID,
	}).Info("User unblocked")
	return nil
}

// ExistsEitherWay reports whether a or b has blocked the other
func (r *BlockRepository) ExistsEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.ExistsEitherWay")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(blocksTable)
	sb.Where(sb.Or(
		sb.And(sb.Equal("blocker_id", a), sb.Equal("blocked_id", b)),
		sb.And(sb.Equal("blocker_id", b), sb.Equal("blocked_id", a)),
	))

	query, args := sb.Build()
	var count int
	if err := q.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_a": a,
			"user_b": b,
		}).Error("failed to check blocks")
		return false, storeError("check blocks", err)
	}
	return count > 0, nil
}

// ListByBlocker lists the accounts blockerID has blocked, newest first
func (r *BlockRepository) ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]models.Block, error) {
	ctx, span := tracing.StartSpan(ctx, "BlockRepository.ListByBlocker")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := blockStruct.SelectFrom(blocksTable)
	sb.Where(sb.Equal("blocker_id", blockerID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	blocks := []models.Block{}
	if err := q.SelectContext(ctx, &blocks, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"blocker_id": blockerID,
		}).Error("failed to list blocks")
		return nil, storeError("list blocks", err)
	}
	return blocks, nil
}
