package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const accessRequestsTable = "access_requests"

// OnePendingConstraint is the partial unique index that allows a single
// pending request per (requester, target).
const OnePendingConstraint = "access_requests_one_pending_idx"

const accessRequestColumns = "id, requester_id, target_id, status, reviewed_by, reviewed_at, expires_at, created_at"

var accessRequestStruct = database.NewStruct(new(models.AccessRequest))

// AccessRequestRepository handles database operations for private access requests
type AccessRequestRepository struct {
	*Repository
}

// NewAccessRequestRepository creates a new access request repository
func NewAccessRequestRepository(db database.DB, logger ectologger.Logger) *AccessRequestRepository {
	return &AccessRequestRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a pending request. A duplicate pending row surfaces as the
// raw unique violation on OnePendingConstraint so callers can resolve it.
func (r *AccessRequestRepository) Create(ctx context.Context, request *models.AccessRequest) error {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.Create")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	request.Status = models.AccessRequestStatusPending

	ib := database.NewInsertBuilder()
	ib.InsertInto(accessRequestsTable).
		Cols("id", "requester_id", "target_id", "status", "created_at").
		Values(request.ID, request.RequesterID, request.TargetID, request.Status, database.Now()).
		Returning("created_at")

	query, args := ib.Build()
	if err := q.QueryRowContext(ctx, query, args...).Scan(&request.CreatedAt); err != nil {
		if database.IsUniqueViolation(err, OnePendingConstraint) {
			return err
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_id": request.RequesterID,
			"target_id":    request.TargetID,
		}).Error("failed to create access request")
		return storeError("create access request", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":   request.ID,
		"requester_id": request.RequesterID,
		"target_id":    request.TargetID,
	}).Infof("Created %s", accessRequestsTable)
	return nil
}

// GetByID retrieves an access request by ID
func (r *AccessRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.GetByID")
	defer span.End()

	sb := accessRequestStruct.SelectFrom(accessRequestsTable)
	sb.Where(sb.Equal("id", id))

	request, err := r.getOne(ctx, sb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("access request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("request_id", id).Error("failed to get access request")
		return nil, storeError("get access request", err)
	}
	return request, nil
}

// GetPending returns the open request of the pair, or a NotFound error
func (r *AccessRequestRepository) GetPending(ctx context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.GetPending")
	defer span.End()

	sb := accessRequestStruct.SelectFrom(accessRequestsTable)
	sb.Where(
		sb.Equal("requester_id", requesterID),
		sb.Equal("target_id", targetID),
		sb.Equal("status", models.AccessRequestStatusPending),
	)
	sb.Limit(1)

	request, err := r.getOne(ctx, sb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("no pending request from %s to %s", requesterID, targetID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_id": requesterID,
			"target_id":    targetID,
		}).Error("failed to get pending access request")
		return nil, storeError("get pending access request", err)
	}
	return request, nil
}

// GetLatest returns the most recently created request of the pair
func (r *AccessRequestRepository) GetLatest(ctx context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.GetLatest")
	defer span.End()

	sb := accessRequestStruct.SelectFrom(accessRequestsTable)
	sb.Where(sb.Equal("requester_id", requesterID), sb.Equal("target_id", targetID))
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(1)

	request, err := r.getOne(ctx, sb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("no request from %s to %s", requesterID, targetID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_id": requesterID,
			"target_id":    targetID,
		}).Error("failed to get latest access request")
		return nil, storeError("get latest access request", err)
	}
	return request, nil
}

// GetActive returns the approved request of the pair whose window is still
// open at now.
func (r *AccessRequestRepository) GetActive(ctx context.Context, requesterID, targetID uuid.UUID, now time.Time) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.GetActive")
	defer span.End()

	sb := accessRequestStruct.SelectFrom(accessRequestsTable)
	sb.Where(
		sb.Equal("requester_id", requesterID),
		sb.Equal("target_id", targetID),
		sb.Equal("status", models.AccessRequestStatusApproved),
		sb.GreaterThan("expires_at", now),
	)
	sb.OrderBy("expires_at DESC")
	sb.Limit(1)

	request, err := r.getOne(ctx, sb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("no active grant from %s to %s", targetID, requesterID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"requester_id": requesterID,
			"target_id":    targetID,
		}).Error("failed to get active access request")
		return nil, storeError("get active access request", err)
	}
	return request, nil
}

// Review applies a pending -> approved/denied transition as a compare-and-set
// on status. Exactly one concurrent reviewer gets the row back; the others
// get an invalid state error.
func (r *AccessRequestRepository) Review(ctx context.Context, review Review) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.Review")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ub := database.NewUpdateBuilder()
	ub.Update(accessRequestsTable)
	ub.Set(
		ub.Assign("status", review.Status),
		ub.Assign("reviewed_by", review.ReviewerID),
		ub.Assign("reviewed_at", review.ReviewedAt),
		ub.Assign("expires_at", review.ExpiresAt),
	)
	ub.Where(
		ub.Equal("id", review.RequestID),
		ub.Equal("status", models.AccessRequestStatusPending),
	)
	ub.SQL("RETURNING " + accessRequestColumns)

	query, args := ub.Build()
	var request models.AccessRequest
	err := q.GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"request_id": review.RequestID,
			"status":     review.Status,
		}).Warn("access request already reviewed")
		return nil, apperrors.InvalidState("access request %s is no longer pending", review.RequestID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": review.RequestID,
			"status":     review.Status,
		}).Error("failed to review access request")
		return nil, storeError("review access request", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":  request.ID,
		"status":      request.Status,
		"reviewer_id": review.ReviewerID,
	}).Infof("Reviewed %s", accessRequestsTable)
	return &request, nil
}

// ListPendingForTarget returns the requests awaiting targetID's review, oldest first
func (r *AccessRequestRepository) ListPendingForTarget(ctx context.Context, targetID uuid.UUID) ([]models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.ListPendingForTarget")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := accessRequestStruct.SelectFrom(accessRequestsTable)
	sb.Where(sb.Equal("target_id", targetID), sb.Equal("status", models.AccessRequestStatusPending))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	requests := []models.AccessRequest{}
	if err := q.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("target_id", targetID).Error("failed to list pending access requests")
		return nil, storeError("list pending access requests", err)
	}
	return requests, nil
}

func (r *AccessRequestRepository) CountPendingForTarget(ctx context.Context, targetID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "AccessRequestRepository.CountPendingForTarget")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(accessRequestsTable)
	sb.Where(sb.Equal("target_id", targetID), sb.Equal("status", models.AccessRequestStatusPending))

	query, args := sb.Build()
	var count int
	if err := q.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("target_id", targetID).Error("failed to count pending access requests")
		return 0, storeError("count pending access requests", err)
	}
	return count, nil
}

func (r *AccessRequestRepository) getOne(ctx context.Context, sb *database.SelectBuilder) (*models.AccessRequest, error) {
	ctx, q, cancel := r.q(ctx)
	defer cancel()

	query, args := sb.Build()
	var request models.AccessRequest
	if err := q.GetContext(ctx, &request, query, args...); err != nil {
		return nil, err
	}
	return &request, nil
}
