package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const profilesTable = "profiles"

const profileColumns = "user_id, display_name, is_complete, is_approved, approved_by, approved_at, created_at, updated_at"

var profileStruct = database.NewStruct(new(models.Profile))

// ProfileRepository handles database operations for profiles
type ProfileRepository struct {
	*Repository
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db database.DB, logger ectologger.Logger) *ProfileRepository {
	return &ProfileRepository{
		Repository: NewRepository(db, logger),
	}
}

// Get reads the profile fresh from the store. A missing profile is a
// not-found domain error; nothing is created.
func (r *ProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfileRepository.Get")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := profileStruct.SelectFrom(profilesTable)
	sb.Where(sb.Equal("user_id", userID))

	query, args := sb.Build()
	var profile models.Profile
	err := q.GetContext(ctx, &profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("profile for user %s does not exist", userID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id": userID,
		}).Error("failed to get profile")
		return nil, storeError("get profile", err)
	}

	return &profile, nil
}

// GetOrCreate returns the profile, creating an empty one on first use
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfileRepository.GetOrCreate")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	query := `
		INSERT INTO profiles (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET updated_at = profiles.updated_at
		RETURNING ` + profileColumns

	var profile models.Profile
	if err := q.GetContext(ctx, &profile, query, userID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id": userID,
		}).Error("failed to get or create profile")
		return nil, storeError("get or create profile", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": userID,
	}).Debugf("Got or created %s for user %s", profilesTable, userID)
	return &profile, nil
}

// MarkComplete records the user's own profile submission. It never touches
// the approval flag.
func (r *ProfileRepository) MarkComplete(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfileRepository.MarkComplete")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	query := `
		INSERT INTO profiles (user_id, display_name, is_complete, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET is_complete = TRUE,
		              display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), profiles.display_name),
		              updated_at = NOW()
		RETURNING ` + profileColumns

	var profile models.Profile
	if err := q.GetContext(ctx, &profile, query, userID, displayName); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id": userID,
		}).Error("failed to mark profile complete")
		return nil, storeError("mark profile complete", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": userID,
	}).Info("Profile marked complete")
	return &profile, nil
}

// SetApproved is the administrator path for granting or revoking approval
func (r *ProfileRepository) SetApproved(ctx context.Context, userID uuid.UUID, approved bool, by uuid.UUID) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfileRepository.SetApproved")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ub := database.NewUpdateBuilder()
	ub.Update(profilesTable)
	if approved {
		ub.Set(
			ub.Assign("is_approved", true),
			ub.Assign("approved_by", by),
			ub.Assign("approved_at", database.Now()),
			ub.Assign("updated_at", database.Now()),
		)
	} else {
		ub.Set(
			ub.Assign("is_approved", false),
			ub.Assign("approved_by", nil),
			ub.Assign("approved_at", nil),
			ub.Assign("updated_at", database.Now()),
		)
	}
	ub.Where(ub.Equal("user_id", userID))
	ub.SQL("RETURNING " + profileColumns)

	query, args := ub.Build()
	var profile models.Profile
	err := q.GetContext(ctx, &profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("profile for user %s does not exist", userID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":  userID,
			"approved": approved,
		}).Error("failed to set profile approval")
		return nil, storeError("set profile approval", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":     userID,
		"approved":    approved,
		"reviewed_by": by,
	}).Info("Profile approval changed")
	return &profile, nil
}

// ListAwaitingApproval lists unapproved profiles, completed ones first
func (r *ProfileRepository) ListAwaitingApproval(ctx context.Context, limit int) ([]models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "ProfileRepository.ListAwaitingApproval")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := profileStruct.SelectFrom(profilesTable)
	sb.Where(sb.Equal("is_approved", false))
	sb.OrderBy("is_complete DESC", "created_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	profiles := []models.Profile{}
	if err := q.SelectContext(ctx, &profiles, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list profiles awaiting approval")
		return nil, storeError("list profiles awaiting approval", err)
	}

	r.logger.WithContext(ctx).Debugf("Listed %d %s awaiting approval", len(profiles), profilesTable)
	return profiles, nil
}
