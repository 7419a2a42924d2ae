// Package profiles owns the two account gates (complete, approved) and the
// block list between accounts.
package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher announces committed changes. A nil Publisher disables events.
type Publisher interface {
	Publish(ctx context.Context, evt *kafka.Event) error
}

type Service struct {
	logger   ectologger.Logger
	profiles repositories.ProfileRepo
	blocks   repositories.BlockRepo
	events   Publisher
}

func NewService(logger ectologger.Logger, profiles repositories.ProfileRepo, blocks repositories.BlockRepo, events Publisher) *Service {
	return &Service{
		logger:   logger,
		profiles: profiles,
		blocks:   blocks,
		events:   events,
	}
}

// State reads the caller's profile for the gate. It always goes to the store
// so an approval is visible on the very next request; a missing profile
// reads as neither complete nor approved.
func (s *Service) State(ctx context.Context, userID uuid.UUID, staff bool) (gate.AccountState, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.State")
	defer span.End()

	state := gate.AccountState{Authenticated: true, Staff: staff}
	if staff {
		return state, nil
	}

	profile, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, err
	}

	state.Complete = profile.IsComplete
	state.Approved = profile.IsApproved
	return state, nil
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.Get")
	defer span.End()

	return s.profiles.GetOrCreate(ctx, userID)
}

// SubmitComplete records the user's own profile submission. The profile then
// waits for an administrator.
func (s *Service) SubmitComplete(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.SubmitComplete")
	defer span.End()

	profile, err := s.profiles.MarkComplete(ctx, userID, displayName)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":     userID,
		"is_approved": profile.IsApproved,
	}).Info("profile submitted for approval")
	return profile, nil
}

// Approve sets approved on behalf of staffID. Completion is left as it is.
func (s *Service) Approve(ctx context.Context, staffID, userID uuid.UUID) (*models.Profile, error) {
	return s.setApproved(ctx, staffID, userID, true)
}

// Revoke clears approved without touching anything else on the profile
func (s *Service) Revoke(ctx context.Context, staffID, userID uuid.UUID) (*models.Profile, error) {
	return s.setApproved(ctx, staffID, userID, false)
}

func (s *Service) setApproved(ctx context.Context, staffID, userID uuid.UUID, approved bool) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.SetApproved")
	defer span.End()

	if _, err := s.profiles.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.SetApproved(ctx, userID, approved, staffID)
	if err != nil {
		return nil, err
	}

	eventType := kafka.EventProfileApproved
	if !approved {
		eventType = kafka.EventProfileRevoked
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":  userID,
		"staff_id": staffID,
		"approved": approved,
	}).Info("profile approval changed")

	s.publish(ctx, &kafka.Event{
		Type:    eventType,
		ActorID: staffID,
		UserID:  &userID,
	})
	return profile, nil
}

func (s *Service) ListAwaitingApproval(ctx context.Context, limit int) ([]models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.ListAwaitingApproval")
	defer span.End()

	return s.profiles.ListAwaitingApproval(ctx, limit)
}

// Block is idempotent
func (s *Service) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "profiles.Block")
	defer span.End()

	if blockerID == blockedID {
		return apperrors.New(apperrors.KindInvalidPair, "cannot block yourself")
	}
	if err := s.blocks.Create(ctx, blockerID, blockedID); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"blocker_id": blockerID,
		"blocked_id": blockedID,
	}).Info("user blocked")
	return nil
}

func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "profiles.Unblock")
	defer span.End()

	return s.blocks.Delete(ctx, blockerID, blockedID)
}

// IsBlocked reports a block between a and b in either direction
func (s *Service) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.IsBlocked")
	defer span.End()

	return s.blocks.ExistsEitherWay(ctx, a, b)
}

func (s *Service) ListBlocked(ctx context.Context, blockerID uuid.UUID) ([]models.Block, error) {
	ctx, span := tracing.StartSpan(ctx, "profiles.ListBlocked")
	defer span.End()

	return s.blocks.ListByBlocker(ctx, blockerID)
}

func (s *Service) publish(ctx context.Context, evt *kafka.Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("type", evt.Type).Warn("failed to publish event")
	}
}
