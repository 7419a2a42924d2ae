// Package access runs the private photo access workflow. A requester asks a
// target; the target approves or denies exactly once; an approval grants a
// fixed window that is only ever checked, never swept. Every step leaves a
// system message in the pair's thread.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Outcome of RequestAccess
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomePending           Outcome = "pending"
	OutcomeAlreadyAuthorized Outcome = "already_authorized"
)

type RequestResult struct {
	Outcome Outcome               `json:"outcome"`
	Request *models.AccessRequest `json:"request"`
}

// RequestStatus is what a requester sees on the target's profile
type RequestStatus struct {
	Latest    *models.AccessRequest `json:"latest,omitempty"`
	Active    bool                  `json:"active"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
}

// Notifier writes system messages into pair threads
type Notifier interface {
	GetOrCreateThread(ctx context.Context, u1, u2 uuid.UUID) (*models.Thread, error)
	PostNotice(ctx context.Context, thread *models.Thread, senderID uuid.UUID, kind models.MessageKind, text string) (*models.Message, error)
}

type Publisher interface {
	Publish(ctx context.Context, evt *kafka.Event) error
}

// ReviewLocker serializes reviewers of one request ahead of the database
type ReviewLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type BadgeInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithReviewLocker(l ReviewLocker) Option {
	return func(s *Service) { s.locker = l }
}

func WithBadgeInvalidator(b BadgeInvalidator) Option {
	return func(s *Service) { s.badges = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

const reviewLockTTL = 10 * time.Second

type Service struct {
	logger   ectologger.Logger
	tx       database.Transactor
	requests repositories.AccessRequestRepo
	profiles repositories.ProfileRepo
	blocks   repositories.BlockRepo
	notifier Notifier
	events   Publisher
	locker   ReviewLocker
	badges   BadgeInvalidator
	now      func() time.Time
}

func NewService(
	logger ectologger.Logger,
	tx database.Transactor,
	requests repositories.AccessRequestRepo,
	profiles repositories.ProfileRepo,
	blocks repositories.BlockRepo,
	notifier Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		logger:   logger,
		tx:       tx,
		requests: requests,
		profiles: profiles,
		blocks:   blocks,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestAccess asks target for access on behalf of requester. Asking again
// while a request is pending returns that request; asking while a grant is
// active creates nothing.
func (s *Service) RequestAccess(ctx context.Context, requesterID, targetID uuid.UUID) (*RequestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "access.RequestAccess")
	defer span.End()

	if requesterID == targetID {
		return nil, apperrors.ErrSelfRequest
	}

	blocked, err := s.blocks.ExistsEitherWay(ctx, requesterID, targetID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.New(apperrors.KindNotAuthorized, "cannot request access from this account")
	}

	if active, err := s.findActive(ctx, requesterID, targetID); err != nil || active != nil {
		if err != nil {
			return nil, err
		}
		return &RequestResult{Outcome: OutcomeAlreadyAuthorized, Request: active}, nil
	}

	pending, err := s.requests.GetPending(ctx, requesterID, targetID)
	if err == nil {
		return &RequestResult{Outcome: OutcomePending, Request: pending}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	request := &models.AccessRequest{RequesterID: requesterID, TargetID: targetID}
	text := requestedText(s.displayName(ctx, requesterID))
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		thread, err := s.notifier.GetOrCreateThread(ctx, requesterID, targetID)
		if err != nil {
			return err
		}
		if err := s.requests.Create(ctx, request); err != nil {
			return err
		}
		_, err = s.notifier.PostNotice(ctx, thread, requesterID, models.MessageKindSystem, text)
		return err
	})
	if database.IsUniqueViolation(err, repositories.OnePendingConstraint) {
		// another request for the pair committed first
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"requester_id": requesterID,
			"target_id":    targetID,
		}).Warn("access request raced, returning the pending request")
		pending, err := s.requests.GetPending(ctx, requesterID, targetID)
		if err != nil {
			return nil, err
		}
		return &RequestResult{Outcome: OutcomePending, Request: pending}, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordAccessTransition(string(models.AccessRequestStatusPending))
	s.invalidate(ctx, targetID)
	s.publish(ctx, &kafka.Event{
		Type:        kafka.EventAccessRequestCreated,
		ActorID:     requesterID,
		RequestID:   &request.ID,
		RequesterID: &request.RequesterID,
		TargetID:    &request.TargetID,
	})
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id":   request.ID,
		"requester_id": requesterID,
		"target_id":    targetID,
	}).Info("access request created")
	return &RequestResult{Outcome: OutcomeCreated, Request: request}, nil
}

// ApproveAccess grants the requester a window of models.GrantWindow
func (s *Service) ApproveAccess(ctx context.Context, requestID, actorID uuid.UUID) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "access.ApproveAccess")
	defer span.End()

	return s.review(ctx, requestID, actorID, models.AccessRequestStatusApproved)
}

func (s *Service) DenyAccess(ctx context.Context, requestID, actorID uuid.UUID) (*models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "access.DenyAccess")
	defer span.End()

	return s.review(ctx, requestID, actorID, models.AccessRequestStatusDenied)
}

func (s *Service) review(ctx context.Context, requestID, actorID uuid.UUID, status models.AccessRequestStatus) (*models.AccessRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TargetID != actorID {
		return nil, apperrors.ErrNotAuthorized.With("request_id", requestID)
	}
	if !request.IsPending() {
		return nil, apperrors.InvalidState("access request %s is already %s", requestID, request.Status)
	}

	reviewedAt := s.now().UTC()
	review := repositories.Review{
		RequestID:  requestID,
		Status:     status,
		ReviewerID: actorID,
		ReviewedAt: reviewedAt,
	}
	var text string
	switch status {
	case models.AccessRequestStatusApproved:
		expiresAt := reviewedAt.Add(models.GrantWindow)
		review.ExpiresAt = &expiresAt
		text = approvedText(s.displayName(ctx, actorID))
	default:
		text = deniedText(s.displayName(ctx, actorID))
	}

	var reviewed *models.AccessRequest
	err = s.withReviewLock(ctx, requestID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			reviewed, err = s.requests.Review(ctx, review)
			if err != nil {
				return err
			}
			thread, err := s.notifier.GetOrCreateThread(ctx, reviewed.TargetID, reviewed.RequesterID)
			if err != nil {
				return err
			}
			_, err = s.notifier.PostNotice(ctx, thread, reviewed.TargetID, models.MessageKindSystem, text)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	eventType := kafka.EventAccessRequestDenied
	if status == models.AccessRequestStatusApproved {
		eventType = kafka.EventAccessRequestApproved
	}
	metrics.RecordAccessTransition(string(status))
	s.invalidate(ctx, reviewed.RequesterID, reviewed.TargetID)
	s.publish(ctx, &kafka.Event{
		Type:        eventType,
		ActorID:     actorID,
		RequestID:   &reviewed.ID,
		RequesterID: &reviewed.RequesterID,
		TargetID:    &reviewed.TargetID,
		ExpiresAt:   reviewed.ExpiresAt,
	})
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": reviewed.ID,
		"status":     reviewed.Status,
	}).Info("access request reviewed")
	return reviewed, nil
}

// withReviewLock holds the redis review lock around fn when one is
// configured. A reviewer that finds the lock taken loses like a CAS loser;
// an unreachable redis leaves the database to arbitrate.
func (s *Service) withReviewLock(ctx context.Context, requestID uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	ran := false
	err := s.locker.WithLock(ctx, "access_request:"+requestID.String(), reviewLockTTL, func(ctx context.Context) error {
		ran = true
		return fn(ctx)
	})
	switch {
	case ran:
		return err
	case errors.Is(err, redis.ErrLockNotAcquired):
		return apperrors.InvalidState("access request %s is being reviewed", requestID)
	default:
		s.logger.WithContext(ctx).WithError(err).Warn("review lock unavailable, relying on the database")
		return fn(ctx)
	}
}

// HasActiveAccess reports whether requester currently holds a grant from
// target. Lapsed grants are simply not active; nothing is written.
func (s *Service) HasActiveAccess(ctx context.Context, requesterID, targetID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "access.HasActiveAccess")
	defer span.End()

	active, err := s.findActive(ctx, requesterID, targetID)
	if err != nil {
		return false, err
	}
	return active != nil, nil
}

func (s *Service) findActive(ctx context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error) {
	active, err := s.requests.GetActive(ctx, requesterID, targetID, s.now())
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return active, err
}

// GetRequestStatus returns the latest request of the ordered pair and
// whether a grant is active now
func (s *Service) GetRequestStatus(ctx context.Context, requesterID, targetID uuid.UUID) (*RequestStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "access.GetRequestStatus")
	defer span.End()

	status := &RequestStatus{}
	latest, err := s.requests.GetLatest(ctx, requesterID, targetID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return status, nil
	case err != nil:
		return nil, err
	}
	status.Latest = latest

	active, err := s.findActive(ctx, requesterID, targetID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		status.Active = true
		status.ExpiresAt = active.ExpiresAt
	}
	return status, nil
}

// ListPendingForTarget lists the requests awaiting targetID, oldest first
func (s *Service) ListPendingForTarget(ctx context.Context, targetID uuid.UUID) ([]models.AccessRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "access.ListPendingForTarget")
	defer span.End()

	return s.requests.ListPendingForTarget(ctx, targetID)
}

func (s *Service) displayName(ctx context.Context, userID uuid.UUID) string {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil || profile.DisplayName == "" {
		return fallbackName
	}
	return profile.DisplayName
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if s.badges == nil {
		return
	}
	if err := s.badges.Invalidate(ctx, userIDs...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to invalidate badge cache")
	}
}

func (s *Service) publish(ctx context.Context, evt *kafka.Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("type", evt.Type).Warn("failed to publish event")
	}
}
