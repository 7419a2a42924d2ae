// Package notifications projects the counts clients poll for navigation
// badges.
package notifications

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type PendingCounter interface {
	CountPendingForTarget(ctx context.Context, targetID uuid.UUID) (int, error)
}

// Cache holds recent badge projections. Get reports a miss with false.
// Generation changes whenever the user's badges are invalidated, and
// SetIfCurrent only stores counts read under the generation passed in.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (models.Badges, bool, error)
	Generation(ctx context.Context, userID uuid.UUID) (int64, error)
	SetIfCurrent(ctx context.Context, userID uuid.UUID, generation int64, badges models.Badges) (bool, error)
}

type Aggregator struct {
	logger  ectologger.Logger
	unread  UnreadCounter
	pending PendingCounter
	cache   Cache
}

// NewAggregator builds an aggregator. cache may be nil.
func NewAggregator(logger ectologger.Logger, unread UnreadCounter, pending PendingCounter, cache Cache) *Aggregator {
	return &Aggregator{
		logger:  logger,
		unread:  unread,
		pending: pending,
		cache:   cache,
	}
}

// Badges returns the user's unread message and pending review counts. A
// count that cannot be read is reported as 0 and the other is still
// returned; a partial result is not cached, and neither is a result that an
// invalidation overtook while it was being counted.
func (a *Aggregator) Badges(ctx context.Context, userID uuid.UUID) models.Badges {
	ctx, span := tracing.StartSpan(ctx, "notifications.Badges")
	defer span.End()

	log := a.logger.WithContext(ctx).WithField("user_id", userID)

	cacheable := a.cache != nil
	var generation int64
	if a.cache != nil {
		cached, hit, err := a.cache.Get(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("badge cache read failed")
		}
		metrics.RecordBadgeCache(hit)
		if hit {
			return cached
		}
		if generation, err = a.cache.Generation(ctx, userID); err != nil {
			log.WithError(err).Warn("badge cache generation read failed")
			cacheable = false
		}
	}

	var badges models.Badges
	complete := true

	unread, err := a.unread.UnreadCount(ctx, userID)
	if err != nil {
		log.WithError(err).Error("failed to count unread messages")
		complete = false
	} else {
		badges.UnreadMessages = unread
	}

	pending, err := a.pending.CountPendingForTarget(ctx, userID)
	if err != nil {
		log.WithError(err).Error("failed to count pending access requests")
		complete = false
	} else {
		badges.PendingReviews = pending
	}

	if cacheable && complete {
		stored, err := a.cache.SetIfCurrent(ctx, userID, generation, badges)
		switch {
		case err != nil:
			log.WithError(err).Warn("badge cache write failed")
		case !stored:
			log.Debug("badges changed while counting, not caching")
		}
	}
	return badges
}
