// Package conversation stores two-party threads and their message logs.
//
// A thread exists at most once per unordered pair of accounts and is keyed by
// the pair sorted ascending. Messages are never edited: a participant can
// only mark what was sent to them as read, or hide the whole thread from
// their own view, which leaves the other side's history untouched.
package conversation

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RateLimiter bounds how fast a sender may post
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*redis.RateLimitResult, error)
}

// BadgeInvalidator drops cached badge counts of users whose counts changed
type BadgeInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

type Option func(*Service)

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithBadgeInvalidator(b BadgeInvalidator) Option {
	return func(s *Service) { s.badges = b }
}

type Service struct {
	logger   ectologger.Logger
	tx       database.Transactor
	threads  repositories.ThreadRepo
	messages repositories.MessageRepo
	blocks   repositories.BlockRepo
	limiter  RateLimiter
	badges   BadgeInvalidator
}

func NewService(
	logger ectologger.Logger,
	tx database.Transactor,
	threads repositories.ThreadRepo,
	messages repositories.MessageRepo,
	blocks repositories.BlockRepo,
	opts ...Option,
) *Service {
	s := &Service{
		logger:   logger,
		tx:       tx,
		threads:  threads,
		messages: messages,
		blocks:   blocks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateThread returns the single thread of {u1, u2}; argument order
// does not matter.
func (s *Service) GetOrCreateThread(ctx context.Context, u1, u2 uuid.UUID) (*models.Thread, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.GetOrCreateThread")
	defer span.End()

	if u1 == u2 || u1 == uuid.Nil || u2 == uuid.Nil {
		return nil, apperrors.ErrInvalidPair
	}
	low, high := models.CanonicalPair(u1, u2)
	return s.threads.GetOrCreate(ctx, low, high)
}

// Thread loads a thread the actor takes part in
func (s *Service) Thread(ctx context.Context, threadID, actorID uuid.UUID) (*models.Thread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(actorID) {
		return nil, apperrors.ErrNotParticipant.With("thread_id", threadID)
	}
	return thread, nil
}

// PostMessage appends a user message from senderID; the recipient is the
// other participant.
func (s *Service) PostMessage(ctx context.Context, threadID, senderID uuid.UUID, text string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.PostMessage")
	defer span.End()

	thread, err := s.Thread(ctx, threadID, senderID)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, thread, senderID, text)
}

// PostTo opens (or creates) the thread with recipientID and posts into it.
// A blocked pair is rejected before any thread is created.
func (s *Service) PostTo(ctx context.Context, senderID, recipientID uuid.UUID, text string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.PostTo")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if senderID == recipientID || senderID == uuid.Nil || recipientID == uuid.Nil {
		return nil, apperrors.ErrInvalidPair
	}
	if err := s.checkBlocked(ctx, senderID, recipientID); err != nil {
		return nil, err
	}
	thread, err := s.GetOrCreateThread(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, thread, senderID, recipientID, text)
}

func (s *Service) post(ctx context.Context, thread *models.Thread, senderID uuid.UUID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	recipientID, _ := thread.OtherParticipant(senderID)
	if err := s.checkBlocked(ctx, senderID, recipientID); err != nil {
		return nil, err
	}
	return s.send(ctx, thread, senderID, recipientID, text)
}

func (s *Service) checkBlocked(ctx context.Context, senderID, recipientID uuid.UUID) error {
	blocked, err := s.blocks.ExistsEitherWay(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	if blocked {
		return apperrors.New(apperrors.KindNotAuthorized, "messaging between these accounts is blocked")
	}
	return nil
}

// send applies the rate limit and stores a user message
func (s *Service) send(ctx context.Context, thread *models.Thread, senderID, recipientID uuid.UUID, text string) (*models.Message, error) {
	if err := s.checkRate(ctx, senderID); err != nil {
		return nil, err
	}

	message, err := s.write(ctx, thread, senderID, models.MessageKindUser, text)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, recipientID)
	return message, nil
}

// PostNotice writes a platform message from senderID to the other
// participant. It skips the block list and the rate limit and joins the
// transaction carried by ctx, if any.
func (s *Service) PostNotice(ctx context.Context, thread *models.Thread, senderID uuid.UUID, kind models.MessageKind, text string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.PostNotice")
	defer span.End()

	if !thread.HasParticipant(senderID) {
		return nil, apperrors.ErrNotParticipant.With("thread_id", thread.ID)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	return s.write(ctx, thread, senderID, kind, text)
}

// PostAdminMessage is the privileged entry point for staff. The message lands
// in the thread between the administrator and the recipient and bypasses the
// block list and the rate limit.
func (s *Service) PostAdminMessage(ctx context.Context, adminID, recipientID uuid.UUID, text string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.PostAdminMessage")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	thread, err := s.GetOrCreateThread(ctx, adminID, recipientID)
	if err != nil {
		return nil, err
	}

	message, err := s.write(ctx, thread, adminID, models.MessageKindAdmin, strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"admin_id":     adminID,
		"recipient_id": recipientID,
		"message_id":   message.ID,
	}).Info("admin message posted")
	s.invalidate(ctx, recipientID)
	return message, nil
}

// write stores the message and advances the thread in one transaction
func (s *Service) write(ctx context.Context, thread *models.Thread, senderID uuid.UUID, kind models.MessageKind, text string) (*models.Message, error) {
	recipientID, _ := thread.OtherParticipant(senderID)
	message := &models.Message{
		ThreadID:    thread.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		Kind:        kind,
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, message); err != nil {
			return err
		}
		return s.threads.Touch(ctx, thread.ID)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordMessagePosted(string(kind))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id":  thread.ID,
		"message_id": message.ID,
		"kind":       kind,
	}).Debug("message posted")
	return message, nil
}

func (s *Service) checkRate(ctx context.Context, senderID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.Allow(ctx, "messages:"+senderID.String())
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing message")
		return nil
	}
	if !res.Allowed {
		metrics.RecordRateLimited()
		return apperrors.ErrRateLimited.With("retry_in_seconds", int(res.RetryIn.Seconds()+0.5))
	}
	return nil
}

// MarkRead flips every unread message addressed to actor in the thread
func (s *Service) MarkRead(ctx context.Context, threadID, actorID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.MarkRead")
	defer span.End()

	if _, err := s.Thread(ctx, threadID, actorID); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, threadID, actorID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, actorID)
	}
	return n, nil
}

// UnreadCount counts unread messages addressed to the user across all threads
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.UnreadCount")
	defer span.End()

	return s.messages.CountUnread(ctx, userID)
}

// DeleteConversation hides every message of the thread from actor only.
// It also marks the actor's incoming messages in the thread as read, so
// they stop counting towards the actor's unread count. The other
// participant's view and unread count are untouched.
func (s *Service) DeleteConversation(ctx context.Context, threadID, actorID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.DeleteConversation")
	defer span.End()

	if _, err := s.Thread(ctx, threadID, actorID); err != nil {
		return err
	}
	n, err := s.messages.HideForParticipant(ctx, threadID, actorID)
	if err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id": threadID,
		"user_id":   actorID,
		"hidden":    n,
	}).Info("conversation deleted for participant")
	s.invalidate(ctx, actorID)
	return nil
}

// ListThreads is the user's inbox, most recently active first
func (s *Service) ListThreads(ctx context.Context, userID uuid.UUID, limit int) ([]models.ThreadSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.ListThreads")
	defer span.End()

	return s.threads.ListForUser(ctx, userID, limit)
}

// ListMessages returns the thread as the actor sees it, oldest first
func (s *Service) ListMessages(ctx context.Context, threadID, actorID uuid.UUID, limit int) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.ListMessages")
	defer span.End()

	if _, err := s.Thread(ctx, threadID, actorID); err != nil {
		return nil, err
	}
	return s.messages.ListVisible(ctx, threadID, actorID, limit)
}

func (s *Service) invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if s.badges == nil {
		return
	}
	if err := s.badges.Invalidate(ctx, userIDs...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to invalidate badge cache")
	}
}
