package repositories

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const messagesTable = "messages"

// viewerRole yields 'sender' or 'recipient' for the viewer bound at %s.
const viewerRole = "(CASE WHEN sender_id = %s THEN 'sender' ELSE 'recipient' END)"

var messageStruct = database.NewStruct(new(models.Message))

// MessageRepository handles database operations for messages
type MessageRepository struct {
	*Repository
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db database.DB, logger ectologger.Logger) *MessageRepository {
	return &MessageRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create appends a message; ID, CreatedAt and HiddenFor are filled in
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.Create")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.Kind == "" {
		message.Kind = models.MessageKindUser
	}
	message.HiddenFor = models.RoleSet{}

	ib := database.NewInsertBuilder()
	ib.InsertInto(messagesTable).
		Cols("id", "thread_id", "sender_id", "recipient_id", "body", "kind", "is_read", "hidden_for", "created_at").
		Values(message.ID, message.ThreadID, message.SenderID, message.RecipientID, message.Text,
			message.Kind, message.IsRead, message.HiddenFor, database.Now()).
		Returning("created_at")

	query, args := ib.Build()
	if err := q.QueryRowContext(ctx, query, args...).Scan(&message.CreatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id": message.ThreadID,
			"sender_id": message.SenderID,
			"kind":      message.Kind,
		}).Error("failed to create message")
		return storeError("create message", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"message_id": message.ID,
		"thread_id":  message.ThreadID,
		"kind":       message.Kind,
	}).Debugf("Created %s", messagesTable)
	return nil
}

// ListVisible returns the newest limit messages of a thread that viewerID has
// not hidden, oldest first.
func (r *MessageRepository) ListVisible(ctx context.Context, threadID, viewerID uuid.UUID, limit int) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.ListVisible")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	sb := messageStruct.SelectFrom(messagesTable)
	sb.Where(
		sb.Equal("thread_id", threadID),
		fmt.Sprintf("NOT ("+viewerRole+" = ANY (hidden_for))", sb.Var(viewerID)),
	)
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	messages := []models.Message{}
	if err := q.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id": threadID,
			"viewer_id": viewerID,
		}).Error("failed to list messages")
		return nil, storeError("list messages", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead flips every unread message addressed to recipientID in the thread
func (r *MessageRepository) MarkRead(ctx context.Context, threadID, recipientID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.MarkRead")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ub := database.NewUpdateBuilder()
	ub.Update(messagesTable)
	ub.Set(ub.Assign("is_read", true))
	ub.Where(
		ub.Equal("thread_id", threadID),
		ub.Equal("recipient_id", recipientID),
		ub.Equal("is_read", false),
	)

	query, args := ub.Build()
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id":    threadID,
			"recipient_id": recipientID,
		}).Error("failed to mark messages read")
		return 0, storeError("mark messages read", err)
	}

	affected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id":    threadID,
		"recipient_id": recipientID,
		"count":        affected,
	}).Debug("Marked messages read")
	return affected, nil
}

// HideForParticipant adds userID's side to hidden_for on every message of the
// thread. Messages received by userID are marked read at the same time so a
// cleared conversation does not keep the unread badge lit.
func (r *MessageRepository) HideForParticipant(ctx context.Context, threadID, userID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.HideForParticipant")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	ub := database.NewUpdateBuilder()
	ub.Update(messagesTable)
	role := fmt.Sprintf(viewerRole, ub.Var(userID))
	ub.Set(
		"hidden_for = array_append(hidden_for, "+role+")",
		fmt.Sprintf("is_read = is_read OR recipient_id = %s", ub.Var(userID)),
	)
	ub.Where(
		ub.Equal("thread_id", threadID),
		ub.Or(ub.Equal("sender_id", userID), ub.Equal("recipient_id", userID)),
		"NOT ("+role+" = ANY (hidden_for))",
	)

	query, args := ub.Build()
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"thread_id": threadID,
			"user_id":   userID,
		}).Error("failed to hide conversation")
		return 0, storeError("hide conversation", err)
	}

	affected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"thread_id": threadID,
		"user_id":   userID,
		"count":     affected,
	}).Info("Conversation hidden for participant")
	return affected, nil
}

// CountUnread is a single aggregate over every thread of recipientID
func (r *MessageRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "MessageRepository.CountUnread")
	defer span.End()

	ctx, q, cancel := r.q(ctx)
	defer cancel()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(messagesTable)
	sb.Where(sb.Equal("recipient_id", recipientID), sb.Equal("is_read", false))

	query, args := sb.Build()
	var count int
	if err := q.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"recipient_id": recipientID,
		}).Error("failed to count unread messages")
		return 0, storeError("count unread messages", err)
	}
	return count, nil
}
