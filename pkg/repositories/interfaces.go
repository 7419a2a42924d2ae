package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ProfileRepo defines the interface for profile repository operations
type ProfileRepo interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	MarkComplete(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error)
	SetApproved(ctx context.Context, userID uuid.UUID, approved bool, by uuid.UUID) (*models.Profile, error)
	ListAwaitingApproval(ctx context.Context, limit int) ([]models.Profile, error)
}

// BlockRepo defines the interface for block repository operations
type BlockRepo interface {
	Create(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error
	ExistsEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]models.Block, error)
}

// ThreadRepo defines the interface for thread repository operations
type ThreadRepo interface {
	GetOrCreate(ctx context.Context, low, high uuid.UUID) (*models.Thread, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	GetByPair(ctx context.Context, low, high uuid.UUID) (*models.Thread, error)
	Touch(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ThreadSummary, error)
}

// MessageRepo defines the interface for message repository operations
type MessageRepo interface {
	Create(ctx context.Context, message *models.Message) error
	ListVisible(ctx context.Context, threadID, viewerID uuid.UUID, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, threadID, recipientID uuid.UUID) (int64, error)
	HideForParticipant(ctx context.Context, threadID, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
}

// AccessRequestRepo defines the interface for access request repository operations
type AccessRequestRepo interface {
	Create(ctx context.Context, request *models.AccessRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error)
	GetPending(ctx context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error)
	GetLatest(ctx context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error)
	GetActive(ctx context.Context, requesterID, targetID uuid.UUID, now time.Time) (*models.AccessRequest, error)
	Review(ctx context.Context, review Review) (*models.AccessRequest, error)
	ListPendingForTarget(ctx context.Context, targetID uuid.UUID) ([]models.AccessRequest, error)
	CountPendingForTarget(ctx context.Context, targetID uuid.UUID) (int, error)
}

// Review is a pending -> approved/denied transition.
type Review struct {
	RequestID  uuid.UUID
	Status     models.AccessRequestStatus
	ReviewerID uuid.UUID
	ReviewedAt time.Time
	ExpiresAt  *time.Time
}
