// Package memstore is an in-memory implementation of the repository
// interfaces for service tests. It keeps the same constraints the schema
// enforces: one thread per canonical pair, one pending request per ordered
// pair, and a status compare-and-set on review.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type pairKey struct{ a, b uuid.UUID }

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	profiles map[uuid.UUID]models.Profile
	blocks   map[pairKey]models.Block
	threads  map[uuid.UUID]models.Thread
	pairs    map[pairKey]uuid.UUID
	messages []models.Message
	requests map[uuid.UUID]models.AccessRequest
	order    []uuid.UUID

	// Fail, when set, is returned by every call.
	Fail error
}

func New() *Store {
	return &Store{
		now:      time.Now,
		profiles: map[uuid.UUID]models.Profile{},
		blocks:   map[pairKey]models.Block{},
		threads:  map[uuid.UUID]models.Thread{},
		pairs:    map[pairKey]uuid.UUID{},
		requests: map[uuid.UUID]models.AccessRequest{},
	}
}

// SetClock replaces the store's time source
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Profiles() repositories.ProfileRepo             { return profileRepo{s} }
func (s *Store) Blocks() repositories.BlockRepo                 { return blockRepo{s} }
func (s *Store) Threads() repositories.ThreadRepo               { return threadRepo{s} }
func (s *Store) Messages() repositories.MessageRepo             { return messageRepo{s} }
func (s *Store) AccessRequests() repositories.AccessRequestRepo { return requestRepo{s} }

// WithTx runs fn directly; the store has no rollback.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AllMessages returns a copy of every stored message in insertion order
func (s *Store) AllMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// ThreadCount is the number of stored threads
func (s *Store) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

// RequestCount is the number of stored access requests
func (s *Store) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// PutProfile stores p as-is
func (s *Store) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

type profileRepo struct{ s *Store }

func (r profileRepo) Get(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("profile for %s does not exist", userID)
	}
	return &p, nil
}

func (r profileRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	p, ok := r.s.profiles[userID]
	if !ok {
		now := r.s.now()
		p = models.Profile{UserID: userID, CreatedAt: now, UpdatedAt: now}
		r.s.profiles[userID] = p
	}
	return &p, nil
}

func (r profileRepo) MarkComplete(ctx context.Context, userID uuid.UUID, displayName string) (*models.Profile, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.profiles[userID]
	p.IsComplete = true
	if displayName != "" {
		p.DisplayName = displayName
	}
	p.UpdatedAt = r.s.now()
	r.s.profiles[userID] = p
	return &p, nil
}

func (r profileRepo) SetApproved(_ context.Context, userID uuid.UUID, approved bool, by uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("profile for %s does not exist", userID)
	}
	p.IsApproved = approved
	if approved {
		now := r.s.now()
		p.ApprovedBy, p.ApprovedAt = &by, &now
	} else {
		p.ApprovedBy, p.ApprovedAt = nil, nil
	}
	r.s.profiles[userID] = p
	return &p, nil
}

func (r profileRepo) ListAwaitingApproval(_ context.Context, limit int) ([]models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Profile{}
	for _, p := range r.s.profiles {
		if !p.IsApproved {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsComplete != out[j].IsComplete {
			return out[i].IsComplete
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type blockRepo struct{ s *Store }

func (r blockRepo) Create(_ context.Context, blockerID, blockedID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{blockerID, blockedID}
	if _, ok := r.s.blocks[key]; !ok {
		r.s.blocks[key] = models.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: r.s.now()}
	}
	return nil
}

func (r blockRepo) Delete(_ context.Context, blockerID, blockedID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.blocks, pairKey{blockerID, blockedID})
	return nil
}

func (r blockRepo) ExistsEitherWay(_ context.Context, a, b uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return false, r.s.Fail
	}
	_, ab := r.s.blocks[pairKey{a, b}]
	_, ba := r.s.blocks[pairKey{b, a}]
	return ab || ba, nil
}

func (r blockRepo) ListByBlocker(_ context.Context, blockerID uuid.UUID) ([]models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Block{}
	for _, b := range r.s.blocks {
		if b.BlockerID == blockerID {
			out = append(out, b)
		}
	}
	return out, nil
}

type threadRepo struct{ s *Store }

func (r threadRepo) GetOrCreate(_ context.Context, low, high uuid.UUID) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	if id, ok := r.s.pairs[pairKey{low, high}]; ok {
		t := r.s.threads[id]
		return &t, nil
	}
	now := r.s.now()
	t := models.Thread{ID: uuid.New(), UserLow: low, UserHigh: high, CreatedAt: now, UpdatedAt: now}
	r.s.threads[t.ID] = t
	r.s.pairs[pairKey{low, high}] = t.ID
	return &t, nil
}

func (r threadRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	t, ok := r.s.threads[id]
	if !ok {
		return nil, apperrors.NotFound("thread %s does not exist", id)
	}
	return &t, nil
}

func (r threadRepo) GetByPair(_ context.Context, low, high uuid.UUID) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.pairs[pairKey{low, high}]
	if !ok {
		return nil, apperrors.NotFound("no thread between %s and %s", low, high)
	}
	t := r.s.threads[id]
	return &t, nil
}

func (r threadRepo) Touch(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok {
		return nil
	}
	t.UpdatedAt = r.s.now()
	r.s.threads[id] = t
	return nil
}

func (r threadRepo) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]models.ThreadSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.ThreadSummary{}
	for _, t := range r.s.threads {
		other, ok := t.OtherParticipant(userID)
		if !ok {
			continue
		}
		summary := models.ThreadSummary{Thread: t, OtherUserID: other}
		for _, m := range r.s.messages {
			if m.ThreadID != t.ID {
				continue
			}
			if m.RecipientID == userID && !m.IsRead {
				summary.UnreadCount++
			}
			if m.VisibleTo(userID) {
				text, at := m.Text, m.CreatedAt
				summary.LastMessage, summary.LastMessageAt = &text, &at
			}
		}
		if summary.LastMessage != nil {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return r.s.Fail
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Kind == "" {
		m.Kind = models.MessageKindUser
	}
	m.HiddenFor = models.RoleSet{}
	m.CreatedAt = r.s.now()
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r messageRepo) ListVisible(_ context.Context, threadID, viewerID uuid.UUID, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Message{}
	for _, m := range r.s.messages {
		if m.ThreadID == threadID && m.VisibleTo(viewerID) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r messageRepo) MarkRead(_ context.Context, threadID, recipientID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i, m := range r.s.messages {
		if m.ThreadID == threadID && m.RecipientID == recipientID && !m.IsRead {
			r.s.messages[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (r messageRepo) HideForParticipant(_ context.Context, threadID, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i, m := range r.s.messages {
		if m.ThreadID != threadID {
			continue
		}
		role, ok := m.RoleOf(userID)
		if !ok || m.HiddenFor.Has(role) {
			continue
		}
		r.s.messages[i].HiddenFor = m.HiddenFor.With(role)
		if role == models.RoleRecipient {
			r.s.messages[i].IsRead = true
		}
		n++
	}
	return n, nil
}

func (r messageRepo) CountUnread(_ context.Context, recipientID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return 0, r.s.Fail
	}
	n := 0
	for _, m := range r.s.messages {
		if m.RecipientID == recipientID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

type requestRepo struct{ s *Store }

func (r requestRepo) Create(_ context.Context, req *models.AccessRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return r.s.Fail
	}
	for _, existing := range r.s.requests {
		if existing.RequesterID == req.RequesterID && existing.TargetID == req.TargetID && existing.IsPending() {
			return &pq.Error{Code: "23505", Constraint: repositories.OnePendingConstraint}
		}
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Status = models.AccessRequestStatusPending
	req.CreatedAt = r.s.now()
	r.s.requests[req.ID] = *req
	r.s.order = append(r.s.order, req.ID)
	return nil
}

func (r requestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, apperrors.NotFound("access request %s does not exist", id)
	}
	return &req, nil
}

// find returns the newest request of the pair satisfying match
func (r requestRepo) find(requesterID, targetID uuid.UUID, match func(models.AccessRequest) bool) (*models.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	for i := len(r.s.order) - 1; i >= 0; i-- {
		req := r.s.requests[r.s.order[i]]
		if req.RequesterID == requesterID && req.TargetID == targetID && match(req) {
			return &req, nil
		}
	}
	return nil, apperrors.NotFound("no matching request from %s to %s", requesterID, targetID)
}

func (r requestRepo) GetPending(_ context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error) {
	return r.find(requesterID, targetID, models.AccessRequest.IsPending)
}

func (r requestRepo) GetLatest(_ context.Context, requesterID, targetID uuid.UUID) (*models.AccessRequest, error) {
	return r.find(requesterID, targetID, func(models.AccessRequest) bool { return true })
}

func (r requestRepo) GetActive(_ context.Context, requesterID, targetID uuid.UUID, now time.Time) (*models.AccessRequest, error) {
	return r.find(requesterID, targetID, func(req models.AccessRequest) bool { return req.ActiveAt(now) })
}

func (r requestRepo) Review(_ context.Context, review repositories.Review) (*models.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Fail != nil {
		return nil, r.s.Fail
	}
	req, ok := r.s.requests[review.RequestID]
	if !ok || !req.IsPending() {
		return nil, apperrors.InvalidState("access request %s is no longer pending", review.RequestID)
	}
	reviewer, reviewedAt := review.ReviewerID, review.ReviewedAt
	req.Status = review.Status
	req.ReviewedBy = &reviewer
	req.ReviewedAt = &reviewedAt
	req.ExpiresAt = review.ExpiresAt
	r.s.requests[req.ID] = req
	return &req, nil
}

func (r requestRepo) ListPendingForTarget(_ context.Context, targetID uuid.UUID) ([]models.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.AccessRequest{}
	for _, id := range r.s.order {
		if req := r.s.requests[id]; req.TargetID == targetID && req.IsPending() {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r requestRepo) CountPendingForTarget(ctx context.Context, targetID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	fail := r.s.Fail
	r.s.mu.Unlock()
	if fail != nil {
		return 0, fail
	}
	pending, err := r.ListPendingForTarget(ctx, targetID)
	return len(pending), err
}
