package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	unreadField  = "unread_messages"
	pendingField = "pending_reviews"
)

// generationTTL outlives any count in flight by a wide margin
const generationTTL = time.Hour

// setIfCurrentScript stores the counts only while the user's generation
// still equals the one the reader saw before counting.
// KEYS: badges, generation. ARGV: generation, unread, pending, ttl ms.
var setIfCurrentScript = goredis.NewScript(`
	local current = redis.call("get", KEYS[2]) or "0"
	if current ~= ARGV[1] then
		return 0
	end
	redis.call("hset", KEYS[1], "unread_messages", ARGV[2], "pending_reviews", ARGV[3])
	redis.call("pexpire", KEYS[1], ARGV[4])
	return 1
`)

// BadgeCache keeps a user's badge counts for a short TTL. Writers that change
// a count call Invalidate, which also bumps the user's generation so that a
// reader that counted before the change cannot store its result afterwards.
type BadgeCache struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

func NewBadgeCache(client *Client, ttl time.Duration) *BadgeCache {
	return &BadgeCache{
		client:    client,
		keyPrefix: "clover:badges:",
		ttl:       ttl,
	}
}

func (b *BadgeCache) generationKey(userID uuid.UUID) string {
	return b.keyPrefix + "gen:" + userID.String()
}

func (b *BadgeCache) key(userID uuid.UUID) string {
	return b.keyPrefix + userID.String()
}

// Get returns the cached badges and whether there was a hit.
func (b *BadgeCache) Get(ctx context.Context, userID uuid.UUID) (models.Badges, bool, error) {
	values, err := b.client.rdb.HMGet(ctx, b.key(userID), unreadField, pendingField).Result()
	if errors.Is(err, goredis.Nil) {
		return models.Badges{}, false, nil
	}
	if err != nil {
		return models.Badges{}, false, err
	}

	unread, ok := parseCount(values[0])
	if !ok {
		return models.Badges{}, false, nil
	}
	pending, ok := parseCount(values[1])
	if !ok {
		return models.Badges{}, false, nil
	}
	return models.Badges{UnreadMessages: unread, PendingReviews: pending}, true, nil
}

// Generation returns the user's current invalidation generation, 0 if the
// user was never invalidated.
func (b *BadgeCache) Generation(ctx context.Context, userID uuid.UUID) (int64, error) {
	gen, err := b.client.rdb.Get(ctx, b.generationKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfCurrent caches badges unless the user was invalidated after
// generation was read. It reports whether the value was stored.
func (b *BadgeCache) SetIfCurrent(ctx context.Context, userID uuid.UUID, generation int64, badges models.Badges) (bool, error) {
	stored, err := setIfCurrentScript.Run(ctx, b.client.rdb,
		[]string{b.key(userID), b.generationKey(userID)},
		strconv.FormatInt(generation, 10), badges.UnreadMessages, badges.PendingReviews, b.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the cached badges of every given user and advances their
// generations.
func (b *BadgeCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := b.client.rdb.TxPipeline()
	for _, id := range userIDs {
		genKey := b.generationKey(id)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, b.key(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func parseCount(v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
