// Package redis provides a Redis-backed implementation of
// handoff.Repository. Callers build a Redis client, pass it to New, and may
// bound hand-off lifetime with a TTL so abandoned delegations expire on their
// own.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/health"

	"github.com/dialogmesh/dialogmesh/features/handoff"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
)

const (
	defaultKeyPrefix = "handoff:"
	clientName       = "handoff-redis"
)

type (
	// Options configures the Redis repository.
	Options struct {
		// Client is the Redis connection. Required; callers own its
		// lifecycle.
		Client *redis.Client
		// KeyPrefix prefixes every hand-off key. Defaults to "handoff:".
		KeyPrefix string
		// TTL bounds how long an untouched hand-off stays active. Zero means
		// no expiry. Every update refreshes the TTL.
		TTL time.Duration
	}

	// Repository implements handoff.Repository over Redis.
	Repository struct {
		rdb    commands
		ping   func(ctx context.Context) error
		prefix string
		ttl    time.Duration
	}

	// commands is the subset of Redis operations the repository uses. The
	// seam keeps tests free of a live Redis.
	commands interface {
		Get(ctx context.Context, key string) *redis.StringCmd
		Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
		Del(ctx context.Context, keys ...string) *redis.IntCmd
	}
)

// New builds a Repository from the given options.
func New(opts Options) (*Repository, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Repository{
		rdb:    opts.Client,
		ping:   func(ctx context.Context) error { return opts.Client.Ping(ctx).Err() },
		prefix: prefix,
		ttl:    opts.TTL,
	}, nil
}

// Ensure Repository implements handoff.Repository and health.Pinger.
var (
	_ handoff.Repository = (*Repository)(nil)
	_ health.Pinger      = (*Repository)(nil)
)

// Name implements health.Pinger.
func (r *Repository) Name() string {
	return clientName
}

// Ping implements health.Pinger.
func (r *Repository) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.ping(ctx)
}

// Create implements handoff.Repository.
func (r *Repository) Create(ctx context.Context, userID string, target orchestration.TargetBot, metadata orchestration.Metadata) (handoff.Handoff, error) {
	if userID == "" {
		return handoff.Handoff{}, errors.New("user id is required")
	}

	now := time.Now().UTC()
	h := handoff.Handoff{
		ID:        uuid.NewString(),
		UserID:    userID,
		TargetBot: target,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store(ctx, h); err != nil {
		return handoff.Handoff{}, err
	}
	return h, nil
}

// Get implements handoff.Repository.
func (r *Repository) Get(ctx context.Context, userID string) (handoff.Handoff, error) {
	if userID == "" {
		return handoff.Handoff{}, errors.New("user id is required")
	}

	raw, err := r.rdb.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return handoff.Handoff{}, handoff.ErrNotFound
		}
		return handoff.Handoff{}, err
	}
	var h handoff.Handoff
	if err := json.Unmarshal(raw, &h); err != nil {
		return handoff.Handoff{}, err
	}
	return h, nil
}

// Update implements handoff.Repository.
func (r *Repository) Update(ctx context.Context, userID string, payload json.RawMessage) (handoff.Handoff, error) {
	h, err := r.Get(ctx, userID)
	if err != nil {
		return handoff.Handoff{}, err
	}
	h.LastPayload = payload
	h.UpdatedAt = time.Now().UTC()
	if err := r.store(ctx, h); err != nil {
		return handoff.Handoff{}, err
	}
	return h, nil
}

// End implements handoff.Repository.
func (r *Repository) End(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	return r.rdb.Del(ctx, r.key(userID)).Err()
}

func (r *Repository) store(ctx context.Context, h handoff.Handoff) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(h.UserID), raw, r.ttl).Err()
}

func (r *Repository) key(userID string) string {
	return r.prefix + userID
}
