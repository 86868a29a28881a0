package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dialogmesh/dialogmesh/features/handoff"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
)

// fakeCommands records Set/Del calls and serves Get from an in-memory map,
// standing in for a live Redis.
type fakeCommands struct {
	values  map[string]string
	lastTTL time.Duration
	setErr  error
	getErr  error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{values: map[string]string{}}
}

func (f *fakeCommands) Get(ctx context.Context, key string) *goredis.StringCmd {
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	val, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(val, nil)
}

func (f *fakeCommands) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	f.values[key] = string(value.([]byte))
	f.lastTTL = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return goredis.NewIntResult(removed, nil)
}

func newTestRepository(fake *fakeCommands, ttl time.Duration) *Repository {
	return &Repository{
		rdb:    fake,
		ping:   func(context.Context) error { return nil },
		prefix: defaultKeyPrefix,
		ttl:    ttl,
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	fake := newFakeCommands()
	repo := newTestRepository(fake, 0)
	ctx := context.Background()
	target := orchestration.TargetBot{ID: "banking", URL: "http://banking.local"}
	md := orchestration.Metadata{UserID: "u1", BotID: "banking", OrchestratorID: "orch"}

	created, err := repo.Create(ctx, "u1", target, md)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Contains(t, fake.values, "handoff:u1")

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, target, got.TargetBot)
	require.Equal(t, md, got.Metadata)

	updated, err := repo.Update(ctx, "u1", json.RawMessage(`{"answer":"hi"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"answer":"hi"}`, string(updated.LastPayload))

	require.NoError(t, repo.End(ctx, "u1"))
	_, err = repo.Get(ctx, "u1")
	require.ErrorIs(t, err, handoff.ErrNotFound)
}

func TestRepositoryMissingKeyMapsToNotFound(t *testing.T) {
	repo := newTestRepository(newFakeCommands(), 0)
	ctx := context.Background()

	_, err := repo.Get(ctx, "ghost")
	require.ErrorIs(t, err, handoff.ErrNotFound)
	_, err = repo.Update(ctx, "ghost", nil)
	require.ErrorIs(t, err, handoff.ErrNotFound)
	require.NoError(t, repo.End(ctx, "ghost"))
}

// TestRepositoryTTLRefreshedOnUpdate verifies that every write carries the
// configured expiry, so active hand-offs keep sliding forward.
func TestRepositoryTTLRefreshedOnUpdate(t *testing.T) {
	fake := newFakeCommands()
	repo := newTestRepository(fake, 30*time.Minute)
	ctx := context.Background()

	_, err := repo.Create(ctx, "u1", orchestration.TargetBot{ID: "b"}, orchestration.Metadata{})
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, fake.lastTTL)

	fake.lastTTL = 0
	_, err = repo.Update(ctx, "u1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, fake.lastTTL)
}

func TestRepositoryPropagatesBackendErrors(t *testing.T) {
	fake := newFakeCommands()
	repo := newTestRepository(fake, 0)
	ctx := context.Background()

	fake.setErr = errors.New("connection reset")
	_, err := repo.Create(ctx, "u1", orchestration.TargetBot{ID: "b"}, orchestration.Metadata{})
	require.Error(t, err)

	fake.setErr = nil
	fake.getErr = errors.New("connection reset")
	_, err = repo.Get(ctx, "u1")
	require.Error(t, err)
	require.NotErrorIs(t, err, handoff.ErrNotFound)
}

func TestRepositoryCorruptValue(t *testing.T) {
	fake := newFakeCommands()
	fake.values["handoff:u1"] = "{not json"
	repo := newTestRepository(fake, 0)

	_, err := repo.Get(context.Background(), "u1")
	require.Error(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRepositoryHealthName(t *testing.T) {
	repo := newTestRepository(newFakeCommands(), 0)
	require.Equal(t, "handoff-redis", repo.Name())
	require.NoError(t, repo.Ping(context.Background()))
}
