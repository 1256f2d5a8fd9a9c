package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-grants/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubGrantReaderStore struct {
	core.GrantStore

	mu       sync.Mutex
	grant    core.Grant
	getCalls int
	getErr   error
}

func (s *stubGrantReaderStore) Get(_ context.Context, _ core.GrantKey) (core.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Grant{}, s.getErr
	}
	return s.grant, nil
}

func newTestGrantCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func cachedReaderKey() core.GrantKey {
	return core.GrantKey{GuildID: "g1", SubjectID: "u1", KindID: "vip"}
}

func TestCachedGrantReader_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestGrantCacheService(t)
	base := &stubGrantReaderStore{
		grant: core.Grant{
			Key:       cachedReaderKey(),
			Status:    core.GrantStatusActive,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			Version:   3,
		},
	}

	reader, err := NewCachedGrantReader(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	if _, err := reader.Get(context.Background(), cachedReaderKey()); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	grant, err := reader.Get(context.Background(), cachedReaderKey())
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
	if grant.Version != 3 {
		t.Fatalf("expected cached row version 3, got %d", grant.Version)
	}
}

func TestCachedGrantReader_InvalidateForcesRefetch(t *testing.T) {
	cacheService := newTestGrantCacheService(t)
	base := &stubGrantReaderStore{
		grant: core.Grant{
			Key:       cachedReaderKey(),
			Status:    core.GrantStatusActive,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			Version:   1,
		},
	}

	reader, err := NewCachedGrantReader(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	if _, err := reader.Get(context.Background(), cachedReaderKey()); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}

	base.mu.Lock()
	base.grant.Version = 2
	base.mu.Unlock()

	if err := reader.Invalidate(context.Background(), cachedReaderKey()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	grant, err := reader.Get(context.Background(), cachedReaderKey())
	if err != nil {
		t.Fatalf("get after invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if grant.Version != 2 {
		t.Fatalf("expected refreshed row version 2, got %d", grant.Version)
	}
}

func TestGrantCacheKey_Contract(t *testing.T) {
	key, err := GrantCacheKey(core.GrantKey{
		GuildID:   " Guild/One ",
		SubjectID: "user one",
		KindID:    " VIP ",
	})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-grants::grant_timer::v1::Guild%2FOne::user%20one::VIP"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := GrantCacheKey(core.GrantKey{GuildID: "g1"}); err == nil {
		t.Fatal("partial key must fail")
	}
}

func TestCachedGrantReader_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestGrantCacheService(t)
	base := &stubGrantReaderStore{getErr: core.ErrGrantNotFound}
	reader, err := NewCachedGrantReader(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	if _, err := reader.Get(context.Background(), cachedReaderKey()); !errors.Is(err, core.ErrGrantNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}
