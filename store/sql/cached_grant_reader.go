package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-grants/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const grantCacheKeyPrefix = "go-grants::grant_timer::v1"

// CachedGrantReader serves the hot read path (status lookups, countdown
// rendering) through a cache in front of the SQL store. Writes go elsewhere;
// callers that mutate a grant must Invalidate the key afterwards. The sweep
// and the engine's mutation paths never read through this type, so a stale
// cache entry can only ever delay a display, never a state transition.
type CachedGrantReader struct {
	base  core.GrantStore
	cache repositorycache.CacheService
}

func NewCachedGrantReader(base core.GrantStore, cacheService repositorycache.CacheService) (*CachedGrantReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base grant store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: grant cache service is required")
	}
	return &CachedGrantReader{base: base, cache: cacheService}, nil
}

// GrantCacheKey is the deterministic cache key contract:
// go-grants::grant_timer::v1::<guild>::<subject>::<kind>, each segment
// URL-path escaped after normalization.
func GrantCacheKey(key core.GrantKey) (string, error) {
	normalized := key.Normalize()
	if err := normalized.Validate(); err != nil {
		return "", err
	}
	segments := []string{
		normalized.GuildID,
		normalized.SubjectID,
		normalized.KindID,
	}
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{grantCacheKeyPrefix}, segments...), "::"), nil
}

func (r *CachedGrantReader) Get(ctx context.Context, key core.GrantKey) (core.Grant, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Grant{}, fmt.Errorf("sqlstore: cached grant reader is not configured")
	}
	normalized := key.Normalize()
	cacheKey, err := GrantCacheKey(normalized)
	if err != nil {
		return core.Grant{}, err
	}

	grant, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (core.Grant, error) {
		fetched, fetchErr := r.base.Get(ctx, normalized)
		if fetchErr != nil {
			return core.Grant{}, fetchErr
		}
		return cloneCachedGrant(fetched), nil
	})
	if err != nil {
		return core.Grant{}, err
	}
	return cloneCachedGrant(grant), nil
}

// Invalidate drops the cached row after a mutation.
func (r *CachedGrantReader) Invalidate(ctx context.Context, key core.GrantKey) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached grant reader is not configured")
	}
	cacheKey, err := GrantCacheKey(key)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}

func cloneCachedGrant(grant core.Grant) core.Grant {
	grant.WarnedThresholds = append([]int(nil), grant.WarnedThresholds...)
	return grant
}
