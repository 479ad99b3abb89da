// internal/catalog/cache.go
package catalog

/*
 * Stale-time cache over a Source.
 *
 * Each catalog is cached independently. A value younger than staleTime is
 * served without touching the source. Older values trigger a refetch;
 * concurrent refetches of the same catalog collapse into one source call
 * (singleflight). When a refetch fails and an older value exists, the older
 * value is served and the failure is logged, so a flaky backend degrades to
 * stale reference data instead of an empty form.
 *
 * A flight is shared by every caller that joined it, so it runs on a context
 * detached from the caller that started it and bounded by fetchTimeout. A
 * caller whose own context ends stops waiting; the flight continues for the
 * others.
 */

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solatis/policykit/internal/core/metrics"
	"github.com/solatis/policykit/internal/types"
)

// DefaultStaleTime matches the reference-data refresh window of the admin UI.
const DefaultStaleTime = 5 * time.Minute

// fetchTimeout bounds one shared source call.
const fetchTimeout = 30 * time.Second

type entry struct {
	value     any
	fetchedAt time.Time
}

// Cache implements Source on top of another Source.
type Cache struct {
	src       Source
	staleTime time.Duration
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration

	group   singleflight.Group
	mu      sync.Mutex
	entries map[Kind]entry
}

// NewCache wraps src. A non-positive staleTime disables freshness, so every
// lookup reaches the source (still deduplicated).
func NewCache(src Source, staleTime time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		src:       src,
		staleTime: staleTime,
		logger:    logger,
		now:       time.Now,
		timeout:   fetchTimeout,
		entries:   make(map[Kind]entry),
	}
}

// Invalidate drops cached values for the given catalogs, or all when none given.
func (c *Cache) Invalidate(kinds ...Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(kinds) == 0 {
		c.entries = make(map[Kind]entry)
		return
	}
	for _, k := range kinds {
		delete(c.entries, k)
	}
}

// Operators returns the operator catalog.
func (c *Cache) Operators(ctx context.Context) ([]types.Operator, error) {
	return fetch(ctx, c, KindOperators, c.src.Operators)
}

// ResourceTypes returns the resource type catalog.
func (c *Cache) ResourceTypes(ctx context.Context) ([]types.ResourceType, error) {
	return fetch(ctx, c, KindResourceTypes, c.src.ResourceTypes)
}

// Conditions returns the condition definitions.
func (c *Cache) Conditions(ctx context.Context) ([]types.ConditionDef, error) {
	return fetch(ctx, c, KindConditions, c.src.Conditions)
}

// Roles returns the role catalog.
func (c *Cache) Roles(ctx context.Context) ([]types.Role, error) {
	return fetch(ctx, c, KindRoles, c.src.Roles)
}

// Departments returns the department catalog.
func (c *Cache) Departments(ctx context.Context) ([]types.Department, error) {
	return fetch(ctx, c, KindDepartments, c.src.Departments)
}

// lookup returns the cached entry for kind and whether it is still fresh.
func (c *Cache) lookup(kind Kind) (entry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[kind]
	if !ok {
		return entry{}, false, false
	}
	fresh := c.staleTime > 0 && c.now().Sub(e.fetchedAt) < c.staleTime
	return e, true, fresh
}

func (c *Cache) store(kind Kind, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = entry{value: value, fetchedAt: c.now()}
}

// fetch serves kind from cache or load. Generic over the catalog element type
// because methods cannot carry type parameters.
func fetch[T any](ctx context.Context, c *Cache, kind Kind, load func(context.Context) ([]T, error)) ([]T, error) {
	prev, havePrev, fresh := c.lookup(kind)
	if fresh {
		metrics.CatalogFetches.WithLabelValues(string(kind), metrics.OutcomeCached).Inc()
		return prev.value.([]T), nil
	}

	flight := c.group.DoChan(string(kind), func() (any, error) {
		// A flight that finished between lookup and DoChan already stored it.
		if e, _, fresh := c.lookup(kind); fresh {
			return e.value, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		items, err := load(fctx)
		if err != nil {
			return nil, err
		}
		c.store(kind, items)
		return items, nil
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-flight:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		if havePrev {
			c.logger.Warn("catalog refresh failed, serving stale value",
				"catalog", kind, "age", c.now().Sub(prev.fetchedAt), "error", err)
			metrics.CatalogFetches.WithLabelValues(string(kind), metrics.OutcomeStale).Inc()
			return prev.value.([]T), nil
		}
		metrics.CatalogFetches.WithLabelValues(string(kind), metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("%w: %s: %w", types.ErrCatalogUnavailable, kind, err)
	}

	metrics.CatalogFetches.WithLabelValues(string(kind), metrics.OutcomeOK).Inc()
	return v.([]T), nil
}
