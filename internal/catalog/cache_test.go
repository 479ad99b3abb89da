package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/policykit/internal/types"
)

// countingSource wraps Static, counting operator loads and optionally failing.
type countingSource struct {
	*Static
	calls   atomic.Int32
	fail    atomic.Bool
	release chan struct{}
}

func (s *countingSource) Operators(ctx context.Context) ([]types.Operator, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail.Load() {
		return nil, errors.New("backend down")
	}
	return s.Static.Operators(ctx)
}

func newCountingSource() *countingSource {
	return &countingSource{Static: NewStatic(Snapshot{
		Operators: []types.Operator{{Name: "$eq", AppliesTo: []string{types.AppliesString}}},
	})}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(src Source, stale time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(src, stale, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = clock.Now
	return c, clock
}

func TestCache_ServesFreshValue(t *testing.T) {
	src := newCountingSource()
	c, clock := newTestCache(src, time.Minute)
	ctx := context.Background()

	ops, err := c.Operators(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	clock.Advance(30 * time.Second)
	_, err = c.Operators(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	clock.Advance(time.Minute)
	_, err = c.Operators(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCache_StaleOnError(t *testing.T) {
	src := newCountingSource()
	c, clock := newTestCache(src, time.Minute)
	ctx := context.Background()

	_, err := c.Operators(ctx)
	require.NoError(t, err)

	src.fail.Store(true)
	clock.Advance(2 * time.Minute)

	ops, err := c.Operators(ctx)
	require.NoError(t, err, "stale value should be served when refresh fails")
	assert.Equal(t, "$eq", ops[0].Name)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCache_ErrorWithoutPrevious(t *testing.T) {
	src := newCountingSource()
	src.fail.Store(true)
	c, _ := newTestCache(src, time.Minute)

	_, err := c.Operators(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCatalogUnavailable))
	assert.Contains(t, err.Error(), string(KindOperators))
}

func TestCache_Invalidate(t *testing.T) {
	src := newCountingSource()
	c, _ := newTestCache(src, time.Hour)
	ctx := context.Background()

	_, _ = c.Operators(ctx)
	c.Invalidate(KindRoles)
	_, _ = c.Operators(ctx)
	assert.Equal(t, int32(1), src.calls.Load())

	c.Invalidate(KindOperators)
	_, _ = c.Operators(ctx)
	assert.Equal(t, int32(2), src.calls.Load())

	c.Invalidate()
	_, _ = c.Operators(ctx)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestCache_ConcurrentLoadsCollapse(t *testing.T) {
	src := newCountingSource()
	src.release = make(chan struct{})
	c, _ := newTestCache(src, time.Minute)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Operators(ctx)
			errs <- err
		}()
	}

	// Wait until the single in-flight load has started, then let it finish.
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	// Late arrivals may hit the freshly stored value or join the flight;
	// none may trigger a second load.
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_CancelledCallerDoesNotFailFlight(t *testing.T) {
	src := newCountingSource()
	src.release = make(chan struct{})
	c, _ := newTestCache(src, time.Minute)

	// Caller A starts the load, then gives up.
	actx, cancel := context.WithCancel(context.Background())
	aErr := make(chan error, 1)
	go func() {
		_, err := c.Operators(actx)
		aErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Caller B joins the same flight with a live context.
	type result struct {
		ops []types.Operator
		err error
	}
	bRes := make(chan result, 1)
	go func() {
		ops, err := c.Operators(context.Background())
		bRes <- result{ops, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-aErr, context.Canceled)

	close(src.release)
	res := <-bRes
	require.NoError(t, res.err)
	assert.Equal(t, "$eq", res.ops[0].Name)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCache_OtherCatalogsPassThrough(t *testing.T) {
	src := NewStatic(Snapshot{
		ResourceTypes: []types.ResourceType{{Name: "device"}},
		Conditions:    []types.ConditionDef{{Name: "ip", DataType: types.DataTypeString}},
		Roles:         []types.Role{{Name: "admin", Level: 10}},
		Departments:   []types.Department{{Name: "Finance", Code: "FIN"}},
	})
	c, _ := newTestCache(src, time.Minute)
	ctx := context.Background()

	rts, err := c.ResourceTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "device", rts[0].Name)

	conds, err := c.Conditions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ip", conds[0].Name)

	roles, err := c.Roles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, roles[0].Level)

	depts, err := c.Departments(ctx)
	require.NoError(t, err)
	assert.Equal(t, "FIN", depts[0].Code)
}
