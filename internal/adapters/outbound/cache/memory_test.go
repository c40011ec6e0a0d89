package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"menu360/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var itemsKey = domain.NewQueryKey(domain.KindMenuItems, "r1")

func item(id, name string) domain.MenuItem {
	return domain.MenuItem{ID: id, RestaurantID: "r1", Name: name, Price: 100}
}

func TestGetNeverPopulated(t *testing.T) {
	c := NewMemoryCache(0)
	got, ok := c.Get(context.Background(), itemsKey)
	assert.False(t, ok)
	assert.Nil(t, got)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})
	c.Set(ctx, itemsKey, []domain.Record{item("b", "B"), item("c", "C")})

	got, ok := c.Get(ctx, itemsKey)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].RecordID())
	assert.Equal(t, uint64(2), c.Version(ctx, itemsKey))
}

func TestPatchInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})

	c.PatchInsert(ctx, itemsKey, item("b", "B"))
	once, _ := c.Get(ctx, itemsKey)
	c.PatchInsert(ctx, itemsKey, item("b", "B"))
	twice, _ := c.Get(ctx, itemsKey)

	assert.Len(t, once, 2)
	assert.Len(t, twice, len(once))
}

func TestPatchUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A"), item("b", "B")})

	c.PatchUpdate(ctx, itemsKey, item("a", "A2"))
	c.PatchUpdate(ctx, itemsKey, item("zz", "missing"))
	got, _ := c.Get(ctx, itemsKey)
	require.Len(t, got, 2)
	assert.Equal(t, "A2", got[0].(domain.MenuItem).Name)

	c.PatchDelete(ctx, itemsKey, "a")
	c.PatchDelete(ctx, itemsKey, "a")
	got, _ = c.Get(ctx, itemsKey)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].RecordID())
}

func TestPatchOnAbsentKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.PatchInsert(ctx, itemsKey, item("a", "A"))

	_, ok := c.Get(ctx, itemsKey)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), c.Version(ctx, itemsKey))
}

func TestPatchDoesNotMutatePreviousReads(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A"), item("b", "B")})

	before, _ := c.Get(ctx, itemsKey)
	c.PatchUpdate(ctx, itemsKey, item("a", "changed"))

	assert.Equal(t, "A", before[0].(domain.MenuItem).Name)
}

func TestInvalidateKeepsValueAndForcesRefetch(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})
	c.Invalidate(ctx, itemsKey)

	got, ok := c.Get(ctx, itemsKey)
	require.True(t, ok)
	assert.Len(t, got, 1)
	assert.Equal(t, []domain.QueryKey{itemsKey}, c.StaleKeys(ctx))

	calls := 0
	got, err := c.Fetch(ctx, itemsKey, func(context.Context) ([]domain.Record, error) {
		calls++
		return []domain.Record{item("x", "X")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "x", got[0].RecordID())
	assert.Empty(t, c.StaleKeys(ctx))
}

func TestFetchUsesFreshValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})

	got, err := c.Fetch(ctx, itemsKey, func(context.Context) ([]domain.Record, error) {
		t.Fatal("loader must not run for a fresh entry")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFetchAfterStaleTime(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})

	now = now.Add(2 * time.Minute)
	assert.Equal(t, []domain.QueryKey{itemsKey}, c.StaleKeys(ctx))

	got, err := c.Fetch(ctx, itemsKey, func(context.Context) ([]domain.Record, error) {
		return []domain.Record{item("b", "B")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].RecordID())
}

func TestFetchErrorKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})
	c.Invalidate(ctx, itemsKey)

	_, err := c.Fetch(ctx, itemsKey, func(context.Context) ([]domain.Record, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	got, ok := c.Get(ctx, itemsKey)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestFetchDeduplicatesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]domain.Record, error) {
		calls.Add(1)
		<-release
		return []domain.Record{item("a", "A")}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Fetch(ctx, itemsKey, load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestApplyInstallsChangedKeysOnly(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	other := domain.NewQueryKey(domain.KindCategories, "r1")
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})
	c.Set(ctx, other, []domain.Record{domain.Category{ID: "c1", RestaurantID: "r1", Name: "Mains"}})
	otherVersion := c.Version(ctx, other)

	changed := c.Apply(ctx, func(s domain.Snapshot) domain.Snapshot {
		s[itemsKey], _ = domain.InsertRecord(s[itemsKey], item("b", "B"))
		return s
	})

	assert.Equal(t, []domain.QueryKey{itemsKey}, changed)
	assert.Equal(t, otherVersion, c.Version(ctx, other))
	got, _ := c.Get(ctx, itemsKey)
	assert.Len(t, got, 2)
}

func TestClearEvictsAndBumpsVersions(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, itemsKey, []domain.Record{item("a", "A")})
	v := c.Version(ctx, itemsKey)

	c.Clear(ctx)

	assert.Equal(t, 0, c.Len(ctx))
	assert.Greater(t, c.Version(ctx, itemsKey), v)
}

func TestHitRatio(t *testing.T) {
	s := NewStats()
	assert.Zero(t, s.HitRatio())
	s.IncHit()
	s.IncHit()
	s.IncHit()
	s.IncMiss()
	assert.InDelta(t, 0.75, s.HitRatio(), 1e-9)
}
