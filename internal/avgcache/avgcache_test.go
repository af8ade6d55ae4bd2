package avgcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/business-ratings/internal/domain"
)

type countingLoader struct {
	calls atomic.Int32
	avg   float64
	err   error
}

func (l *countingLoader) load(_ context.Context, businessID int64) (domain.RatingAggregate, error) {
	l.calls.Add(1)
	if l.err != nil {
		return domain.RatingAggregate{}, l.err
	}
	return domain.RatingAggregate{BusinessID: businessID, Average: l.avg, Count: 2}, nil
}

func TestCacheHitsAfterFirstLoad(t *testing.T) {
	c := New(time.Minute, 0)
	loader := &countingLoader{avg: 3.5}

	for i := 0; i < 3; i++ {
		agg, err := c.Get(context.Background(), 1, loader.load)
		require.NoError(t, err)
		assert.Equal(t, 3.5, agg.Average)
		assert.Equal(t, int64(1), agg.BusinessID)
	}
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCacheInvalidate(t *testing.T) {
	c := New(time.Minute, 0)
	loader := &countingLoader{avg: 4}

	_, err := c.Get(context.Background(), 1, loader.load)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), 2, loader.load)
	require.NoError(t, err)

	c.Invalidate(1, 99)
	assert.Equal(t, 1, c.Len())

	loader.avg = 2
	agg, err := c.Get(context.Background(), 1, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 2.0, agg.Average)
	assert.Equal(t, int32(3), loader.calls.Load())
}

func TestCacheExpires(t *testing.T) {
	c := New(20*time.Millisecond, 0)
	loader := &countingLoader{avg: 1}

	_, err := c.Get(context.Background(), 5, loader.load)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.Get(context.Background(), 5, loader.load)
	require.NoError(t, err)

	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	c := New(time.Minute, 0)
	boom := errors.New("boom")
	loader := &countingLoader{err: boom}

	_, err := c.Get(context.Background(), 1, loader.load)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestDisabledCachePassesThrough(t *testing.T) {
	c := New(0, 0)
	require.Nil(t, c)
	loader := &countingLoader{avg: 5}

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), 1, loader.load)
		require.NoError(t, err)
	}
	c.Invalidate(1)
	assert.Equal(t, int32(2), loader.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	c := New(time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestInvalidateDuringLoadIsNotCached(t *testing.T) {
	c := New(time.Minute, 0)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(_ context.Context, businessID int64) (domain.RatingAggregate, error) {
		close(started)
		<-release
		return domain.RatingAggregate{BusinessID: businessID, Average: 3, Count: 1}, nil
	}

	done := make(chan domain.RatingAggregate)
	go func() {
		agg, err := c.Get(context.Background(), 1, slow)
		assert.NoError(t, err)
		done <- agg
	}()

	<-started
	// A write for business 1 commits while the first load is still running.
	c.Invalidate(1)
	close(release)
	stale := <-done
	assert.Equal(t, int64(1), stale.Count)

	fresh := func(_ context.Context, businessID int64) (domain.RatingAggregate, error) {
		return domain.RatingAggregate{BusinessID: businessID, Average: 3.5, Count: 2}, nil
	}
	agg, err := c.Get(context.Background(), 1, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.Count)
	assert.Equal(t, 3.5, agg.Average)
}

func TestCacheCapacityBoundsEntries(t *testing.T) {
	c := New(time.Minute, 3)
	loader := &countingLoader{avg: 4}

	for id := int64(1); id <= 10; id++ {
		_, err := c.Get(context.Background(), id, loader.load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int32(10), loader.calls.Load())
}
