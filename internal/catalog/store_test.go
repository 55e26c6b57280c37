package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu      sync.Mutex
	calls   []Query
	results map[string]PageResult
	err     error
	gate    chan struct{}
	count   atomic.Int32
}

func (s *stubLister) List(ctx context.Context, q Query) (PageResult, error) {
	s.count.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, q)
	if s.err != nil {
		return PageResult{}, s.err
	}
	return s.results[q.Key()], nil
}

func TestStoreRefreshWithoutSearch(t *testing.T) {
	lister := &stubLister{results: map[string]PageResult{
		"": {Content: []Product{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}},
	}}
	store := NewStore(NewSource(lister, nil))

	var notified []Product
	store.Subscribe(func(products []Product) { notified = products })

	require.NoError(t, store.Refresh(context.Background(), Query{}))
	require.False(t, store.Searching())
	require.False(t, store.Loading())
	require.NoError(t, store.Err())
	require.Len(t, store.Rows(), 2)
	require.Equal(t, 2, store.Total())
	require.Len(t, notified, 2)
	require.Len(t, lister.calls, 1)
}

func TestStoreRefreshLoadsSearchAlongsideCatalog(t *testing.T) {
	search := Query{Criteria: Criteria{Name: "app"}}
	lister := &stubLister{results: map[string]PageResult{
		"":           {Content: []Product{{ID: 1, Name: "Apple"}, {ID: 2, Name: "Bread"}}},
		search.Key(): {Content: []Product{{ID: 1, Name: "Apple"}}},
	}}
	store := NewStore(NewSource(lister, nil))

	var notified []Product
	store.Subscribe(func(products []Product) { notified = products })

	require.NoError(t, store.Refresh(context.Background(), search))
	require.True(t, store.Searching())
	require.Len(t, store.Rows(), 1)
	require.Equal(t, 1, store.Total())
	require.Len(t, store.Products(), 2)
	require.Len(t, notified, 2)
}

func TestStoreRefreshPagedLoadsWholeCatalogForSubscribers(t *testing.T) {
	page := Query{Paged: true, Page: 1, Size: 1}
	lister := &stubLister{results: map[string]PageResult{
		"":         {Content: []Product{{ID: 1, Category: "Fruit"}, {ID: 2, Category: "Dairy"}}},
		page.Key(): {Content: []Product{{ID: 2, Category: "Dairy"}}, TotalElements: 2},
	}}
	store := NewStore(NewSource(lister, nil))

	var notified []Product
	store.Subscribe(func(products []Product) { notified = products })

	require.NoError(t, store.Refresh(context.Background(), page))
	require.False(t, store.Searching())
	require.Equal(t, []Product{{ID: 2, Category: "Dairy"}}, store.Rows())
	require.Equal(t, 2, store.Total())
	require.Len(t, store.Products(), 2)
	require.Len(t, notified, 2)
	require.Len(t, lister.calls, 2)
}

func TestStoreRefreshErrorKeepsPreviousListing(t *testing.T) {
	lister := &stubLister{results: map[string]PageResult{
		"": {Content: []Product{{ID: 1}}},
	}}
	store := NewStore(NewSource(lister, nil))
	require.NoError(t, store.Refresh(context.Background(), Query{}))

	calls := 0
	store.Subscribe(func([]Product) { calls++ })
	lister.err = errors.New("boom")
	require.Error(t, store.Refresh(context.Background(), Query{}))
	require.Error(t, store.Err())
	require.False(t, store.Loading())
	require.Len(t, store.Rows(), 1)
	require.Zero(t, calls)
}

func TestSourceCoalescesIdenticalFetches(t *testing.T) {
	lister := &stubLister{
		gate:    make(chan struct{}),
		results: map[string]PageResult{"": {Content: []Product{{ID: 1}}}},
	}
	var observed atomic.Int32
	source := NewSource(lister, func(outcome string, elapsed time.Duration) {
		assert.Equal(t, "ok", outcome)
		observed.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := source.Fetch(context.Background(), Query{})
			assert.NoError(t, err)
			assert.Len(t, res.Content, 1)
		}()
	}
	require.Eventually(t, func() bool { return lister.count.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(lister.gate)
	wg.Wait()
	require.LessOrEqual(t, lister.count.Load(), int32(2))
	require.Equal(t, lister.count.Load(), observed.Load())
}

func TestSourceFetchHonoursContext(t *testing.T) {
	lister := &stubLister{gate: make(chan struct{})}
	defer close(lister.gate)
	source := NewSource(lister, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := source.Fetch(ctx, Query{})
	require.ErrorIs(t, err, context.Canceled)
}

type ctxLister struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	sawErr  atomic.Value
}

func (l *ctxLister) List(ctx context.Context, q Query) (PageResult, error) {
	l.once.Do(func() { close(l.started) })
	<-l.release
	if err := ctx.Err(); err != nil {
		l.sawErr.Store(err)
		return PageResult{}, err
	}
	return PageResult{Content: []Product{{ID: 9}}}, nil
}

func TestSourceSharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	lister := &ctxLister{started: make(chan struct{}), release: make(chan struct{})}
	source := NewSource(lister, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := source.Fetch(firstCtx, Query{})
		firstDone <- err
	}()
	<-lister.started

	secondDone := make(chan PageResult, 1)
	go func() {
		res, err := source.Fetch(context.Background(), Query{})
		assert.NoError(t, err)
		secondDone <- res
	}()
	time.Sleep(10 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstDone, context.Canceled)
	close(lister.release)

	res := <-secondDone
	require.Len(t, res.Content, 1)
	require.Nil(t, lister.sawErr.Load())
}
