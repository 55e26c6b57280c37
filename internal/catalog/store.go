package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Lister fetches product listings from the inventory API.
type Lister interface {
	List(ctx context.Context, q Query) (PageResult, error)
}

// sharedFetchTimeout bounds a coalesced fetch once detached from its first caller.
const sharedFetchTimeout = 30 * time.Second

// FetchObserver receives the outcome and latency of every listing fetch.
type FetchObserver func(outcome string, elapsed time.Duration)

// Source coalesces identical in-flight listing requests.
type Source struct {
	lister   Lister
	group    singleflight.Group
	observer FetchObserver
}

// NewSource wraps a Lister. observer may be nil.
func NewSource(lister Lister, observer FetchObserver) *Source {
	return &Source{lister: lister, observer: observer}
}

// Fetch loads the listing for q, sharing the result with concurrent identical calls.
func (s *Source) Fetch(ctx context.Context, q Query) (PageResult, error) {
	resultChan := s.group.DoChan(q.Key(), func() (interface{}, error) {
		// Waiters share this call, so it must outlive the caller that started it.
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		start := time.Now()
		res, err := s.lister.List(shared, q)
		if s.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			s.observer(outcome, time.Since(start))
		}
		return res, err
	})
	select {
	case <-ctx.Done():
		return PageResult{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return PageResult{}, res.Err
		}
		page := res.Val.(PageResult)
		// Shared results must not alias between callers.
		page.Content = append([]Product(nil), page.Content...)
		return page, nil
	}
}

// Fetcher is the read side the Store depends on.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (PageResult, error)
}

// Store holds the catalog listing of one view: the whole unfiltered catalog, the
// rows shown by the table when they differ from it, and loading/error flags.
type Store struct {
	fetcher Fetcher

	mu            sync.RWMutex
	products      []Product
	productsTotal int
	view          []Product
	viewTotal     int
	separateView  bool
	searching     bool
	loading       bool
	err           error
	subscribers   []func([]Product)
}

// NewStore returns an empty store.
func NewStore(fetcher Fetcher) *Store {
	return &Store{fetcher: fetcher}
}

// Subscribe registers fn to receive the product list after every successful refresh.
func (s *Store) Subscribe(fn func([]Product)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Refresh reloads the store. The unfiltered catalog is always loaded whole, so
// categories and the report cover every product. When q narrows it by criteria
// or asks for a single page, the table rows are loaded alongside it.
func (s *Store) Refresh(ctx context.Context, q Query) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	base := Query{}
	separate := q.Key() != base.Key()

	var all, shown PageResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.fetcher.Fetch(gctx, base)
		if err != nil {
			return err
		}
		all = res
		return nil
	})
	if separate {
		g.Go(func() error {
			res, err := s.fetcher.Fetch(gctx, q)
			if err != nil {
				return err
			}
			shown = res
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	s.loading = false
	s.err = err
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.products = all.Content
	s.productsTotal = totalOf(all)
	s.searching = q.Criteria.Active()
	s.separateView = separate
	if separate {
		s.view = shown.Content
		s.viewTotal = totalOf(shown)
	} else {
		s.view = nil
		s.viewTotal = 0
	}
	subscribers := append(([]func([]Product))(nil), s.subscribers...)
	products := s.products
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(products)
	}
	return nil
}

func totalOf(res PageResult) int {
	if res.TotalElements > 0 {
		return res.TotalElements
	}
	return len(res.Content)
}

// Products returns the unfiltered listing.
func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products
}

// Rows returns what the table displays: the search result or requested page
// when one was loaded, otherwise the whole catalog.
func (s *Store) Rows() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.separateView {
		return s.view
	}
	return s.products
}

// Total is the element count behind Rows, as reported by the API.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.separateView {
		return s.viewTotal
	}
	return s.productsTotal
}

// Searching reports whether Rows holds a search result.
func (s *Store) Searching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searching
}

// Loading reports whether a refresh is in progress.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the error of the last refresh.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
