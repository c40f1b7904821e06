package docfind

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultPageSize is the number of results fetched per request when no
// explicit slice bound is set.
const DefaultPageSize = 20

// Searchable is a bound query plus paging options and a lazily populated
// result cache.
//
// Option methods (Slice, Limit, CheckAtLeast, ...) are immutable builders:
// each returns a new Searchable with its own independent options and an
// empty cache; the receiver is never mutated and caches are never shared
// between siblings.
//
// Accessors taking a context are the points where the service is contacted.
// A bounded slice is fetched in exactly one request sized to the slice;
// unbounded access fetches fixed-size pages on demand. Fetched pages are
// cached, and concurrent first access issues at most one request.
// A failed fetch is not cached: the next access retries.
type Searchable struct {
	client   *Client
	target   Target
	query    *Query
	realiser Realiser

	offset       int
	size         int // negative: no upper bound
	checkAtLeast int
	pageSize     int // 0: client default
	info         []InfoRequest

	mu      sync.Mutex
	flight  singleflight.Group
	results *searchResults
}

func newSearchable(client *Client, target Target, query *Query, realiser Realiser) *Searchable {
	return &Searchable{
		client:   client,
		target:   target,
		query:    query,
		realiser: realiser,
		size:     -1,
	}
}

// clone copies the query and options into a fresh Searchable with an empty,
// unshared cache.
func (s *Searchable) clone() *Searchable {
	ns := newSearchable(s.client, s.target, s.query, s.realiser)
	ns.offset = s.offset
	ns.size = s.size
	ns.checkAtLeast = s.checkAtLeast
	ns.pageSize = s.pageSize
	ns.info = append([]InfoRequest(nil), s.info...)
	return ns
}

// Slice bounds the result window to [start, stop), relative to any slice
// already applied. Negative arguments are treated as 0. The returned
// Searchable carries the receiver's options (including CheckAtLeast) but an
// independent cache; reading any element of a bounded slice costs exactly
// one request.
func (s *Searchable) Slice(start, stop int) *Searchable {
	start = max(start, 0)
	stop = max(stop, 0)
	ns := s.clone()
	ns.offset = s.offset + start
	if s.size >= 0 {
		ns.size = max(min(s.size, stop)-start, 0)
	} else {
		ns.size = max(stop-start, 0)
	}
	return ns
}

// From drops the first start results, leaving the window open-ended if it
// was open-ended.
func (s *Searchable) From(start int) *Searchable {
	start = max(start, 0)
	ns := s.clone()
	ns.offset = s.offset + start
	if s.size >= 0 {
		ns.size = max(s.size-start, 0)
	}
	return ns
}

// Limit bounds the window to at most n results from its current start.
func (s *Searchable) Limit(n int) *Searchable {
	n = max(n, 0)
	ns := s.clone()
	if s.size < 0 || n < s.size {
		ns.size = n
	}
	return ns
}

// CheckAtLeast asks the service to inspect at least n candidate documents
// when the search runs, tightening the match-count estimates. Use
// CheckEverything for an exact count.
func (s *Searchable) CheckAtLeast(n int) *Searchable {
	ns := s.clone()
	ns.checkAtLeast = n
	return ns
}

// PageSize sets the fetch size used by unbounded iteration and indexing.
func (s *Searchable) PageSize(n int) *Searchable {
	ns := s.clone()
	if n > 0 {
		ns.pageSize = n
	}
	return ns
}

// CalcOccur requests occurrence counts of terms in the matching documents,
// computed during the same fetch. docLimit caps how many matching documents
// are inspected (0: no cap); sampling follows the index's natural document
// order, so it is biased toward earlier-indexed documents. resultLimit caps
// the number of counts returned (0: no cap).
func (s *Searchable) CalcOccur(group, prefix string, docLimit, resultLimit int) *Searchable {
	ns := s.clone()
	ns.info = append(ns.info, InfoRequest{
		Kind: "occur", Group: group, Prefix: prefix,
		DocLimit: docLimit, ResultLimit: resultLimit,
	})
	return ns
}

// CalcCooccur requests co-occurrence counts of term pairs in the matching
// documents. The doc-order sampling bias of CalcOccur applies here too.
func (s *Searchable) CalcCooccur(group, prefix string, docLimit, resultLimit int) *Searchable {
	ns := s.clone()
	ns.info = append(ns.info, InfoRequest{
		Kind: "cooccur", Group: group, Prefix: prefix,
		DocLimit: docLimit, ResultLimit: resultLimit,
	})
	return ns
}

// WithRealiser overrides the realiser used to resolve result objects.
func (s *Searchable) WithRealiser(fn Realiser) *Searchable {
	ns := s.clone()
	ns.realiser = fn
	return ns
}

// Offset returns the 0-based rank of the first result in the window.
func (s *Searchable) Offset() int { return s.offset }

// SizeRequested returns the window's upper bound and whether one is set.
func (s *Searchable) SizeRequested() (int, bool) {
	if s.size < 0 {
		return 0, false
	}
	return s.size, true
}

func (s *Searchable) resolvedPageSize() int {
	if s.pageSize > 0 {
		return s.pageSize
	}
	if s.client != nil && s.client.opts.pageSize > 0 {
		return s.client.opts.pageSize
	}
	return DefaultPageSize
}

func (s *Searchable) cached() *searchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// ensureResults guarantees the cache holds a page covering
// [offset, offset+size) with at least the given checkAtLeast. size < 0 is
// resolved to the page size.
func (s *Searchable) ensureResults(ctx context.Context, offset, size, checkAtLeast int) error {
	if size < 0 {
		size = s.resolvedPageSize()
	}

	if res := s.cached(); res != nil {
		need := false
		switch {
		case offset < res.page.Offset:
			need = true
		case offset+size > res.page.Offset+res.page.SizeRequested:
			need = true
		case checkAtLeast == CheckEverything:
			need = res.page.TotalDocs > res.page.CheckAtLeast
		case checkAtLeast > res.page.CheckAtLeast:
			need = true
		}
		if !need {
			return nil
		}
	}

	// Always check one result past the window so the caller can tell
	// whether there are more matches.
	if checkAtLeast >= 0 && checkAtLeast <= offset+size {
		checkAtLeast = offset + size + 1
	}

	key := fmt.Sprintf("%d:%d:%d", offset, size, checkAtLeast)
	_, err, _ := s.flight.Do(key, func() (any, error) {
		page, err := s.fetch(ctx, offset, size, checkAtLeast)
		if err != nil {
			return nil, err
		}
		res := materialize(page, s.realiser)
		s.mu.Lock()
		s.results = res
		s.mu.Unlock()
		return res, nil
	})
	return err
}

func (s *Searchable) fetch(ctx context.Context, offset, size, checkAtLeast int) (*SearchPage, error) {
	req := &SearchRequest{
		Query:        s.query.Describe(),
		Offset:       offset,
		Size:         size,
		CheckAtLeast: checkAtLeast,
		Info:         s.info,
	}
	start := time.Now()
	page, err := s.client.proto.Search(ctx, s.target, req)
	s.client.opts.metrics.RecordSearch(time.Since(start), err)
	found := 0
	if page != nil {
		found = len(page.Items)
	}
	s.client.opts.logger.LogSearch(ctx, s.target, offset, size, found, err)
	return page, err
}

// ensureStats guarantees the cache holds match-count metadata, fetching the
// window (or the first page, for open-ended windows) if nothing is cached.
func (s *Searchable) ensureStats(ctx context.Context) error {
	if s.cached() != nil {
		return nil
	}
	return s.ensureResults(ctx, s.offset, s.size, s.checkAtLeast)
}

// ensureContains guarantees the cache holds the page containing rank.
func (s *Searchable) ensureContains(ctx context.Context, rank int) error {
	if rank < s.offset {
		return ErrIndexOutOfRange
	}
	if s.size >= 0 && s.offset+s.size <= rank {
		return ErrIndexOutOfRange
	}
	if res := s.cached(); res != nil && res.page.covers(rank) {
		return nil
	}
	if s.size < 0 {
		pageSize := s.resolvedPageSize()
		pageNum := (rank - s.offset) / pageSize
		return s.ensureResults(ctx, s.offset+pageNum*pageSize, pageSize, s.checkAtLeast)
	}
	return s.ensureResults(ctx, s.offset, s.size, s.checkAtLeast)
}

// At returns the i-th result of the window. It returns ErrIndexOutOfRange
// when i is negative, past a bounded window's end, or past the last match.
func (s *Searchable) At(ctx context.Context, i int) (*SearchResult, error) {
	if i < 0 {
		return nil, ErrIndexOutOfRange
	}
	if s.size >= 0 && i >= s.size {
		return nil, ErrIndexOutOfRange
	}
	rank := s.offset + i
	if err := s.ensureContains(ctx, rank); err != nil {
		return nil, err
	}
	r, ok := s.cached().atRank(rank)
	if !ok {
		return nil, ErrIndexOutOfRange
	}
	return r, nil
}

// All iterates the window's results in rank order, fetching pages as
// needed. Iteration stops silently at the end of the window or the last
// match; any other error is yielded once and ends the iteration.
func (s *Searchable) All(ctx context.Context) iter.Seq2[*SearchResult, error] {
	return func(yield func(*SearchResult, error) bool) {
		for i := 0; ; i++ {
			r, err := s.At(ctx, i)
			if errors.Is(err, ErrIndexOutOfRange) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Len returns the exact number of results in the window. This often forces
// a search with CheckAtLeast set to CheckEverything, which is worth avoiding
// when an estimate would do; see MatchesEstimated and friends.
func (s *Searchable) Len(ctx context.Context) (int, error) {
	res := s.cached()
	if res == nil || !res.page.EstimateIsExact() {
		if err := s.ensureResults(ctx, s.offset, s.size, CheckEverything); err != nil {
			return 0, err
		}
		res = s.cached()
	}
	total := res.page.MatchesEstimated
	if total < s.offset {
		return 0, nil
	}
	total -= s.offset
	if s.size >= 0 && total > s.size {
		total = s.size
	}
	return total, nil
}

// MatchesLowerBound returns a lower bound on the number of matches.
func (s *Searchable) MatchesLowerBound(ctx context.Context) (int, error) {
	if err := s.ensureStats(ctx); err != nil {
		return 0, err
	}
	return s.cached().page.MatchesLowerBound, nil
}

// MatchesEstimated returns an estimate of the number of matches.
func (s *Searchable) MatchesEstimated(ctx context.Context) (int, error) {
	if err := s.ensureStats(ctx); err != nil {
		return 0, err
	}
	return s.cached().page.MatchesEstimated, nil
}

// MatchesUpperBound returns an upper bound on the number of matches.
func (s *Searchable) MatchesUpperBound(ctx context.Context) (int, error) {
	if err := s.ensureStats(ctx); err != nil {
		return 0, err
	}
	return s.cached().page.MatchesUpperBound, nil
}

// EstimateIsExact reports whether MatchesEstimated is known to be exact.
func (s *Searchable) EstimateIsExact(ctx context.Context) (bool, error) {
	if err := s.ensureStats(ctx); err != nil {
		return false, err
	}
	return s.cached().page.EstimateIsExact(), nil
}

// TotalDocs returns the total number of documents searched.
func (s *Searchable) TotalDocs(ctx context.Context) (int, error) {
	if err := s.ensureStats(ctx); err != nil {
		return 0, err
	}
	return s.cached().page.TotalDocs, nil
}

// Info returns the statistics computed for CalcOccur/CalcCooccur requests,
// in request order.
func (s *Searchable) Info(ctx context.Context) ([]map[string]any, error) {
	if err := s.ensureStats(ctx); err != nil {
		return nil, err
	}
	return s.cached().page.Info, nil
}

// HasMore reports whether matches exist past the end of a bounded window.
// It is always false for open-ended windows. It may issue one further
// request if the cached bounds cannot answer the question.
func (s *Searchable) HasMore(ctx context.Context) (bool, error) {
	if s.size < 0 {
		return false, nil
	}
	if err := s.ensureStats(ctx); err != nil {
		return false, err
	}
	end := s.offset + s.size
	page := s.cached().page
	if page.MatchesLowerBound > end {
		return true, nil
	}
	if page.MatchesUpperBound <= end {
		return false, nil
	}
	// The lower bound is accurate up to end+1 after checking that far.
	if err := s.ensureResults(ctx, s.offset, s.size, end+1); err != nil {
		return false, err
	}
	return s.cached().page.MatchesLowerBound > end, nil
}
