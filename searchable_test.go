package docfind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProtocol is a scriptable Protocol recording every call it receives.
type fakeProtocol struct {
	mu       sync.Mutex
	searches []SearchRequest

	// searchFn produces each page; when nil, pageForTotal(100) is used.
	searchFn    func(call int, req *SearchRequest) (*SearchPage, error)
	searchDelay time.Duration

	checkpointID string
	statuses     []*CheckpointStatus
	polls        int
}

var _ Protocol = (*fakeProtocol)(nil)

func (f *fakeProtocol) Search(ctx context.Context, target Target, req *SearchRequest) (*SearchPage, error) {
	f.mu.Lock()
	call := len(f.searches)
	f.searches = append(f.searches, *req)
	fn := f.searchFn
	f.mu.Unlock()

	if f.searchDelay > 0 {
		time.Sleep(f.searchDelay)
	}
	if fn == nil {
		return pageForTotal(100, req), nil
	}
	return fn(call, req)
}

func (f *fakeProtocol) AddDocument(ctx context.Context, target Target, docType, docID string, doc map[string]any) error {
	return nil
}

func (f *fakeProtocol) DeleteDocument(ctx context.Context, target Target, docType, docID string) error {
	return nil
}

func (f *fakeProtocol) Checkpoint(ctx context.Context, collection string, commit bool) (string, error) {
	if f.checkpointID == "" {
		return "check-1", nil
	}
	return f.checkpointID, nil
}

func (f *fakeProtocol) CheckpointStatus(ctx context.Context, collection, checkID string) (*CheckpointStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return &CheckpointStatus{Reached: true}, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeProtocol) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeProtocol) searchAt(i int) SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches[i]
}

// pageForTotal builds an exact-count page over total synthetic documents,
// honouring the request's window.
func pageForTotal(total int, req *SearchRequest) *SearchPage {
	page := &SearchPage{
		Offset:            req.Offset,
		SizeRequested:     req.Size,
		CheckAtLeast:      total,
		MatchesLowerBound: total,
		MatchesEstimated:  total,
		MatchesUpperBound: total,
		TotalDocs:         total,
	}
	for rank := req.Offset; rank < total && rank < req.Offset+req.Size; rank++ {
		page.Items = append(page.Items, PageItem{"id": {fmt.Sprintf("%d", rank)}})
	}
	return page
}

func findAll(t *testing.T, proto Protocol, optFns ...Option) *Searchable {
	t.Helper()
	client := New(proto, optFns...)
	s, err := client.Collection("test").Find(All())
	require.NoError(t, err)
	return s
}

func TestSearchableSliceFetchesOnce(t *testing.T) {
	fake := &fakeProtocol{}
	s := findAll(t, fake).Slice(0, 10)
	ctx := context.Background()

	var ranks []int
	for r, err := range s.All(ctx) {
		require.NoError(t, err)
		ranks = append(ranks, r.Rank)
	}
	assert.Len(t, ranks, 10)
	assert.Equal(t, 0, ranks[0])
	assert.Equal(t, 9, ranks[9])

	require.Equal(t, 1, fake.searchCount())
	req := fake.searchAt(0)
	assert.Equal(t, 0, req.Offset)
	assert.Equal(t, 10, req.Size)
	// One past the window, so HasMore can be answered from this page.
	assert.Equal(t, 11, req.CheckAtLeast)
}

func TestSearchableUnboundedPaging(t *testing.T) {
	ctx := context.Background()

	t.Run("direct index fetches only its page", func(t *testing.T) {
		fake := &fakeProtocol{}
		s := findAll(t, fake)

		r, err := s.At(ctx, 45)
		require.NoError(t, err)
		assert.Equal(t, 45, r.Rank)

		require.Equal(t, 1, fake.searchCount())
		req := fake.searchAt(0)
		assert.Equal(t, 40, req.Offset)
		assert.Equal(t, 20, req.Size)
	})

	t.Run("iteration fetches consecutive pages", func(t *testing.T) {
		fake := &fakeProtocol{}
		s := findAll(t, fake)

		for i := 0; i <= 45; i++ {
			_, err := s.At(ctx, i)
			require.NoError(t, err)
		}

		require.Equal(t, 3, fake.searchCount())
		assert.Equal(t, 0, fake.searchAt(0).Offset)
		assert.Equal(t, 20, fake.searchAt(1).Offset)
		assert.Equal(t, 40, fake.searchAt(2).Offset)
	})

	t.Run("page size is configurable", func(t *testing.T) {
		fake := &fakeProtocol{}
		s := findAll(t, fake).PageSize(50)

		_, err := s.At(ctx, 45)
		require.NoError(t, err)

		require.Equal(t, 1, fake.searchCount())
		assert.Equal(t, 0, fake.searchAt(0).Offset)
		assert.Equal(t, 50, fake.searchAt(0).Size)
	})
}

func TestSearchableSliceComposition(t *testing.T) {
	s := findAll(t, &fakeProtocol{})

	t.Run("nested slices compose", func(t *testing.T) {
		ns := s.Slice(10, 50).Slice(5, 20)
		assert.Equal(t, 15, ns.Offset())
		size, ok := ns.SizeRequested()
		require.True(t, ok)
		assert.Equal(t, 15, size)
	})

	t.Run("inner slice cannot exceed the outer", func(t *testing.T) {
		ns := s.Slice(0, 10).Slice(5, 100)
		assert.Equal(t, 5, ns.Offset())
		size, _ := ns.SizeRequested()
		assert.Equal(t, 5, size)
	})

	t.Run("from and limit", func(t *testing.T) {
		ns := s.From(30).Limit(5)
		assert.Equal(t, 30, ns.Offset())
		size, ok := ns.SizeRequested()
		require.True(t, ok)
		assert.Equal(t, 5, size)
	})

	t.Run("negative bounds clamp to zero", func(t *testing.T) {
		ns := s.Slice(-5, -1)
		assert.Equal(t, 0, ns.Offset())
		size, _ := ns.SizeRequested()
		assert.Equal(t, 0, size)
	})

	t.Run("open windows stay open", func(t *testing.T) {
		ns := s.From(10)
		_, ok := ns.SizeRequested()
		assert.False(t, ok)
	})
}

func TestSearchableLenForcesExactCount(t *testing.T) {
	fake := &fakeProtocol{
		searchFn: func(call int, req *SearchRequest) (*SearchPage, error) {
			if req.CheckAtLeast == CheckEverything {
				return pageForTotal(42, req), nil
			}
			page := pageForTotal(42, req)
			page.MatchesLowerBound = 30
			page.MatchesEstimated = 45
			page.MatchesUpperBound = 60
			return page, nil
		},
	}
	s := findAll(t, fake)
	ctx := context.Background()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	require.Equal(t, 1, fake.searchCount())
	assert.Equal(t, CheckEverything, fake.searchAt(0).CheckAtLeast)

	t.Run("window clamps the count", func(t *testing.T) {
		n, err := findAll(t, fake).Slice(10, 20).Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, n)

		n, err = findAll(t, fake).From(40).Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = findAll(t, fake).From(50).Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestSearchableHasMore(t *testing.T) {
	ctx := context.Background()

	t.Run("open windows never have more", func(t *testing.T) {
		fake := &fakeProtocol{}
		more, err := findAll(t, fake).HasMore(ctx)
		require.NoError(t, err)
		assert.False(t, more)
		assert.Equal(t, 0, fake.searchCount())
	})

	t.Run("bounds answer without a second request", func(t *testing.T) {
		fake := &fakeProtocol{} // 100 exact matches
		more, err := findAll(t, fake).Slice(0, 10).HasMore(ctx)
		require.NoError(t, err)
		assert.True(t, more)
		assert.Equal(t, 1, fake.searchCount())

		fake = &fakeProtocol{
			searchFn: func(call int, req *SearchRequest) (*SearchPage, error) {
				return pageForTotal(5, req), nil
			},
		}
		more, err = findAll(t, fake).Slice(0, 10).HasMore(ctx)
		require.NoError(t, err)
		assert.False(t, more)
		assert.Equal(t, 1, fake.searchCount())
	})

	t.Run("loose bounds trigger one further request", func(t *testing.T) {
		// The first page inspected fewer candidates than requested, so
		// its loose bounds cannot place the end of the window.
		fake := &fakeProtocol{
			searchFn: func(call int, req *SearchRequest) (*SearchPage, error) {
				page := pageForTotal(100, req)
				page.MatchesEstimated = 20
				page.MatchesUpperBound = 50
				if call == 0 {
					page.CheckAtLeast = 5
					page.MatchesLowerBound = 5
				} else {
					page.CheckAtLeast = req.CheckAtLeast
					page.MatchesLowerBound = 11
				}
				return page, nil
			},
		}
		more, err := findAll(t, fake).Slice(0, 10).HasMore(ctx)
		require.NoError(t, err)
		assert.True(t, more)
		require.Equal(t, 2, fake.searchCount())
		assert.Equal(t, 11, fake.searchAt(1).CheckAtLeast)
	})
}

func TestSearchableConcurrentAccessFetchesOnce(t *testing.T) {
	fake := &fakeProtocol{searchDelay: 50 * time.Millisecond}
	s := findAll(t, fake).Slice(0, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.At(ctx, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.searchCount())
}

func TestSearchableFailedFetchIsNotCached(t *testing.T) {
	boom := NewServiceError("search", errors.New("boom"))
	fake := &fakeProtocol{
		searchFn: func(call int, req *SearchRequest) (*SearchPage, error) {
			if call == 0 {
				return nil, boom
			}
			return pageForTotal(100, req), nil
		},
	}
	s := findAll(t, fake).Slice(0, 10)
	ctx := context.Background()

	_, err := s.At(ctx, 0)
	require.ErrorIs(t, err, boom)

	r, err := s.At(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Rank)
	assert.Equal(t, 2, fake.searchCount())
}

func TestSearchableAtOutOfRange(t *testing.T) {
	ctx := context.Background()

	t.Run("negative index", func(t *testing.T) {
		s := findAll(t, &fakeProtocol{})
		_, err := s.At(ctx, -1)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})

	t.Run("past a bounded window", func(t *testing.T) {
		fake := &fakeProtocol{}
		_, err := findAll(t, fake).Slice(0, 10).At(ctx, 10)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Equal(t, 0, fake.searchCount())
	})

	t.Run("past the last match", func(t *testing.T) {
		fake := &fakeProtocol{
			searchFn: func(call int, req *SearchRequest) (*SearchPage, error) {
				return pageForTotal(3, req), nil
			},
		}
		_, err := findAll(t, fake).At(ctx, 5)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})
}

func TestSearchableSiblingsDoNotShareCaches(t *testing.T) {
	fake := &fakeProtocol{}
	s := findAll(t, fake)
	ctx := context.Background()

	a := s.Slice(0, 5)
	b := s.Slice(0, 5)

	_, err := a.At(ctx, 0)
	require.NoError(t, err)
	_, err = b.At(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.searchCount())
}

func TestSearchableFindRequiresTarget(t *testing.T) {
	t.Run("unbound queries bind to the scope", func(t *testing.T) {
		client := New(&fakeProtocol{})
		s, err := client.Collection("books").Find(Field("f").Equals("a"))
		require.NoError(t, err)
		assert.Equal(t, CollectionTarget("books"), s.target)
	})

	t.Run("foreign targets conflict", func(t *testing.T) {
		client := New(&fakeProtocol{})
		foreign, err := Field("f").Equals("a").bind(CollectionTarget("films"))
		require.NoError(t, err)
		_, err = client.Collection("books").Find(foreign)
		assert.ErrorIs(t, err, ErrTargetConflict)
	})

	t.Run("client find requires a resolved target", func(t *testing.T) {
		client := New(&fakeProtocol{})
		_, err := client.Find(Field("f").Equals("a"))
		assert.ErrorIs(t, err, ErrTargetNotSet)
	})

	t.Run("client find uses the query's own target", func(t *testing.T) {
		fake := &fakeProtocol{}
		client := New(fake)
		q := client.Collection("books").Field("f").Equals("a")
		s, err := client.Find(q)
		require.NoError(t, err)
		assert.Equal(t, CollectionTarget("books"), s.target)

		_, err = s.At(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 1, fake.searchCount())
	})
}

func TestSearchableInfoRequests(t *testing.T) {
	fake := &fakeProtocol{}
	s := findAll(t, fake).CalcOccur("text", "h", 100, 10)
	ctx := context.Background()

	_, err := s.Info(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, fake.searchCount())
	info := fake.searchAt(0).Info
	require.Len(t, info, 1)
	assert.Equal(t, InfoRequest{
		Kind: "occur", Group: "text", Prefix: "h", DocLimit: 100, ResultLimit: 10,
	}, info[0])
}
