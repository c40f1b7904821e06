package docfind

import "sync"

// Realiser resolves a result record to an externally owned object, typically
// by looking up the record's identifying fields in a caller-side store. It
// is called at most once per record per Searchable; the resolved object is
// cached on the record.
type Realiser func(*SearchResult) (any, error)

// SearchResult is one materialized result record.
type SearchResult struct {
	// Rank is the 0-based position in the full result set.
	Rank int

	// Fields holds the stored field values, each an ordered list.
	Fields map[string][]string

	realiser Realiser

	once   sync.Once
	object any
	objErr error
}

// Field returns the first stored value of the named field, or "".
func (r *SearchResult) Field(name string) string {
	if vs := r.Fields[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Object resolves and returns the external object associated with this
// result. The realiser runs at most once; later calls return the cached
// object (or the cached error). Without a realiser, Object returns nil.
func (r *SearchResult) Object() (any, error) {
	if r.realiser == nil {
		return nil, nil
	}
	r.once.Do(func() {
		r.object, r.objErr = r.realiser(r)
	})
	return r.object, r.objErr
}

// searchResults is the cached, materialized form of one fetched page.
// Records keep the server-assigned rank order.
type searchResults struct {
	page  *SearchPage
	items []*SearchResult
}

func materialize(page *SearchPage, realiser Realiser) *searchResults {
	items := make([]*SearchResult, len(page.Items))
	for i, raw := range page.Items {
		items[i] = &SearchResult{
			Rank:     page.Offset + i,
			Fields:   raw,
			realiser: realiser,
		}
	}
	return &searchResults{page: page, items: items}
}

// atRank returns the record at the given absolute rank, which must lie
// inside the fetched window.
func (r *searchResults) atRank(rank int) (*SearchResult, bool) {
	i := rank - r.page.Offset
	if i < 0 || i >= len(r.items) {
		return nil, false
	}
	return r.items[i], true
}
