package inmem

import (
	"context"
	"sort"
	"strings"

	"github.com/docfind/docfind"
)

// defaultSearchSize is the page size used when a request leaves the size to
// the service.
const defaultSearchSize = 10

// Search implements docfind.Protocol. Evaluation is exhaustive, so the
// match-count bounds returned are always exact regardless of the request's
// CheckAtLeast.
func (p *Protocol) Search(ctx context.Context, target docfind.Target, req *docfind.SearchRequest) (*docfind.SearchPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, docfind.NewServiceError("search", err)
	}

	p.mu.Lock()
	c := p.coll(target.Collection(), false)
	var idx *index
	if c != nil {
		idx = c.idx
	} else {
		idx = buildIndex(nil)
	}
	p.mu.Unlock()

	set, err := idx.eval(req.Query)
	if err != nil {
		return nil, err
	}
	if dt := target.DocType(); dt != "" {
		if bm, ok := idx.exact[fieldType][dt]; ok {
			set.bm.And(bm)
		} else {
			set = emptySet()
		}
	}

	ranked := rankMatches(set)
	total := len(ranked)

	size := req.Size
	if size < 0 {
		size = defaultSearchSize
	}
	offset := max(req.Offset, 0)

	var items []docfind.PageItem
	for i := offset; i < total && i < offset+size; i++ {
		items = append(items, pageItem(idx.docs[ranked[i]]))
	}

	page := &docfind.SearchPage{
		Items:             items,
		Offset:            offset,
		SizeRequested:     size,
		CheckAtLeast:      idx.liveCount,
		MatchesLowerBound: total,
		MatchesEstimated:  total,
		MatchesUpperBound: total,
		TotalDocs:         idx.liveCount,
	}

	for _, info := range req.Info {
		computed, err := idx.computeInfo(ranked, info)
		if err != nil {
			return nil, err
		}
		page.Info = append(page.Info, computed)
	}
	return page, nil
}

// rankMatches orders matching documents by weight, highest first, breaking
// ties by doc order.
func rankMatches(set matchSet) []uint32 {
	ranked := set.bm.ToArray()
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := set.weight(ranked[i]), set.weight(ranked[j])
		if wi != wj {
			return wi > wj
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

func pageItem(d *document) docfind.PageItem {
	item := make(docfind.PageItem, len(d.values))
	for field, vals := range d.values {
		item[field] = append([]string(nil), vals...)
	}
	return item
}

// computeInfo calculates occur or cooccur statistics over the matches, in
// doc order, stopping after DocLimit documents.
func (idx *index) computeInfo(ranked []uint32, info docfind.InfoRequest) (map[string]any, error) {
	if info.Kind != "occur" && info.Kind != "cooccur" {
		return nil, queryErrorf("unknown info kind %q", info.Kind)
	}

	// Sampling follows doc order, not rank order, so the sample is biased
	// toward earlier-indexed documents but independent of weighting.
	docs := append([]uint32(nil), ranked...)
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	if info.DocLimit > 0 && len(docs) > info.DocLimit {
		docs = docs[:info.DocLimit]
	}

	counts := make(map[string]int)
	for _, doc := range docs {
		terms := idx.docTerms(doc, info.Group, info.Prefix)
		if info.Kind == "occur" {
			for _, t := range terms {
				counts[t]++
			}
			continue
		}
		// Count each unordered pair of distinct terms once per document.
		uniq := uniqueSorted(terms)
		for i := 0; i < len(uniq); i++ {
			for j := i + 1; j < len(uniq); j++ {
				counts[uniq[i]+"\x00"+uniq[j]]++
			}
		}
	}

	entries := sortedCounts(counts, info.ResultLimit)
	rows := make([]any, len(entries))
	for i, e := range entries {
		if info.Kind == "occur" {
			rows[i] = []any{e.key, e.count}
		} else {
			pair := strings.SplitN(e.key, "\x00", 2)
			rows[i] = []any{pair[0], pair[1], e.count}
		}
	}
	return map[string]any{
		"type":       info.Kind,
		"group":      info.Group,
		"prefix":     info.Prefix,
		"docs_seen":  len(docs),
		"terms_seen": len(counts),
		"counts":     rows,
	}, nil
}

// docTerms returns the tokens of one document in the given group (or all
// groups), filtered by prefix.
func (idx *index) docTerms(doc uint32, group, prefix string) []string {
	d := idx.docs[doc]
	var out []string
	collect := func(field string) {
		for _, seq := range d.tokens[field] {
			for _, tok := range seq {
				if prefix == "" || strings.HasPrefix(tok, prefix) {
					out = append(out, tok)
				}
			}
		}
	}
	if group != "" {
		collect(group)
		return out
	}
	for field := range d.tokens {
		collect(field)
	}
	return out
}

func uniqueSorted(terms []string) []string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, t := range sorted {
		if i == 0 || sorted[i-1] != t {
			out = append(out, t)
		}
	}
	return out
}

type countEntry struct {
	key   string
	count int
}

// sortedCounts orders counts highest first, ties by key, truncated to limit.
func sortedCounts(counts map[string]int, limit int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for k, n := range counts {
		entries = append(entries, countEntry{key: k, count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
