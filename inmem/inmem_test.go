package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docfind/docfind"
)

func testTarget() docfind.Target { return docfind.CollectionTarget("c") }

// addAndCommit loads documents keyed by id and applies them.
func addAndCommit(t *testing.T, p *Protocol, docs map[string]map[string]any) {
	t.Helper()
	ctx := context.Background()
	for id, doc := range docs {
		require.NoError(t, p.AddDocument(ctx, testTarget(), "doc", id, doc))
	}
	_, err := p.Checkpoint(ctx, "c", true)
	require.NoError(t, err)
}

func search(t *testing.T, p *Protocol, query map[string]any) []string {
	t.Helper()
	page, err := p.Search(context.Background(), testTarget(), &docfind.SearchRequest{
		Query: query,
		Size:  100,
	})
	require.NoError(t, err)
	ids := make([]string, len(page.Items))
	for i, item := range page.Items {
		ids[i] = item["id"][0]
	}
	return ids
}

func fieldQuery(name string, op string, value any) map[string]any {
	return map[string]any{"field": []any{name, op, value}}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, tokenize("Hello, WORLD!"))
	assert.Equal(t, []string{"a1", "b2"}, tokenize("a1-b2"))
	assert.Empty(t, tokenize("  ...  "))
}

func TestSearchExactAndText(t *testing.T) {
	p := New()
	addAndCommit(t, p, map[string]map[string]any{
		"1": {"text": "the quick brown fox", "tag": "A tag"},
		"2": {"text": "the slow brown bear", "tag": "other"},
	})

	t.Run("is matches whole stored values", func(t *testing.T) {
		assert.Equal(t, []string{"1"}, search(t, p, fieldQuery("tag", "is", []any{"A tag"})))
		assert.Empty(t, search(t, p, fieldQuery("tag", "is", []any{"tag"})))
	})

	t.Run("text and", func(t *testing.T) {
		q := fieldQuery("text", "text", map[string]any{"text": "brown the", "op": "and"})
		assert.ElementsMatch(t, []string{"1", "2"}, search(t, p, q))
	})

	t.Run("text or", func(t *testing.T) {
		q := fieldQuery("text", "text", map[string]any{"text": "fox bear", "op": "or"})
		assert.ElementsMatch(t, []string{"1", "2"}, search(t, p, q))
	})

	t.Run("phrase requires adjacency", func(t *testing.T) {
		q := fieldQuery("text", "text", map[string]any{"text": "quick brown", "op": "phrase"})
		assert.Equal(t, []string{"1"}, search(t, p, q))

		q = fieldQuery("text", "text", map[string]any{"text": "quick fox", "op": "phrase"})
		assert.Empty(t, search(t, p, q))
	})

	t.Run("near allows a window", func(t *testing.T) {
		q := fieldQuery("text", "text", map[string]any{"text": "quick fox", "op": "near", "window": 3})
		assert.Equal(t, []string{"1"}, search(t, p, q))

		q = fieldQuery("text", "text", map[string]any{"text": "the fox", "op": "near", "window": 2})
		assert.Empty(t, search(t, p, q))
	})

	t.Run("any field searches everything", func(t *testing.T) {
		q := fieldQuery("", "text", map[string]any{"text": "fox", "op": "and"})
		q["field"].([]any)[0] = nil
		assert.Equal(t, []string{"1"}, search(t, p, q))
	})
}

func TestSearchRange(t *testing.T) {
	p := New()
	addAndCommit(t, p, map[string]map[string]any{
		"1": {"price": 5},
		"2": {"price": 10},
		"3": {"price": 15},
	})

	assert.ElementsMatch(t, []string{"1", "2"}, search(t, p, fieldQuery("price", "range", []any{5, 10})))
	assert.Empty(t, search(t, p, fieldQuery("price", "range", []any{100, 200})))

	_, err := p.Search(context.Background(), testTarget(), &docfind.SearchRequest{
		Query: fieldQuery("price", "range", []any{"low", "high"}),
		Size:  10,
	})
	var qerr *docfind.QueryError
	require.ErrorAs(t, err, &qerr)
}

func TestSearchMeta(t *testing.T) {
	p := New()
	addAndCommit(t, p, map[string]map[string]any{
		"1": {"tag": "x"},
		"2": {"tag": ""},
		"3": {"other": "y"},
	})

	meta := func(op, field string) map[string]any {
		var name any
		if field != "" {
			name = field
		}
		return map[string]any{"meta": []any{op, []any{name}}}
	}

	assert.ElementsMatch(t, []string{"1", "2"}, search(t, p, meta("exists", "tag")))
	assert.Equal(t, []string{"1"}, search(t, p, meta("nonempty", "tag")))
	assert.Equal(t, []string{"2"}, search(t, p, meta("empty", "tag")))
	assert.Empty(t, search(t, p, meta("error", "tag")))
}

func TestSearchCombinations(t *testing.T) {
	p := New()
	addAndCommit(t, p, map[string]map[string]any{
		"1": {"a": "x"},
		"2": {"b": "x"},
		"3": {"a": "x", "b": "x"},
	})

	qa := fieldQuery("a", "is", []any{"x"})
	qb := fieldQuery("b", "is", []any{"x"})

	assert.ElementsMatch(t, []string{"3"}, search(t, p, map[string]any{"and": []any{qa, qb}}))
	assert.ElementsMatch(t, []string{"1", "2", "3"}, search(t, p, map[string]any{"or": []any{qa, qb}}))
	assert.ElementsMatch(t, []string{"1", "2"}, search(t, p, map[string]any{"xor": []any{qa, qb}}))
	assert.ElementsMatch(t, []string{"1"}, search(t, p, map[string]any{"and_not": []any{qa, qb}}))
	assert.ElementsMatch(t, []string{"1", "3"}, search(t, p, map[string]any{"filter": []any{qa, fieldQuery("a", "is", []any{"x"})}}))
	assert.ElementsMatch(t, []string{"1", "3"}, search(t, p, map[string]any{"and_maybe": []any{qa, qb}}))

	t.Run("or sums the weights of matching branches", func(t *testing.T) {
		// "3" matches both branches, so it outranks the single-branch
		// matches regardless of insertion order.
		ids := search(t, p, map[string]any{"or": []any{qa, qb}})
		require.Len(t, ids, 3)
		assert.Equal(t, "3", ids[0])
	})

	t.Run("matchall and matchnothing", func(t *testing.T) {
		assert.Len(t, search(t, p, map[string]any{"matchall": true}), 3)
		assert.Empty(t, search(t, p, map[string]any{"matchnothing": true}))
	})

	t.Run("unknown constructs are query errors", func(t *testing.T) {
		_, err := p.Search(context.Background(), testTarget(), &docfind.SearchRequest{
			Query: map[string]any{"frobnicate": true},
			Size:  10,
		})
		var qerr *docfind.QueryError
		require.ErrorAs(t, err, &qerr)
	})
}

func TestSearchPaging(t *testing.T) {
	p := New()
	docs := make(map[string]map[string]any)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		docs[id] = map[string]any{"tag": "x"}
	}
	addAndCommit(t, p, docs)
	ctx := context.Background()

	page, err := p.Search(ctx, testTarget(), &docfind.SearchRequest{
		Query:  map[string]any{"matchall": true},
		Offset: 1,
		Size:   2,
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Offset)
	assert.Equal(t, 2, page.SizeRequested)
	assert.Equal(t, 5, page.MatchesLowerBound)
	assert.Equal(t, 5, page.MatchesUpperBound)
	assert.Equal(t, 5, page.TotalDocs)
	assert.True(t, page.EstimateIsExact())

	t.Run("negative size falls back to the service default", func(t *testing.T) {
		page, err := p.Search(ctx, testTarget(), &docfind.SearchRequest{
			Query: map[string]any{"matchall": true},
			Size:  -1,
		})
		require.NoError(t, err)
		assert.Equal(t, defaultSearchSize, page.SizeRequested)
		assert.Len(t, page.Items, 5)
	})

	t.Run("unknown collections are empty", func(t *testing.T) {
		page, err := p.Search(ctx, docfind.CollectionTarget("nowhere"), &docfind.SearchRequest{
			Query: map[string]any{"matchall": true},
			Size:  10,
		})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 0, page.TotalDocs)
	})
}

func TestMutationSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("rewriting a document keeps its position", func(t *testing.T) {
		p := New()
		addAndCommit(t, p, map[string]map[string]any{"1": {"tag": "old"}})
		require.NoError(t, p.AddDocument(ctx, testTarget(), "doc", "1", map[string]any{"tag": "new"}))
		_, err := p.Checkpoint(ctx, "c", true)
		require.NoError(t, err)

		assert.Empty(t, search(t, p, fieldQuery("tag", "is", []any{"old"})))
		assert.Equal(t, []string{"1"}, search(t, p, fieldQuery("tag", "is", []any{"new"})))
	})

	t.Run("deleting an unknown document reports an error detail", func(t *testing.T) {
		p := New()
		require.NoError(t, p.DeleteDocument(ctx, testTarget(), "doc", "missing"))
		id, err := p.Checkpoint(ctx, "c", true)
		require.NoError(t, err)

		status, err := p.CheckpointStatus(ctx, "c", id)
		require.NoError(t, err)
		assert.True(t, status.Reached)
		assert.Equal(t, 1, status.TotalErrors)
		require.Len(t, status.Errors, 1)
		assert.Equal(t, "missing", status.Errors[0].DocID)
	})

	t.Run("reserved fields are rejected at apply time", func(t *testing.T) {
		p := New()
		require.NoError(t, p.AddDocument(ctx, testTarget(), "doc", "1", map[string]any{"type": "sneaky"}))
		id, err := p.Checkpoint(ctx, "c", true)
		require.NoError(t, err)

		status, err := p.CheckpointStatus(ctx, "c", id)
		require.NoError(t, err)
		assert.Equal(t, 1, status.TotalErrors)
	})

	t.Run("multi-valued fields are flattened", func(t *testing.T) {
		p := New()
		addAndCommit(t, p, map[string]map[string]any{
			"1": {"tag": []any{"a", "b"}},
		})
		assert.Equal(t, []string{"1"}, search(t, p, fieldQuery("tag", "is", []any{"b"})))

		page, err := p.Search(ctx, testTarget(), &docfind.SearchRequest{
			Query: map[string]any{"matchall": true},
			Size:  10,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, page.Items[0]["tag"])
	})
}

func TestCheckpointLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()

	id, err := p.Checkpoint(ctx, "c", false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := p.CheckpointStatus(ctx, "c", id)
	require.NoError(t, err)
	assert.True(t, status.Reached)
	assert.False(t, status.Expired)

	t.Run("unknown checkpoints are expired", func(t *testing.T) {
		status, err := p.CheckpointStatus(ctx, "c", "no-such-id")
		require.NoError(t, err)
		assert.True(t, status.Expired)
	})

	t.Run("explicit expiry", func(t *testing.T) {
		p.ExpireCheckpoint("c", id)
		status, err := p.CheckpointStatus(ctx, "c", id)
		require.NoError(t, err)
		assert.True(t, status.Expired)
	})
}

func TestSearchCooccur(t *testing.T) {
	p := New()
	addAndCommit(t, p, map[string]map[string]any{
		"1": {"text": "red fish"},
		"2": {"text": "red fish"},
		"3": {"text": "blue fish"},
	})

	page, err := p.Search(context.Background(), testTarget(), &docfind.SearchRequest{
		Query: map[string]any{"matchall": true},
		Size:  10,
		Info:  []docfind.InfoRequest{{Kind: "cooccur", Group: "text"}},
	})
	require.NoError(t, err)
	require.Len(t, page.Info, 1)

	counts := page.Info[0]["counts"].([]any)
	require.NotEmpty(t, counts)
	assert.Equal(t, []any{"fish", "red", 2}, counts[0])
}
