package inmem

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/docfind/docfind"
)

// matchSet is the result of evaluating a query node: the matching documents
// and their weights. A document in bm with no weights entry has weight 0
// (matchall matches everything at weight zero).
type matchSet struct {
	bm      *roaring.Bitmap
	weights map[uint32]float64
}

func emptySet() matchSet {
	return matchSet{bm: roaring.New(), weights: map[uint32]float64{}}
}

func (m matchSet) weight(doc uint32) float64 { return m.weights[doc] }

// restrictWeights drops weight entries for documents not in bm.
func (m matchSet) restrictWeights() matchSet {
	for doc := range m.weights {
		if !m.bm.Contains(doc) {
			delete(m.weights, doc)
		}
	}
	return m
}

func queryErrorf(format string, args ...any) error {
	return &docfind.QueryError{Msg: fmt.Sprintf(format, args...)}
}

// eval evaluates one serialized query node against the index.
func (idx *index) eval(desc map[string]any) (matchSet, error) {
	if len(desc) != 1 {
		return matchSet{}, queryErrorf("query node must have exactly one key, got %d", len(desc))
	}
	for key, raw := range desc {
		switch key {
		case "matchall":
			return matchSet{bm: idx.all.Clone(), weights: map[uint32]float64{}}, nil
		case "matchnothing":
			return emptySet(), nil
		case "field":
			return idx.evalField(raw)
		case "meta":
			return idx.evalMeta(raw)
		case "scale":
			return idx.evalScale(raw)
		case "and", "or", "xor", "and_not", "filter", "and_maybe":
			return idx.evalCombination(key, raw)
		default:
			return matchSet{}, queryErrorf("unknown query construct %q", key)
		}
	}
	return emptySet(), nil
}

func (idx *index) evalChildren(raw any) ([]matchSet, error) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, queryErrorf("combination requires a non-empty subquery list")
	}
	sets := make([]matchSet, len(list))
	for i, sub := range list {
		node, ok := sub.(map[string]any)
		if !ok {
			return nil, queryErrorf("subquery %d is not a query node", i)
		}
		set, err := idx.eval(node)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}
	return sets, nil
}

func (idx *index) evalCombination(op string, raw any) (matchSet, error) {
	sets, err := idx.evalChildren(raw)
	if err != nil {
		return matchSet{}, err
	}

	switch op {
	case "and":
		bm := sets[0].bm.Clone()
		for _, s := range sets[1:] {
			bm.And(s.bm)
		}
		return sumWeights(bm, sets), nil

	case "or":
		bm := sets[0].bm.Clone()
		for _, s := range sets[1:] {
			bm.Or(s.bm)
		}
		return sumWeights(bm, sets), nil

	case "xor":
		bm := sets[0].bm.Clone()
		for _, s := range sets[1:] {
			bm.Xor(s.bm)
		}
		return sumWeights(bm, sets), nil

	case "and_not":
		bm := sets[0].bm.Clone()
		for _, s := range sets[1:] {
			bm.AndNot(s.bm)
		}
		out := matchSet{bm: bm, weights: sets[0].weights}
		return out.restrictWeights(), nil

	case "filter":
		bm := sets[0].bm.Clone()
		for _, s := range sets[1:] {
			bm.And(s.bm)
		}
		out := matchSet{bm: bm, weights: sets[0].weights}
		return out.restrictWeights(), nil

	case "and_maybe":
		// Matches are the primary's alone; the rest only add weight.
		bm := sets[0].bm.Clone()
		return sumWeights(bm, sets), nil
	}
	return matchSet{}, queryErrorf("unknown combination %q", op)
}

// sumWeights builds a matchSet over bm whose weights are the sum of each
// contributing set's weight.
func sumWeights(bm *roaring.Bitmap, sets []matchSet) matchSet {
	weights := make(map[uint32]float64)
	it := bm.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var w float64
		for _, s := range sets {
			if s.bm.Contains(doc) {
				w += s.weight(doc)
			}
		}
		if w != 0 {
			weights[doc] = w
		}
	}
	return matchSet{bm: bm, weights: weights}
}

func (idx *index) evalScale(raw any) (matchSet, error) {
	node, ok := raw.(map[string]any)
	if !ok {
		return matchSet{}, queryErrorf("scale requires an object with query and factor")
	}
	sub, ok := node["query"].(map[string]any)
	if !ok {
		return matchSet{}, queryErrorf("scale is missing its subquery")
	}
	factor, ok := asFloat(node["factor"])
	if !ok || factor <= 0 {
		return matchSet{}, queryErrorf("scale factor must be a positive number")
	}
	set, err := idx.eval(sub)
	if err != nil {
		return matchSet{}, err
	}
	for doc, w := range set.weights {
		set.weights[doc] = w * factor
	}
	return set, nil
}

// evalField handles a field leaf: []any{name, op, value} where a nil name
// means any field.
func (idx *index) evalField(raw any) (matchSet, error) {
	parts, ok := raw.([]any)
	if !ok || len(parts) != 3 {
		return matchSet{}, queryErrorf("field query must be a [name, op, value] triple")
	}
	fields, err := idx.resolveFields(parts[0])
	if err != nil {
		return matchSet{}, err
	}
	op, ok := parts[1].(string)
	if !ok {
		return matchSet{}, queryErrorf("field query op must be a string")
	}
	value := parts[2]

	switch op {
	case "is":
		return idx.evalIs(fields, value)
	case "range":
		return idx.evalRange(fields, value)
	case "text", "parse":
		return idx.evalText(fields, op, value)
	case "is_descendant", "is_or_is_descendant":
		return matchSet{}, queryErrorf("no category hierarchy configured")
	default:
		return matchSet{}, queryErrorf("unknown field op %q", op)
	}
}

// resolveFields expands a field name to the concrete fields to search: the
// named field, or every known field when the name is absent.
func (idx *index) resolveFields(name any) ([]string, error) {
	switch t := name.(type) {
	case nil:
		return idx.fieldNames(), nil
	case string:
		return []string{t}, nil
	default:
		return nil, queryErrorf("field name must be a string or null")
	}
}

func (idx *index) evalIs(fields []string, value any) (matchSet, error) {
	candidates, ok := value.([]any)
	if !ok {
		return matchSet{}, queryErrorf("is query requires a list of values")
	}
	set := emptySet()
	for _, field := range fields {
		postings := idx.exact[field]
		for _, cand := range candidates {
			if bm, ok := postings[stringifyValue(cand)]; ok {
				set.bm.Or(bm)
			}
		}
	}
	return uniformWeights(set.bm), nil
}

func (idx *index) evalRange(fields []string, value any) (matchSet, error) {
	bounds, ok := value.([]any)
	if !ok || len(bounds) != 2 {
		return matchSet{}, queryErrorf("range query requires [begin, end]")
	}
	begin, okB := asFloat(bounds[0])
	end, okE := asFloat(bounds[1])
	if !okB || !okE {
		return matchSet{}, queryErrorf("range bounds must be numeric")
	}
	set := emptySet()
	for _, field := range fields {
		for _, entry := range idx.numeric[field] {
			if begin <= entry.val && entry.val <= end {
				set.bm.Add(entry.doc)
			}
		}
	}
	return uniformWeights(set.bm), nil
}

func (idx *index) evalText(fields []string, op string, value any) (matchSet, error) {
	node, ok := value.(map[string]any)
	if !ok {
		return matchSet{}, queryErrorf("%s query requires an object with text", op)
	}
	text, ok := node["text"].(string)
	if !ok {
		return matchSet{}, queryErrorf("%s query requires a text string", op)
	}
	textOp := "phrase"
	if op == "parse" {
		textOp = "and"
	}
	if s, ok := node["op"].(string); ok {
		textOp = s
	}
	window := 0
	if w, ok := asFloat(node["window"]); ok {
		window = int(w)
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return emptySet(), nil
	}

	set := emptySet()
	for _, field := range fields {
		fieldSet, err := idx.evalTextField(field, tokens, textOp, window)
		if err != nil {
			return matchSet{}, err
		}
		set.bm.Or(fieldSet.bm)
	}
	return uniformWeights(set.bm), nil
}

func (idx *index) evalTextField(field string, tokens []string, op string, window int) (matchSet, error) {
	postings := idx.terms[field]

	switch op {
	case "or":
		bm := roaring.New()
		for _, tok := range tokens {
			if p, ok := postings[tok]; ok {
				bm.Or(p)
			}
		}
		return matchSet{bm: bm}, nil

	case "and", "phrase", "near":
		bm := roaring.New()
		for i, tok := range tokens {
			p, ok := postings[tok]
			if !ok {
				return emptySet(), nil
			}
			if i == 0 {
				bm.Or(p)
			} else {
				bm.And(p)
			}
		}
		if op == "and" {
			return matchSet{bm: bm}, nil
		}
		if op == "near" && window <= 0 {
			window = len(tokens)
		}
		// Candidates have every token; verify positions per document.
		out := roaring.New()
		it := bm.Iterator()
		for it.HasNext() {
			doc := it.Next()
			d := idx.docs[doc]
			for _, seq := range d.tokens[field] {
				if op == "phrase" && containsPhrase(seq, tokens) {
					out.Add(doc)
					break
				}
				if op == "near" && containsNear(seq, tokens, window) {
					out.Add(doc)
					break
				}
			}
		}
		return matchSet{bm: out}, nil

	default:
		return matchSet{}, queryErrorf("unknown text op %q", op)
	}
}

// containsPhrase reports whether needle appears as a consecutive run in seq.
func containsPhrase(seq, needle []string) bool {
	for i := 0; i+len(needle) <= len(seq); i++ {
		match := true
		for j, tok := range needle {
			if seq[i+j] != tok {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// containsNear reports whether some window-sized span of seq contains every
// needle token, in any order.
func containsNear(seq, needle []string, window int) bool {
	if window < len(needle) {
		window = len(needle)
	}
	for i := 0; i+len(needle) <= len(seq); i++ {
		end := i + window
		if end > len(seq) {
			end = len(seq)
		}
		remaining := make(map[string]int, len(needle))
		for _, tok := range needle {
			remaining[tok]++
		}
		for _, tok := range seq[i:end] {
			if remaining[tok] > 0 {
				remaining[tok]--
			}
		}
		found := true
		for _, n := range remaining {
			if n > 0 {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}

// evalMeta handles a metadata leaf: []any{op, []any{name}}.
func (idx *index) evalMeta(raw any) (matchSet, error) {
	parts, ok := raw.([]any)
	if !ok || len(parts) != 2 {
		return matchSet{}, queryErrorf("meta query must be an [op, [name]] pair")
	}
	op, ok := parts[0].(string)
	if !ok {
		return matchSet{}, queryErrorf("meta query op must be a string")
	}
	args, ok := parts[1].([]any)
	if !ok || len(args) != 1 {
		return matchSet{}, queryErrorf("meta query requires a single field name")
	}
	fields, err := idx.resolveFields(args[0])
	if err != nil {
		return matchSet{}, err
	}

	var source map[string]*roaring.Bitmap
	switch op {
	case "exists":
		source = idx.present
	case "nonempty":
		source = idx.nonempty
	case "empty":
		source = idx.empty
	case "error":
		// Field-level indexing errors are not modelled; nothing matches.
		return emptySet(), nil
	default:
		return matchSet{}, queryErrorf("unknown meta op %q", op)
	}

	bm := roaring.New()
	for _, field := range fields {
		if p, ok := source[field]; ok {
			bm.Or(p)
		}
	}
	return uniformWeights(bm), nil
}

// uniformWeights gives every match weight 1, the base weight of a leaf.
func uniformWeights(bm *roaring.Bitmap) matchSet {
	weights := make(map[uint32]float64, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		weights[it.Next()] = 1
	}
	return matchSet{bm: bm, weights: weights}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
