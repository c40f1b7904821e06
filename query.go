package docfind

// Query is an immutable node in a search expression tree. Leaves match
// field values or document metadata; combinators merge the matches and
// weights of their children. Combining queries never mutates an operand, so
// subtrees can safely be shared between many larger queries and Searchables.
//
// A Query may be bound to a Target, either explicitly (leaves created via a
// Collection or DocumentType factory) or by inheriting the target of a
// subquery it was combined with. Combining queries bound to different
// targets fails with ErrTargetConflict.

type queryKind uint8

const (
	kindField queryKind = iota // leaf: field match (is/range/text/parse/category)
	kindMeta                   // leaf: field metadata (exists/nonempty/empty/error)
	kindAll                    // matches every document
	kindNone                   // matches no document
	kindAnd
	kindOr
	kindXor
	kindAndNot
	kindFilter
	kindAndMaybe
	kindScale
)

var combineOps = map[queryKind]string{
	kindAnd:      "and",
	kindOr:       "or",
	kindXor:      "xor",
	kindAndNot:   "and_not",
	kindFilter:   "filter",
	kindAndMaybe: "and_maybe",
}

// Query is an immutable, composable search expression. See the package
// documentation for an overview of the algebra.
type Query struct {
	kind queryKind

	// Leaves.
	field   string // "" means any field
	fieldOp string // kindField: is, range, text, parse, is_descendant, is_or_is_descendant
	metaOp  string // kindMeta: exists, nonempty, empty, error
	value   any

	// Composites. Order matters for and_not/filter/and_maybe, where
	// children[0] is the primary operand and the sole weight source.
	children []*Query

	// kindScale.
	factor float64

	target *Target
}

// Target returns the target the query is bound to, and whether one is set.
func (q *Query) Target() (Target, bool) {
	if q.target == nil {
		return Target{}, false
	}
	return *q.target, true
}

// Describe serializes the query into the structure consumed by a Protocol.
// The returned value shares no state with the query.
func (q *Query) Describe() map[string]any {
	switch q.kind {
	case kindField:
		var name any
		if q.field != "" {
			name = q.field
		}
		return map[string]any{"field": []any{name, q.fieldOp, deepCopyValue(q.value)}}
	case kindMeta:
		var name any
		if q.field != "" {
			name = q.field
		}
		return map[string]any{"meta": []any{q.metaOp, []any{name}}}
	case kindAll:
		return map[string]any{"matchall": true}
	case kindNone:
		return map[string]any{"matchnothing": true}
	case kindScale:
		return map[string]any{"scale": map[string]any{
			"query":  q.children[0].Describe(),
			"factor": q.factor,
		}}
	default:
		descs := make([]any, len(q.children))
		for i, c := range q.children {
			descs[i] = c.Describe()
		}
		return map[string]any{combineOps[q.kind]: descs}
	}
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// combine builds an associative combination (and/or/xor), folding children
// of the same kind into a flat list: And(And(a,b), c) has three children,
// not nested pairs.
func combine(kind queryKind, queries []*Query) (*Query, error) {
	if len(queries) == 0 {
		return nil, ErrEmptyCombination
	}
	var target *Target
	children := make([]*Query, 0, len(queries))
	for _, sub := range queries {
		t, err := mergeTargets(target, sub.target)
		if err != nil {
			return nil, err
		}
		target = t
		if sub.kind == kind {
			children = append(children, sub.children...)
		} else {
			children = append(children, sub)
		}
	}
	return &Query{kind: kind, children: children, target: target}, nil
}

// combineOrdered builds a combination whose first operand is distinguished
// (and_not/filter/and_maybe). No flattening: nesting changes meaning here.
func combineOrdered(kind queryKind, primary *Query, rest []*Query) (*Query, error) {
	if len(rest) == 0 {
		return nil, ErrEmptyCombination
	}
	target := primary.target
	for _, sub := range rest {
		t, err := mergeTargets(target, sub.target)
		if err != nil {
			return nil, err
		}
		target = t
	}
	children := make([]*Query, 0, len(rest)+1)
	children = append(children, primary)
	children = append(children, rest...)
	return &Query{kind: kind, children: children, target: target}, nil
}

// And matches documents matching every subquery; weights are combined by
// the service (summed for the default weighting scheme).
func And(queries ...*Query) (*Query, error) { return combine(kindAnd, queries) }

// Or matches documents matching any subquery; the weights of the subqueries
// that match are summed.
func Or(queries ...*Query) (*Query, error) { return combine(kindOr, queries) }

// Xor matches documents matching an odd number of subqueries.
//
// There is deliberately no unary Not: the service cannot efficiently
// enumerate a complement set and a pure negation has no defined weight.
// Express "not q" as AndNot(All(), q).
func Xor(queries ...*Query) (*Query, error) { return combine(kindXor, queries) }

// AndNot matches documents matching primary and none of exclude.
// Weights come from primary alone.
func AndNot(primary *Query, exclude ...*Query) (*Query, error) {
	return combineOrdered(kindAndNot, primary, exclude)
}

// Filter matches documents matching primary and all of filters, but the
// filters contribute nothing to the score.
func Filter(primary *Query, filters ...*Query) (*Query, error) {
	return combineOrdered(kindFilter, primary, filters)
}

// AndMaybe matches exactly the documents matching primary, adding weight
// from any of maybes that also match. Documents matching only a maybe are
// excluded; this is not an Or.
func AndMaybe(primary *Query, maybes ...*Query) (*Query, error) {
	return combineOrdered(kindAndMaybe, primary, maybes)
}

// MultWeight matches the same documents as q with weights multiplied by
// factor. The factor must be strictly positive; anything else fails here,
// before any network access.
func MultWeight(q *Query, factor float64) (*Query, error) {
	if factor <= 0 {
		return nil, ErrInvalidWeightFactor
	}
	return &Query{kind: kindScale, children: []*Query{q}, factor: factor, target: q.target}, nil
}

// DivWeight matches the same documents as q with weights divided by divisor.
func DivWeight(q *Query, divisor float64) (*Query, error) {
	if divisor <= 0 {
		return nil, ErrInvalidWeightFactor
	}
	return MultWeight(q, 1/divisor)
}

// And combines the query with others, see the package-level And.
func (q *Query) And(others ...*Query) (*Query, error) {
	return combine(kindAnd, append([]*Query{q}, others...))
}

// Or combines the query with others, see the package-level Or.
func (q *Query) Or(others ...*Query) (*Query, error) {
	return combine(kindOr, append([]*Query{q}, others...))
}

// Xor combines the query with others, see the package-level Xor.
func (q *Query) Xor(others ...*Query) (*Query, error) {
	return combine(kindXor, append([]*Query{q}, others...))
}

// AndNot excludes matches of others from the query's matches.
func (q *Query) AndNot(others ...*Query) (*Query, error) {
	return combineOrdered(kindAndNot, q, others)
}

// Filter restricts the query's matches without affecting its weights.
func (q *Query) Filter(others ...*Query) (*Query, error) {
	return combineOrdered(kindFilter, q, others)
}

// AndMaybe adds optional weight from others to the query's matches.
func (q *Query) AndMaybe(others ...*Query) (*Query, error) {
	return combineOrdered(kindAndMaybe, q, others)
}

// MultWeight scales the query's weights, see the package-level MultWeight.
func (q *Query) MultWeight(factor float64) (*Query, error) {
	return MultWeight(q, factor)
}

// DivWeight divides the query's weights, see the package-level DivWeight.
func (q *Query) DivWeight(divisor float64) (*Query, error) {
	return DivWeight(q, divisor)
}

// bind returns a copy of the query tagged with target. The copy is shallow:
// children are immutable and shared.
func (q *Query) bind(target Target) (*Query, error) {
	merged, err := mergeTargets(q.target, &target)
	if err != nil {
		return nil, err
	}
	bound := *q
	bound.target = merged
	return &bound, nil
}

// All returns a query matching every document, with uniform weight.
func All() *Query { return &Query{kind: kindAll} }

// None returns a query matching no documents.
func None() *Query { return &Query{kind: kindNone} }

// FieldQuery creates query leaves for one field. Obtain one from Field, or
// from a Collection or DocumentType to get target-bound leaves.
//
// Field/type compatibility (e.g. Range on a non-numeric field) is not
// checked at construction; the service reports it as a QueryError when the
// search runs.
type FieldQuery struct {
	name   string
	target *Target
}

// Field creates query leaves for the named field, unbound to any target.
func Field(name string) FieldQuery { return FieldQuery{name: name} }

// AnyField creates query leaves matching across all fields.
func AnyField() FieldQuery { return FieldQuery{} }

func (f FieldQuery) leaf(op string, value any) *Query {
	return &Query{kind: kindField, field: f.name, fieldOp: op, value: value, target: f.target}
}

func (f FieldQuery) meta(op string) *Query {
	return &Query{kind: kindMeta, field: f.name, metaOp: op, target: f.target}
}

// Equals matches documents where a stored value of the field exactly equals
// value. Available for exact, id and category field types.
func (f FieldQuery) Equals(value any) *Query {
	return f.leaf("is", []any{value})
}

// IsIn matches documents where a stored value of the field exactly equals
// at least one of values.
func (f FieldQuery) IsIn(values ...any) *Query {
	copied := make([]any, len(values))
	copy(copied, values)
	return f.leaf("is", copied)
}

// Range matches documents with a stored value between begin and end,
// inclusive. Available for numeric, date and timestamp field types.
func (f FieldQuery) Range(begin, end any) *Query {
	return f.leaf("range", []any{begin, end})
}

// Text matches a sequence of words in the field, using the default "phrase"
// operator. An empty text matches nothing.
func (f FieldQuery) Text(text string) *Query {
	return f.leaf("text", map[string]any{"text": text, "op": "phrase"})
}

// TextOp is Text with an explicit operator ("or", "and", "phrase", "near")
// and proximity window. A window of 0 uses the length of the text.
func (f FieldQuery) TextOp(text, op string, window int) *Query {
	value := map[string]any{"text": text, "op": op}
	if window > 0 {
		value["window"] = window
	}
	return f.leaf("text", value)
}

// Parse parses a structured query string against the field, with "and" as
// the default operator. Parse failures are reported by the service at
// evaluation time, not here.
func (f FieldQuery) Parse(text string) *Query {
	return f.leaf("parse", map[string]any{"text": text, "op": "and"})
}

// ParseOp is Parse with an explicit default operator ("or" or "and").
func (f FieldQuery) ParseOp(text, op string) *Query {
	return f.leaf("parse", map[string]any{"text": text, "op": op})
}

// IsDescendant matches category field values that are descendants of one of
// the given categories.
func (f FieldQuery) IsDescendant(categories ...string) *Query {
	return f.leaf("is_descendant", stringsToAny(categories))
}

// IsOrIsDescendant matches category field values equal to, or descendants
// of, one of the given categories.
func (f FieldQuery) IsOrIsDescendant(categories ...string) *Query {
	return f.leaf("is_or_is_descendant", stringsToAny(categories))
}

// Exists matches documents in which the field exists.
func (f FieldQuery) Exists() *Query { return f.meta("exists") }

// Nonempty matches documents in which the field has a non-empty value.
func (f FieldQuery) Nonempty() *Query { return f.meta("nonempty") }

// Empty matches documents in which the field has an empty value.
func (f FieldQuery) Empty() *Query { return f.meta("empty") }

// HasError matches documents in which the field produced an error when it
// was processed for indexing.
func (f FieldQuery) HasError() *Query { return f.meta("error") }

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
