package inmem

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"
)

// Reserved field names carrying document identity, searchable like any
// other exact field.
const (
	fieldType = "type"
	fieldID   = "id"
)

// document is one committed document, with its field values stringified the
// way the service returns them and pre-tokenized for text matching.
type document struct {
	docType string
	docID   string

	// values holds stringified field values, including the synthetic type
	// and id fields.
	values map[string][]string

	// tokens holds the lowercased word sequence of each stored value, in
	// the same order as values.
	tokens map[string][][]string

	// numeric holds the values that parse as numbers, for range matching.
	numeric map[string][]float64
}

func newDocument(docType, docID string, fields map[string]any) (*document, error) {
	d := &document{
		docType: docType,
		docID:   docID,
		values:  make(map[string][]string, len(fields)+2),
		tokens:  make(map[string][][]string),
		numeric: make(map[string][]float64),
	}
	for name, value := range fields {
		if name == fieldType || name == fieldID {
			return nil, fmt.Errorf("field %q is reserved", name)
		}
		for _, v := range flattenValue(value) {
			d.addValue(name, v)
		}
	}
	d.addValue(fieldType, docType)
	d.addValue(fieldID, docID)
	return d, nil
}

func (d *document) addValue(field string, value any) {
	s := stringifyValue(value)
	d.values[field] = append(d.values[field], s)
	d.tokens[field] = append(d.tokens[field], tokenize(s))
	if n, ok := numericValue(value); ok {
		d.numeric[field] = append(d.numeric[field], n)
	}
}

// flattenValue splits multi-valued fields into their elements.
func flattenValue(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func numericValue(v any) (float64, bool) {
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

// tokenize splits text into lowercased runs of letters and digits.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

type numEntry struct {
	doc uint32
	val float64
}

// index holds postings over one committed snapshot of a collection. Document
// ids are positions in the collection's docs slice, so bitmap order is doc
// order. An index is immutable once built; searches share it without locks
// while commits swap in a rebuilt one.
type index struct {
	docs []*document

	all      *roaring.Bitmap
	terms    map[string]map[string]*roaring.Bitmap
	exact    map[string]map[string]*roaring.Bitmap
	present  map[string]*roaring.Bitmap
	nonempty map[string]*roaring.Bitmap
	empty    map[string]*roaring.Bitmap
	numeric  map[string][]numEntry

	liveCount int
}

func buildIndex(docs []*document) *index {
	idx := &index{
		docs:     docs,
		all:      roaring.New(),
		terms:    make(map[string]map[string]*roaring.Bitmap),
		exact:    make(map[string]map[string]*roaring.Bitmap),
		present:  make(map[string]*roaring.Bitmap),
		nonempty: make(map[string]*roaring.Bitmap),
		empty:    make(map[string]*roaring.Bitmap),
		numeric:  make(map[string][]numEntry),
	}
	for pos, d := range docs {
		if d == nil {
			continue
		}
		id := uint32(pos)
		idx.all.Add(id)
		idx.liveCount++
		for field, vals := range d.values {
			idx.bitmapFor(idx.present, field).Add(id)
			for i, v := range vals {
				if v == "" {
					idx.bitmapFor(idx.empty, field).Add(id)
				} else {
					idx.bitmapFor(idx.nonempty, field).Add(id)
				}
				idx.nestedFor(idx.exact, field, v).Add(id)
				for _, tok := range d.tokens[field][i] {
					idx.nestedFor(idx.terms, field, tok).Add(id)
				}
			}
			for _, n := range d.numeric[field] {
				idx.numeric[field] = append(idx.numeric[field], numEntry{doc: id, val: n})
			}
		}
	}
	return idx
}

func (idx *index) bitmapFor(m map[string]*roaring.Bitmap, field string) *roaring.Bitmap {
	bm, ok := m[field]
	if !ok {
		bm = roaring.New()
		m[field] = bm
	}
	return bm
}

func (idx *index) nestedFor(m map[string]map[string]*roaring.Bitmap, field, key string) *roaring.Bitmap {
	sub, ok := m[field]
	if !ok {
		sub = make(map[string]*roaring.Bitmap)
		m[field] = sub
	}
	bm, ok := sub[key]
	if !ok {
		bm = roaring.New()
		sub[key] = bm
	}
	return bm
}

// fieldNames returns every field name any live document has.
func (idx *index) fieldNames() []string {
	names := make([]string, 0, len(idx.present))
	for name := range idx.present {
		names = append(names, name)
	}
	return names
}
