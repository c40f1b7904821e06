package docfind

// Target is the scope a query or checkpoint applies to: an entire collection,
// or a single document type within one. The zero value is not a valid target.
type Target struct {
	collection string
	docType    string // empty when the target is a whole collection
}

// CollectionTarget returns a target covering a whole collection.
func CollectionTarget(collection string) Target {
	return Target{collection: collection}
}

// DocTypeTarget returns a target covering one document type in a collection.
func DocTypeTarget(collection, docType string) Target {
	return Target{collection: collection, docType: docType}
}

// Collection returns the collection name.
func (t Target) Collection() string { return t.collection }

// DocType returns the document type name, or "" for a whole-collection target.
func (t Target) DocType() string { return t.docType }

func (t Target) isZero() bool { return t.collection == "" && t.docType == "" }

func (t Target) String() string {
	if t.docType == "" {
		return t.collection
	}
	return t.collection + "/" + t.docType
}

// mergeTargets resolves the target of a combined query. Absent operand
// targets are ignored; two distinct resolved targets conflict. The merge is
// commutative and associative, so combinators can fold it over operands in
// any order.
func mergeTargets(a, b *Target) (*Target, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if *a != *b {
		return nil, ErrTargetConflict
	}
	return a, nil
}
