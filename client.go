package docfind

import (
	"context"
	"time"
)

// Client talks to a search service through a Protocol. It is cheap to
// create and safe for concurrent use; per-search state lives on the
// Searchables it produces.
type Client struct {
	proto Protocol
	opts  options
}

// New creates a Client over the given protocol implementation.
func New(proto Protocol, optFns ...Option) *Client {
	return &Client{proto: proto, opts: applyOptions(optFns)}
}

// Find wraps a query in a Searchable using the target the query itself is
// bound to, either from a Collection or DocumentType leaf factory or
// inherited through combination. A query with no resolved target fails with
// ErrTargetNotSet; use Collection(...).Find to supply one.
func (c *Client) Find(q *Query) (*Searchable, error) {
	target, ok := q.Target()
	if !ok {
		return nil, ErrTargetNotSet
	}
	return newSearchable(c, target, q, nil), nil
}

// Collection returns a handle on the named collection. No request is made;
// the collection may not exist yet, and no error is reported here even for
// invalid names.
func (c *Client) Collection(name string) *Collection {
	return &Collection{
		queryScope: queryScope{client: c, target: CollectionTarget(name)},
		name:       name,
	}
}

// queryScope is the shared surface of Collection and DocumentType: both are
// targets that queries can be built against, searched on, and mutated
// through.
type queryScope struct {
	client   *Client
	target   Target
	realiser Realiser
}

// Target returns the scope's target.
func (qs *queryScope) Target() Target { return qs.target }

// Field creates query leaves for the named field, bound to this target.
func (qs *queryScope) Field(name string) FieldQuery {
	t := qs.target
	return FieldQuery{name: name, target: &t}
}

// AnyField creates query leaves matching across all fields, bound to this
// target.
func (qs *queryScope) AnyField() FieldQuery {
	t := qs.target
	return FieldQuery{target: &t}
}

// All returns a query matching every document in this target.
func (qs *queryScope) All() *Query {
	t := qs.target
	return &Query{kind: kindAll, target: &t}
}

// None returns a query matching no documents, bound to this target.
func (qs *queryScope) None() *Query {
	t := qs.target
	return &Query{kind: kindNone, target: &t}
}

// Find binds a query to this target and wraps it in a Searchable. It fails
// with ErrTargetConflict if the query is already bound to a different
// target.
func (qs *queryScope) Find(q *Query) (*Searchable, error) {
	bound, err := q.bind(qs.target)
	if err != nil {
		return nil, err
	}
	return newSearchable(qs.client, qs.target, bound, qs.realiser), nil
}

// AddDoc enqueues a document write. The document's content is not validated
// here: only enqueue failures are reported, and content-level problems
// surface later as entries on a checkpoint's error list.
func (qs *queryScope) AddDoc(ctx context.Context, docType, docID string, doc map[string]any) error {
	start := time.Now()
	err := qs.client.proto.AddDocument(ctx, qs.target, docType, docID, doc)
	qs.client.opts.metrics.RecordMutation(time.Since(start), err)
	qs.client.opts.logger.LogMutation(ctx, qs.target, "add", docType, docID, err)
	return err
}

// DeleteDoc enqueues a document deletion.
func (qs *queryScope) DeleteDoc(ctx context.Context, docType, docID string) error {
	start := time.Now()
	err := qs.client.proto.DeleteDocument(ctx, qs.target, docType, docID)
	qs.client.opts.metrics.RecordMutation(time.Since(start), err)
	qs.client.opts.logger.LogMutation(ctx, qs.target, "delete", docType, docID, err)
	return err
}

// Checkpoint inserts a checkpoint into the collection's mutation queue and
// returns a handle for polling it. With commit set, all preceding changes
// become visible to search before the checkpoint is reached.
func (qs *queryScope) Checkpoint(ctx context.Context, commit bool) (*CheckPoint, error) {
	coll := qs.target.Collection()
	start := time.Now()
	id, err := qs.client.proto.Checkpoint(ctx, coll, commit)
	qs.client.opts.metrics.RecordCheckpoint(time.Since(start), err)
	qs.client.opts.logger.LogCheckpoint(ctx, coll, id, commit, err)
	if err != nil {
		return nil, err
	}
	return &CheckPoint{
		client:     qs.client,
		collection: coll,
		id:         id,
		commit:     commit,
	}, nil
}

// Collection is a handle on one collection: a query target plus the
// surface for document mutations and checkpoints.
type Collection struct {
	queryScope
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// DocType returns a handle on one document type within the collection. The
// type inherits the collection's realiser; its mutation queue and
// checkpoints are the collection's.
func (c *Collection) DocType(docType string) *DocumentType {
	return &DocumentType{
		queryScope: queryScope{
			client:   c.client,
			target:   DocTypeTarget(c.name, docType),
			realiser: c.realiser,
		},
		name: docType,
	}
}

// SetRealiser sets the default function used to resolve result records to
// caller-owned objects for searches on this collection. A Searchable can
// override it with WithRealiser.
func (c *Collection) SetRealiser(fn Realiser) *Collection {
	c.realiser = fn
	return c
}

// DocumentType is a handle on one document type within a collection.
type DocumentType struct {
	queryScope
	name string
}

// Name returns the document type name.
func (dt *DocumentType) Name() string { return dt.name }

// SetRealiser sets the default realiser for searches on this type.
func (dt *DocumentType) SetRealiser(fn Realiser) *DocumentType {
	dt.realiser = fn
	return dt
}

// AddDoc enqueues a write of a document of this type.
func (dt *DocumentType) AddDoc(ctx context.Context, docID string, doc map[string]any) error {
	return dt.queryScope.AddDoc(ctx, dt.name, docID, doc)
}

// DeleteDoc enqueues a deletion of a document of this type.
func (dt *DocumentType) DeleteDoc(ctx context.Context, docID string) error {
	return dt.queryScope.DeleteDoc(ctx, dt.name, docID)
}
