// Package inmem is an in-process implementation of docfind.Protocol.
//
// It keeps collections in memory and mirrors the service's asynchronous
// mutation model: document adds and deletes are queued, and become visible
// to search only when a committing checkpoint is inserted. Match counts are
// always exact because every candidate is inspected.
//
// It is intended for tests and local development, not production indexing.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/docfind/docfind"
)

type mutationKind uint8

const (
	mutAdd mutationKind = iota
	mutDelete
)

type mutation struct {
	kind    mutationKind
	docType string
	docID   string
	doc     map[string]any
}

type collection struct {
	// docs holds committed documents in insertion order. Deleted entries
	// are nil; positions are never reused, so older documents always sort
	// earlier in doc order.
	docs  []*document
	byKey map[docKey]int

	idx *index

	pending     []mutation
	checkpoints map[string]*docfind.CheckpointStatus
}

type docKey struct {
	docType string
	docID   string
}

func newCollection() *collection {
	return &collection{
		byKey:       make(map[docKey]int),
		checkpoints: make(map[string]*docfind.CheckpointStatus),
		idx:         buildIndex(nil),
	}
}

// Protocol is an in-memory search service. The zero value is not usable;
// create one with New. All methods are safe for concurrent use.
type Protocol struct {
	mu          sync.Mutex
	collections map[string]*collection
}

var _ docfind.Protocol = (*Protocol)(nil)

// New creates an empty in-memory service.
func New() *Protocol {
	return &Protocol{collections: make(map[string]*collection)}
}

// coll returns the named collection, creating it if create is set.
func (p *Protocol) coll(name string, create bool) *collection {
	c, ok := p.collections[name]
	if !ok && create {
		c = newCollection()
		p.collections[name] = c
	}
	return c
}

// AddDocument implements docfind.Protocol. The write is queued; it becomes
// visible after the next committing checkpoint. Document content is not
// validated here.
func (p *Protocol) AddDocument(ctx context.Context, target docfind.Target, docType, docID string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return docfind.NewServiceError("add document", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.coll(target.Collection(), true)
	c.pending = append(c.pending, mutation{
		kind:    mutAdd,
		docType: docType,
		docID:   docID,
		doc:     copyDoc(doc),
	})
	return nil
}

// DeleteDocument implements docfind.Protocol. The deletion is queued.
func (p *Protocol) DeleteDocument(ctx context.Context, target docfind.Target, docType, docID string) error {
	if err := ctx.Err(); err != nil {
		return docfind.NewServiceError("delete document", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.coll(target.Collection(), true)
	c.pending = append(c.pending, mutation{kind: mutDelete, docType: docType, docID: docID})
	return nil
}

// Checkpoint implements docfind.Protocol. With commit set, all queued
// mutations are applied and become visible to search; without it, the queue
// is left untouched. Either way the returned checkpoint is already reached,
// carrying any document-level errors the apply produced.
func (p *Protocol) Checkpoint(ctx context.Context, collectionName string, commit bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", docfind.NewServiceError("checkpoint", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.coll(collectionName, true)

	status := &docfind.CheckpointStatus{Reached: true}
	if commit {
		errs := c.apply()
		status.Errors = errs
		status.TotalErrors = len(errs)
	}

	id := uuid.NewString()
	c.checkpoints[id] = status
	return id, nil
}

// CheckpointStatus implements docfind.Protocol. An unknown checkpoint id is
// reported as expired, mirroring a service that has discarded it.
func (p *Protocol) CheckpointStatus(ctx context.Context, collectionName, checkID string) (*docfind.CheckpointStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, docfind.NewServiceError("checkpoint status", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.coll(collectionName, false)
	if c == nil {
		return &docfind.CheckpointStatus{Expired: true}, nil
	}
	status, ok := c.checkpoints[checkID]
	if !ok {
		return &docfind.CheckpointStatus{Expired: true}, nil
	}
	cp := *status
	cp.Errors = append([]docfind.ErrorDetail(nil), status.Errors...)
	return &cp, nil
}

// ExpireCheckpoint discards a checkpoint, as a service reclaiming state
// would. Subsequent status requests report it expired.
func (p *Protocol) ExpireCheckpoint(collectionName, checkID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.coll(collectionName, false); c != nil {
		delete(c.checkpoints, checkID)
	}
}

// apply drains the pending queue in order, returning one ErrorDetail per
// mutation that could not be processed. The index is rebuilt afterwards.
func (c *collection) apply() []docfind.ErrorDetail {
	var errs []docfind.ErrorDetail
	for _, m := range c.pending {
		if err := c.applyOne(m); err != nil {
			errs = append(errs, docfind.ErrorDetail{
				Msg:     err.Error(),
				DocType: m.docType,
				DocID:   m.docID,
			})
		}
	}
	c.pending = nil
	c.idx = buildIndex(c.docs)
	return errs
}

func (c *collection) applyOne(m mutation) error {
	if m.docType == "" {
		return fmt.Errorf("document has no type")
	}
	key := docKey{docType: m.docType, docID: m.docID}

	switch m.kind {
	case mutAdd:
		if m.docID == "" {
			return fmt.Errorf("document has no id")
		}
		doc, err := newDocument(m.docType, m.docID, m.doc)
		if err != nil {
			return err
		}
		if pos, ok := c.byKey[key]; ok {
			c.docs[pos] = doc
			return nil
		}
		c.byKey[key] = len(c.docs)
		c.docs = append(c.docs, doc)
		return nil

	case mutDelete:
		pos, ok := c.byKey[key]
		if !ok {
			return fmt.Errorf("document not found")
		}
		c.docs[pos] = nil
		delete(c.byKey, key)
		return nil
	}
	return fmt.Errorf("unknown mutation")
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
