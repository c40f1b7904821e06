package docfind

import "context"

// CheckEverything is the CheckAtLeast sentinel asking the service to inspect
// every candidate document, making the match-count estimate exact.
const CheckEverything = -1

// SearchRequest describes one page fetch.
type SearchRequest struct {
	// Query is the serialized expression tree (see Query.Describe).
	Query map[string]any `json:"query"`

	// Offset is the rank of the first item to return.
	Offset int `json:"from,omitempty"`

	// Size is the number of items to return. A negative size leaves the
	// page size to the service's default.
	Size int `json:"size"`

	// CheckAtLeast is the minimum number of candidate documents the
	// service should inspect before producing match-count estimates, or
	// CheckEverything for an exact count.
	CheckAtLeast int `json:"check_at_least,omitempty"`

	// Info lists additional statistics to compute during the same fetch.
	Info []InfoRequest `json:"info,omitempty"`
}

// InfoRequest asks for term-occurrence statistics over the matching
// documents. Sampling stops after DocLimit documents, taken in the index's
// natural order, so the sample is biased toward earlier-indexed documents.
type InfoRequest struct {
	// Kind is "occur" or "cooccur".
	Kind string `json:"kind"`

	// Group is the term group (field) to inspect; "" means all groups.
	Group string `json:"group"`

	// Prefix restricts counting to terms with this prefix.
	Prefix string `json:"prefix"`

	// DocLimit caps how many matching documents are inspected. 0 means
	// no cap.
	DocLimit int `json:"doc_limit,omitempty"`

	// ResultLimit caps how many counts are returned. 0 means no cap.
	ResultLimit int `json:"result_limit,omitempty"`
}

// PageItem is one raw result row: stored field values keyed by field name,
// each an ordered list of stringified values.
type PageItem map[string][]string

// SearchPage is the raw result of one fetch.
type SearchPage struct {
	Items []PageItem `json:"items"`

	// Offset and SizeRequested echo the request's paging window.
	Offset        int `json:"from"`
	SizeRequested int `json:"size_requested"`

	// CheckAtLeast is the number of candidate documents the service
	// actually inspected.
	CheckAtLeast int `json:"check_at_least"`

	MatchesLowerBound int `json:"matches_lower_bound"`
	MatchesEstimated  int `json:"matches_estimated"`
	MatchesUpperBound int `json:"matches_upper_bound"`

	// TotalDocs is the total number of documents searched.
	TotalDocs int `json:"total_docs"`

	// Info holds the computed statistics, in request order.
	Info []map[string]any `json:"info,omitempty"`
}

// EstimateIsExact reports whether MatchesEstimated is known to be exact.
func (p *SearchPage) EstimateIsExact() bool {
	return p.MatchesLowerBound == p.MatchesUpperBound
}

// covers reports whether the page's requested window contains rank.
func (p *SearchPage) covers(rank int) bool {
	return p.Offset <= rank && rank < p.Offset+p.SizeRequested
}

// CheckpointStatus is the observed state of a checkpoint.
type CheckpointStatus struct {
	// Reached is true once every mutation submitted before the
	// checkpoint has been processed.
	Reached bool `json:"reached"`

	// Expired is true if the service discarded the checkpoint before it
	// was observed.
	Expired bool `json:"-"`

	// TotalErrors counts all document-level processing errors, which may
	// exceed len(Errors) if the service truncates the list.
	TotalErrors int `json:"total_errors"`

	// Errors lists document-level processing errors, oldest first.
	// These are data, not Go errors: a mutation call only reports
	// enqueue failure, never content validity.
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail is one document-level processing error.
type ErrorDetail struct {
	Msg     string `json:"msg"`
	DocType string `json:"doc_type,omitempty"`
	DocID   string `json:"doc_id,omitempty"`
}

// Protocol is the collaborator that executes searches and mutations against
// the search service. The concrete wire format is its concern alone; the
// rest of the library only builds requests and interprets pages.
//
// Implementations must distinguish malformed requests (*QueryError) from
// transport and availability failures (*ServiceError). Calls are synchronous
// request/response with no implicit retry.
type Protocol interface {
	// Search evaluates a query description and returns one page of
	// results plus match-count metadata.
	Search(ctx context.Context, target Target, req *SearchRequest) (*SearchPage, error)

	// AddDocument enqueues a document write. Failure means the enqueue
	// failed; document content is never validated synchronously.
	AddDocument(ctx context.Context, target Target, docType, docID string, doc map[string]any) error

	// DeleteDocument enqueues a document deletion.
	DeleteDocument(ctx context.Context, target Target, docType, docID string) error

	// Checkpoint inserts a checkpoint into the collection's mutation
	// queue and returns its token. If commit is true, all preceding
	// changes become visible to search before the checkpoint is reached.
	Checkpoint(ctx context.Context, collection string, commit bool) (string, error)

	// CheckpointStatus reports the current state of a checkpoint. Each
	// call is a single idempotent status request.
	CheckpointStatus(ctx context.Context, collection, checkID string) (*CheckpointStatus, error)
}
