// Package rest implements the docfind.Protocol over the search service's
// HTTP API.
//
// Requests and responses are JSON. Responses may be compressed with gzip or
// zstd content codings; request bodies can optionally be compressed too.
// Outgoing requests can be paced with a rate limit, and every request
// carries a unique X-Request-Id for correlation with server logs.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/docfind/docfind"
	"github.com/docfind/docfind/codec"
)

// Options configures a Protocol.
type Options struct {
	// HTTPClient is the client used for all requests.
	// Defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Codec encodes request bodies and decodes responses.
	// Defaults to codec.Default.
	Codec codec.Codec

	// RequestsPerSecond paces outgoing requests, smoothing poll loops
	// and bulk submissions. 0 means unlimited.
	RequestsPerSecond float64

	// Compression selects the content coding for request bodies:
	// "" (none), "gzip" or "zstd". Responses are decoded regardless.
	Compression string

	// UserAgent is sent with every request.
	UserAgent string
}

// Protocol talks to a search service over HTTP. It implements
// docfind.Protocol and is safe for concurrent use.
type Protocol struct {
	baseURL     string
	hc          *http.Client
	codec       codec.Codec
	limiter     *rate.Limiter
	compression string
	userAgent   string
}

var _ docfind.Protocol = (*Protocol)(nil)

// New creates a Protocol for the service rooted at baseURL
// (e.g. "http://127.0.0.1:7777").
func New(baseURL string, optFns ...func(*Options)) *Protocol {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Codec:      codec.Default,
		UserAgent:  "docfind-go",
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}

	p := &Protocol{
		baseURL:     trimSlash(baseURL),
		hc:          opts.HTTPClient,
		codec:       opts.Codec,
		compression: opts.Compression,
		userAgent:   opts.UserAgent,
	}
	if opts.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return p
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

func targetPath(target docfind.Target) string {
	path := "/coll/" + url.PathEscape(target.Collection())
	if dt := target.DocType(); dt != "" {
		path += "/type/" + url.PathEscape(dt)
	}
	return path
}

// Search implements docfind.Protocol.
func (p *Protocol) Search(ctx context.Context, target docfind.Target, req *docfind.SearchRequest) (*docfind.SearchPage, error) {
	body := map[string]any{"query": req.Query}
	if req.Offset > 0 {
		body["from"] = req.Offset
	}
	if req.Size >= 0 {
		body["size"] = req.Size
	}
	if req.CheckAtLeast != 0 {
		body["check_at_least"] = req.CheckAtLeast
	}
	if len(req.Info) > 0 {
		body["info"] = req.Info
	}

	var page docfind.SearchPage
	err := p.do(ctx, "search", http.MethodPost, targetPath(target)+"/search", nil, body, http.StatusOK, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// AddDocument implements docfind.Protocol.
func (p *Protocol) AddDocument(ctx context.Context, target docfind.Target, docType, docID string, doc map[string]any) error {
	path := "/coll/" + url.PathEscape(target.Collection()) +
		"/type/" + url.PathEscape(docType) +
		"/id/" + url.PathEscape(docID)
	return p.do(ctx, "add document", http.MethodPut, path, nil, doc, http.StatusAccepted, nil)
}

// DeleteDocument implements docfind.Protocol.
func (p *Protocol) DeleteDocument(ctx context.Context, target docfind.Target, docType, docID string) error {
	path := "/coll/" + url.PathEscape(target.Collection()) +
		"/type/" + url.PathEscape(docType) +
		"/id/" + url.PathEscape(docID)
	return p.do(ctx, "delete document", http.MethodDelete, path, nil, nil, http.StatusAccepted, nil)
}

// Checkpoint implements docfind.Protocol.
func (p *Protocol) Checkpoint(ctx context.Context, collection string, commit bool) (string, error) {
	params := url.Values{}
	if commit {
		params.Set("commit", "1")
	} else {
		params.Set("commit", "0")
	}
	var resp struct {
		CheckID string `json:"checkid"`
	}
	path := "/coll/" + url.PathEscape(collection) + "/checkpoint"
	err := p.do(ctx, "checkpoint", http.MethodPost, path, params, nil, http.StatusCreated, &resp)
	if err != nil {
		return "", err
	}
	return resp.CheckID, nil
}

// CheckpointStatus implements docfind.Protocol. A null response body means
// the service discarded the checkpoint; that is reported as an expired
// status, not an error.
func (p *Protocol) CheckpointStatus(ctx context.Context, collection, checkID string) (*docfind.CheckpointStatus, error) {
	path := "/coll/" + url.PathEscape(collection) + "/checkpoint/" + url.PathEscape(checkID)

	raw, err := p.doRaw(ctx, "checkpoint status", http.MethodGet, path, nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	if isJSONNull(raw) {
		return &docfind.CheckpointStatus{Expired: true}, nil
	}
	var status docfind.CheckpointStatus
	if err := p.codec.Unmarshal(raw, &status); err != nil {
		return nil, docfind.NewServiceError("checkpoint status", err)
	}
	return &status, nil
}

func isJSONNull(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

// do sends one request and decodes the response body into out (if non-nil).
func (p *Protocol) do(ctx context.Context, op, method, path string, params url.Values, payload any, wantStatus int, out any) error {
	raw, err := p.doRaw(ctx, op, method, path, params, payload, wantStatus)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := p.codec.Unmarshal(raw, out); err != nil {
		return docfind.NewServiceError(op, err)
	}
	return nil
}

func (p *Protocol) doRaw(ctx context.Context, op, method, path string, params url.Values, payload any, wantStatus int) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, docfind.NewServiceError(op, err)
		}
	}

	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	var contentEncoding string
	if payload != nil {
		encoded, err := p.codec.Marshal(payload)
		if err != nil {
			return nil, docfind.NewServiceError(op, err)
		}
		encoded, contentEncoding, err = compressBody(encoded, p.compression)
		if err != nil {
			return nil, docfind.NewServiceError(op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, docfind.NewServiceError(op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		if contentEncoding != "" {
			req.Header.Set("Content-Encoding", contentEncoding)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, docfind.NewServiceError(op, err)
	}
	defer resp.Body.Close()

	raw, err := decompressBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, docfind.NewServiceError(op, err)
	}

	if resp.StatusCode != wantStatus {
		return nil, p.statusError(op, resp.StatusCode, raw)
	}
	return raw, nil
}

// statusError maps an unexpected HTTP status to the client error taxonomy:
// a 400 is a malformed query, everything else is a service failure.
func (p *Protocol) statusError(op string, status int, raw []byte) error {
	var serverErr struct {
		Err string `json:"err"`
	}
	_ = p.codec.Unmarshal(raw, &serverErr)

	if status == http.StatusBadRequest {
		msg := serverErr.Err
		if msg == "" {
			msg = "bad request"
		}
		return &docfind.QueryError{Msg: msg}
	}

	msg := serverErr.Err
	if msg == "" {
		msg = http.StatusText(status)
	}
	return docfind.NewServiceError(op, fmt.Errorf("unexpected status %d: %s", status, msg))
}
