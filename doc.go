// Package docfind is a client library for a remote document search service.
//
// Queries are immutable expression trees built from field leaves and boolean
// or weighting combinators. Nothing touches the network until results are
// observed: a Searchable wraps a bound query plus paging options and fetches
// pages lazily, caching each page so repeated reads of the same range cost a
// single request.
//
//	coll := client.Collection("articles")
//	q, err := docfind.And(
//	    coll.Field("text").Text("cheese"),
//	    coll.Field("tag").Equals("food"),
//	)
//	s, err := coll.Find(q)
//	for r, err := range s.Slice(0, 10).All(ctx) {
//	    ...
//	}
//
// Document mutations are asynchronous on the server side. A checkpoint is an
// ordering barrier in a collection's mutation queue; waiting on it blocks
// until every earlier mutation has been processed, and collects any
// document-level processing errors:
//
//	coll.AddDoc(ctx, "blurb", "1", doc)
//	cp, err := coll.Checkpoint(ctx, true)
//	status, err := cp.Wait(ctx)
//
// The wire protocol is abstracted behind the Protocol interface. Package
// rest implements it over HTTP; package inmem is an in-process reference
// implementation useful for tests and local development.
package docfind
