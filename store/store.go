// Package store defines the remote document-store boundary. The store is an
// opaque, eventually-consistent collection of JSON documents reachable only
// through query/read/write/subscribe primitives; implementations live in
// subpackages.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("store: document not found")

// Document is one stored record: an opaque ID and its JSON encoding.
type Document struct {
	ID   string
	Data []byte
}

// Snapshot is the full result set of a query at one point in time.
type Snapshot []Document

// Op is a query comparison operator.
type Op string

const (
	// OpEqual matches documents whose field equals the condition value.
	OpEqual Op = "=="
	// OpContains matches documents whose array field contains the condition value.
	OpContains Op = "array-contains"
)

// Condition is a single field predicate.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

// Query describes a filtered, optionally ordered read of one collection.
type Query struct {
	Collection string
	Conditions []Condition
	OrderBy    string
	Descending bool
	Limit      int
}

// Where appends an equality or containment condition.
func (q Query) Where(field string, op Op, value interface{}) Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}

// Subscription is a live view of one query. Snapshots delivers the current
// full result set immediately, then a fresh result set after each relevant
// write. The channel is closed when the subscription ends.
type Subscription interface {
	Snapshots() <-chan Snapshot
	// Close releases the subscription. Safe to call more than once.
	Close()
}

// WriteBatch accumulates writes that must be applied atomically. Partial
// application is not a supported outcome.
type WriteBatch interface {
	Set(collection, id string, data []byte) WriteBatch
	Delete(collection, id string) WriteBatch
	Commit(ctx context.Context) error
}

// Client is the store access interface. All domain services hold one,
// constructor-injected, so tests can substitute an in-memory fake.
type Client interface {
	// Get reads a single document, returning ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, data []byte) error
	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query runs a one-shot read of the matching documents.
	Query(ctx context.Context, q Query) (Snapshot, error)
	// Subscribe opens a live view of the query. The subscription stays open
	// until Close is called or ctx is cancelled.
	Subscribe(ctx context.Context, q Query) (Subscription, error)
	// Batch starts an atomic multi-document write.
	Batch() WriteBatch
}
