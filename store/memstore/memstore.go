// Package memstore is an in-memory store.Client. It is the reference
// implementation of the store semantics and the fake used across the test
// suites: writes are immediately visible, batches apply under one lock, and
// every write pushes fresh snapshots to open subscriptions.
package memstore

import (
	"context"
	"sync"

	"socialkit/store"
)

// Store implements store.Client entirely in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	watchers    map[*subscription]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		watchers:    make(map[*subscription]struct{}),
	}
}

func (s *Store) Get(_ context.Context, collection, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: cloneBytes(data)}, nil
}

func (s *Store) Set(_ context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, data)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Query(_ context.Context, q store.Query) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q), nil
}

func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	sub := &subscription{
		store: s,
		query: q,
		ch:    make(chan store.Snapshot, snapshotBuffer),
	}
	s.mu.Lock()
	s.watchers[sub] = struct{}{}
	sub.deliverLocked(s.queryLocked(q))
	s.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

func (s *Store) Batch() store.WriteBatch {
	return &batch{store: s}
}

// ActiveSubscriptions reports how many subscriptions are currently open.
// Used by tests to detect leaked listeners.
func (s *Store) ActiveSubscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *Store) setLocked(collection, id string, data []byte) {
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.collections[collection] = coll
	}
	coll[id] = cloneBytes(data)
}

func (s *Store) queryLocked(q store.Query) store.Snapshot {
	coll := s.collections[q.Collection]
	docs := make([]store.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, store.Document{ID: id, Data: cloneBytes(data)})
	}
	return q.Apply(docs)
}

// notifyLocked pushes a recomputed snapshot to every subscription on the
// collection. Duplicate snapshots are suppressed per subscription.
func (s *Store) notifyLocked(collection string) {
	for sub := range s.watchers {
		if sub.query.Collection == collection {
			sub.deliverLocked(s.queryLocked(sub.query))
		}
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

const snapshotBuffer = 16

type subscription struct {
	store *Store
	query store.Query
	ch    chan store.Snapshot
	last  store.Snapshot
	seen  bool
	once  sync.Once
}

func (sub *subscription) Snapshots() <-chan store.Snapshot { return sub.ch }

func (sub *subscription) Close() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.watchers, sub)
		sub.store.mu.Unlock()
		close(sub.ch)
	})
}

// deliverLocked sends snap unless it matches the previous delivery. A full
// channel drops the oldest pending snapshot; the newest state always wins.
func (sub *subscription) deliverLocked(snap store.Snapshot) {
	if sub.seen && sub.last.Equal(snap) {
		return
	}
	sub.last = snap
	sub.seen = true
	for {
		select {
		case sub.ch <- snap:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

type batchOp struct {
	collection string
	id         string
	data       []byte // nil means delete
}

type batch struct {
	store *Store
	ops   []batchOp
}

func (b *batch) Set(collection, id string, data []byte) store.WriteBatch {
	b.ops = append(b.ops, batchOp{collection: collection, id: id, data: cloneBytes(data)})
	return b
}

func (b *batch) Delete(collection, id string) store.WriteBatch {
	b.ops = append(b.ops, batchOp{collection: collection, id: id})
	return b
}

// Commit applies every accumulated write under one lock, then notifies each
// touched collection once.
func (b *batch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	touched := make(map[string]struct{})
	for _, op := range b.ops {
		if op.data == nil {
			delete(b.store.collections[op.collection], op.id)
		} else {
			b.store.setLocked(op.collection, op.id, op.data)
		}
		touched[op.collection] = struct{}{}
	}
	for collection := range touched {
		b.store.notifyLocked(collection)
	}
	return nil
}
