// Package redistore is a Redis-backed store.Client. Each document is one
// JSON value, each collection keeps a set of member IDs as its index, and a
// per-collection pub/sub channel drives subscription refresh. Atomic batches
// ride on MULTI/EXEC via TxPipeline.
package redistore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"socialkit/store"
)

// Store implements store.Client on a Redis connection.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func docKey(collection, id string) string    { return "doc:" + collection + ":" + id }
func indexKey(collection string) string      { return "idx:" + collection }
func changeChannel(collection string) string { return "changes:" + collection }

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	data, err := s.rdb.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), data, 0)
	pipe.SAdd(ctx, indexKey(collection), id)
	pipe.Publish(ctx, changeChannel(collection), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, indexKey(collection), id)
	pipe.Publish(ctx, changeChannel(collection), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Query fetches the whole collection and evaluates the predicate locally;
// Redis has no server-side filter over JSON fields.
func (s *Store) Query(ctx context.Context, q store.Query) (store.Snapshot, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey(q.Collection)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return store.Snapshot{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(q.Collection, id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]store.Document, 0, len(ids))
	for i, v := range values {
		// The index can briefly reference a deleted document.
		str, ok := v.(string)
		if !ok {
			continue
		}
		docs = append(docs, store.Document{ID: ids[i], Data: []byte(str)})
	}
	return q.Apply(docs), nil
}

func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, changeChannel(q.Collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan store.Snapshot, snapshotBuffer),
	}

	initial, err := s.Query(ctx, q)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	sub.deliver(initial)

	go sub.run(ctx, s, q)
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

const snapshotBuffer = 16

type subscription struct {
	pubsub *redis.PubSub
	ch     chan store.Snapshot
	mu     sync.Mutex
	last   store.Snapshot
	seen   bool
	closed bool
	once   sync.Once
}

func (sub *subscription) Snapshots() <-chan store.Snapshot { return sub.ch }

func (sub *subscription) Close() {
	sub.once.Do(func() {
		_ = sub.pubsub.Close()
		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	})
}

// run re-evaluates the query after every change event on the collection.
// Query errors are skipped; the next event retries naturally.
func (sub *subscription) run(ctx context.Context, s *Store, q store.Query) {
	for range sub.pubsub.Channel() {
		snap, err := s.Query(ctx, q)
		if err != nil {
			continue
		}
		sub.deliver(snap)
	}
}

func (sub *subscription) deliver(snap store.Snapshot) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
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
	b.ops = append(b.ops, batchOp{collection: collection, id: id, data: data})
	return b
}

func (b *batch) Delete(collection, id string) store.WriteBatch {
	b.ops = append(b.ops, batchOp{collection: collection, id: id})
	return b
}

// Commit submits every write in one MULTI/EXEC transaction, then one change
// event per touched collection.
func (b *batch) Commit(ctx context.Context) error {
	pipe := b.store.rdb.TxPipeline()
	touched := make(map[string]struct{})
	for _, op := range b.ops {
		if op.data == nil {
			pipe.Del(ctx, docKey(op.collection, op.id))
			pipe.SRem(ctx, indexKey(op.collection), op.id)
		} else {
			pipe.Set(ctx, docKey(op.collection, op.id), op.data, 0)
			pipe.SAdd(ctx, indexKey(op.collection), op.id)
		}
		touched[op.collection] = struct{}{}
	}
	for collection := range touched {
		pipe.Publish(ctx, changeChannel(collection), "batch")
	}
	_, err := pipe.Exec(ctx)
	return err
}
