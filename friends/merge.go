package friends

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"socialkit/models"
	"socialkit/store"
)

const watchBuffer = 16

// MergedWatch is the live union of the two role-indexed friendship
// subscriptions. Each side holds the last full snapshot its subscription
// delivered; a delivery on one side never stales the other. Until both
// sides have delivered once, the union is partial and callers must treat
// it as provisional.
type MergedWatch struct {
	updates chan []models.Friendship
	done    chan struct{}
	subLow  store.Subscription
	subHigh store.Subscription
	once    sync.Once
}

// Watch opens a merged subscription over every friendship of userID with
// the given status. keep optionally filters the union (nil keeps all).
// Close releases both underlying subscriptions; releasing only one would
// leak a background listener.
func (s *Service) Watch(ctx context.Context, userID string, status models.FriendshipStatus, keep func(models.Friendship) bool) (*MergedWatch, error) {
	if err := validateIdentity(userID); err != nil {
		return nil, err
	}

	subLow, err := s.store.Subscribe(ctx, sideQuery("userLow", userID, status))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	subHigh, err := s.store.Subscribe(ctx, sideQuery("userHigh", userID, status))
	if err != nil {
		subLow.Close()
		return nil, models.NewStoreError(err)
	}

	w := &MergedWatch{
		updates: make(chan []models.Friendship, watchBuffer),
		done:    make(chan struct{}),
		subLow:  subLow,
		subHigh: subHigh,
	}
	go w.run(keep, s.log)
	return w, nil
}

// WatchFriends is the merged live friend list of userID.
func (s *Service) WatchFriends(ctx context.Context, userID string) (*MergedWatch, error) {
	return s.Watch(ctx, userID, models.FriendshipStatusAccepted, nil)
}

// WatchIncomingRequests is the merged live list of pending requests
// addressed to userID.
func (s *Service) WatchIncomingRequests(ctx context.Context, userID string) (*MergedWatch, error) {
	return s.Watch(ctx, userID, models.FriendshipStatusPending,
		func(f models.Friendship) bool { return f.RequesterID != userID })
}

// Updates delivers the merged friendship set after every change on either
// side. The channel is closed once the watch ends.
func (w *MergedWatch) Updates() <-chan []models.Friendship { return w.updates }

// Close tears down both subscriptions. Safe to call more than once.
func (w *MergedWatch) Close() {
	w.once.Do(func() {
		w.subLow.Close()
		w.subHigh.Close()
		close(w.done)
	})
}

// run is the reducer: two input snapshot streams, one output union stream.
// Each slot is overwritten only by its own subscription, then the union is
// republished. Duplicate snapshots republish nothing.
func (w *MergedWatch) run(keep func(models.Friendship) bool, log logrus.FieldLogger) {
	defer close(w.updates)

	lowCh := w.subLow.Snapshots()
	highCh := w.subHigh.Snapshots()
	var sideLow, sideHigh []models.Friendship
	var last []models.Friendship
	published := false

	for lowCh != nil || highCh != nil {
		select {
		case snap, ok := <-lowCh:
			if !ok {
				lowCh = nil
				continue
			}
			sideLow = decodeSnapshot(snap, log)
		case snap, ok := <-highCh:
			if !ok {
				highCh = nil
				continue
			}
			sideHigh = decodeSnapshot(snap, log)
		case <-w.done:
			return
		}

		union := unionFriendships(sideLow, sideHigh, keep)
		if published && reflect.DeepEqual(union, last) {
			continue
		}
		last = union
		published = true
		w.publish(union)
	}
}

// publish never blocks the reducer; if the consumer lags, the oldest
// pending union is dropped in favor of the newest.
func (w *MergedWatch) publish(union []models.Friendship) {
	for {
		select {
		case w.updates <- union:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}

func decodeSnapshot(snap store.Snapshot, log logrus.FieldLogger) []models.Friendship {
	out := make([]models.Friendship, 0, len(snap))
	for _, doc := range snap {
		var f models.Friendship
		if err := json.Unmarshal(doc.Data, &f); err != nil {
			if log != nil {
				log.WithError(err).WithField("doc_id", doc.ID).Warn("skipping undecodable friendship")
			}
			continue
		}
		out = append(out, f)
	}
	return out
}

// unionFriendships merges the two sides keyed by record ID and returns them
// sorted by ID. The two key ranges are disjoint by construction, but keying
// by ID keeps the union idempotent regardless.
func unionFriendships(sideLow, sideHigh []models.Friendship, keep func(models.Friendship) bool) []models.Friendship {
	byID := make(map[string]models.Friendship, len(sideLow)+len(sideHigh))
	for _, f := range sideLow {
		byID[f.ID] = f
	}
	for _, f := range sideHigh {
		byID[f.ID] = f
	}
	out := make([]models.Friendship, 0, len(byID))
	for _, f := range byID {
		if keep == nil || keep(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
