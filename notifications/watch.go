package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"socialkit/models"
	"socialkit/store"
)

const watchBuffer = 16

// Watch is a live view of one recipient's notification inbox, newest first.
type Watch struct {
	sub     store.Subscription
	updates chan []models.Notification
	once    sync.Once
}

// WatchInbox opens a live view of the recipient's notifications. The caller
// must Close the watch when its owning scope ends.
func (s *Service) WatchInbox(ctx context.Context, recipientID string) (*Watch, error) {
	if recipientID == "" {
		return nil, models.NewInvalidInputError("recipient identity must not be empty")
	}
	sub, err := s.store.Subscribe(ctx, inboxQuery(recipientID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	w := &Watch{
		sub:     sub,
		updates: make(chan []models.Notification, watchBuffer),
	}
	go func() {
		defer close(w.updates)
		for snap := range sub.Snapshots() {
			w.publish(decodeSnapshot(snap, s.log))
		}
	}()
	return w, nil
}

// Updates delivers the inbox after every relevant change. The channel is
// closed once the watch ends.
func (w *Watch) Updates() <-chan []models.Notification { return w.updates }

// Close releases the underlying subscription. Safe to call more than once.
func (w *Watch) Close() {
	w.once.Do(w.sub.Close)
}

func (w *Watch) publish(view []models.Notification) {
	for {
		select {
		case w.updates <- view:
			return
		default:
			select {
			case <-w.updates:
			default:
			}
		}
	}
}

func inboxQuery(recipientID string) store.Query {
	return store.Query{
		Collection: collection,
		OrderBy:    "timestamp",
		Descending: true,
	}.Where("recipientId", store.OpEqual, recipientID)
}

func decodeSnapshot(snap store.Snapshot, log logrus.FieldLogger) []models.Notification {
	out := make([]models.Notification, 0, len(snap))
	for _, doc := range snap {
		var n models.Notification
		if err := json.Unmarshal(doc.Data, &n); err != nil {
			if log != nil {
				log.WithError(err).WithField("doc_id", doc.ID).Warn("skipping undecodable notification")
			}
			continue
		}
		out = append(out, n)
	}
	return out
}

// preview truncates message text for inclusion in a notification body.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "..."
}
