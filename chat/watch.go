package chat

import (
	"context"
	"sync"

	"socialkit/models"
	"socialkit/store"
)

const watchBuffer = 16

// ConversationWatch is a live, ordered view of a user's conversation list.
type ConversationWatch struct {
	sub     store.Subscription
	updates chan []models.Conversation
	once    sync.Once
}

// WatchConversations opens a live view of every conversation userID
// participates in, newest activity first. The caller must Close the watch
// when its owning scope ends.
func (s *Service) WatchConversations(ctx context.Context, userID string) (*ConversationWatch, error) {
	if userID == "" {
		return nil, models.NewInvalidInputError("user identity must not be empty")
	}
	sub, err := s.store.Subscribe(ctx, conversationsQuery(userID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	w := &ConversationWatch{
		sub:     sub,
		updates: make(chan []models.Conversation, watchBuffer),
	}
	go func() {
		defer close(w.updates)
		for snap := range sub.Snapshots() {
			publish(w.updates, decodeConversations(snap, s.log))
		}
	}()
	return w, nil
}

// Updates delivers the conversation list after every relevant change. The
// channel is closed once the watch ends.
func (w *ConversationWatch) Updates() <-chan []models.Conversation { return w.updates }

// Close releases the underlying subscription. Safe to call more than once.
func (w *ConversationWatch) Close() {
	w.once.Do(w.sub.Close)
}

// MessageWatch is a live view of one conversation's messages in send order.
type MessageWatch struct {
	sub     store.Subscription
	updates chan []models.Message
	once    sync.Once
}

// WatchMessages opens a live view of the conversation's messages.
func (s *Service) WatchMessages(ctx context.Context, conversationID string) (*MessageWatch, error) {
	if conversationID == "" {
		return nil, models.NewInvalidInputError("conversation ID must not be empty")
	}
	sub, err := s.store.Subscribe(ctx, messagesQuery(conversationID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	w := &MessageWatch{
		sub:     sub,
		updates: make(chan []models.Message, watchBuffer),
	}
	go func() {
		defer close(w.updates)
		for snap := range sub.Snapshots() {
			publish(w.updates, decodeMessages(snap, s.log))
		}
	}()
	return w, nil
}

// Updates delivers the message list after every relevant change. The channel
// is closed once the watch ends.
func (w *MessageWatch) Updates() <-chan []models.Message { return w.updates }

// Close releases the underlying subscription. Safe to call more than once.
func (w *MessageWatch) Close() {
	w.once.Do(w.sub.Close)
}

// publish never blocks the decoder; a lagging consumer loses the oldest
// pending view, not the newest.
func publish[T any](ch chan []T, view []T) {
	for {
		select {
		case ch <- view:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
