// Package notifications implements best-effort notification fan-out and the
// notification inbox. Fan-out methods return nothing: they are detached side
// effects whose failures land in the log, never in the triggering operation.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"socialkit/models"
	"socialkit/store"
)

const collection = "notifications"

// previewLimit caps the message text carried inside a newMessage notification.
const previewLimit = 80

// Service writes and reads notification records. It satisfies the Notifier
// interfaces of the friends and chat packages.
type Service struct {
	store store.Client
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

// NewService builds a Service.
func NewService(st store.Client, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store: st,
		log:   log.WithField("component", "notifications"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// FriendRequested notifies the addressee of a new friend request.
func (s *Service) FriendRequested(ctx context.Context, toUserID, fromUserID, fromUserName, friendshipID string) {
	s.send(ctx, &models.Notification{
		RecipientID:         toUserID,
		Type:                models.NotificationFriendRequest,
		Title:               "New Friend Request",
		Message:             fmt.Sprintf("%s sent you a friend request", fromUserName),
		FromUserID:          fromUserID,
		FromUserName:        fromUserName,
		RelatedFriendshipID: friendshipID,
	})
}

// FriendAccepted notifies the original requester that the request was accepted.
func (s *Service) FriendAccepted(ctx context.Context, toUserID, fromUserID, fromUserName, friendshipID string) {
	s.send(ctx, &models.Notification{
		RecipientID:         toUserID,
		Type:                models.NotificationFriendAccepted,
		Title:               "Friend Request Accepted",
		Message:             fmt.Sprintf("%s accepted your friend request", fromUserName),
		FromUserID:          fromUserID,
		FromUserName:        fromUserName,
		RelatedFriendshipID: friendshipID,
	})
}

// MessageSent notifies every conversation participant except the sender.
// Partial delivery is accepted: a failure aborts the remaining recipients
// and nothing already sent is rolled back.
func (s *Service) MessageSent(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	title := msg.SenderName
	if conv.Kind != models.ConversationDirect && conv.GroupName != "" {
		title = conv.GroupName
	}
	for _, participantID := range conv.ParticipantIDs {
		if participantID == msg.SenderID {
			continue
		}
		err := s.deliver(ctx, &models.Notification{
			RecipientID:           participantID,
			Type:                  models.NotificationNewMessage,
			Title:                 title,
			Message:               preview(msg.Text),
			FromUserID:            msg.SenderID,
			FromUserName:          msg.SenderName,
			RelatedConversationID: conv.ID,
		})
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"conversation_id": conv.ID,
				"recipient_id":    participantID,
			}).Warn("message notification fan-out aborted")
			return
		}
	}
}

// GameInvite notifies a user invited to a game.
func (s *Service) GameInvite(ctx context.Context, recipientID, fromUserID, fromUserName, gameID, gameName string) {
	s.send(ctx, &models.Notification{
		RecipientID:   recipientID,
		Type:          models.NotificationGameInvite,
		Title:         "Game Invite",
		Message:       fmt.Sprintf("%s invited you to %s", fromUserName, gameName),
		FromUserID:    fromUserID,
		FromUserName:  fromUserName,
		RelatedGameID: gameID,
	})
}

// send is the single-recipient failure boundary: deliver, and on error log
// and move on.
func (s *Service) send(ctx context.Context, n *models.Notification) {
	if err := s.deliver(ctx, n); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"type":         n.Type,
			"recipient_id": n.RecipientID,
		}).Warn("notification fan-out failed")
	}
}

func (s *Service) deliver(ctx context.Context, n *models.Notification) error {
	n.ID = s.newID()
	n.Timestamp = s.now().UTC()
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, collection, n.ID, data)
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, recipientID string) ([]models.Notification, error) {
	snap, err := s.store.Query(ctx, inboxQuery(recipientID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	return decodeSnapshot(snap, s.log), nil
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	q := store.Query{Collection: collection}.
		Where("recipientId", store.OpEqual, recipientID).
		Where("isRead", store.OpEqual, false)
	snap, err := s.store.Query(ctx, q)
	if err != nil {
		return 0, models.NewStoreError(err)
	}
	return len(snap), nil
}

// MarkRead sets isRead on one notification. Monotonic: already-read is a no-op.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	isRead := true
	return s.update(ctx, id, models.NotificationUpdate{IsRead: &isRead})
}

// MarkActionTaken sets actionTaken on one notification.
func (s *Service) MarkActionTaken(ctx context.Context, id string) error {
	actionTaken := true
	return s.update(ctx, id, models.NotificationUpdate{ActionTaken: &actionTaken})
}

func (s *Service) update(ctx context.Context, id string, u models.NotificationUpdate) error {
	doc, err := s.store.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewNotFoundError("notification", id)
	}
	if err != nil {
		return models.NewStoreError(err)
	}
	var n models.Notification
	if err := json.Unmarshal(doc.Data, &n); err != nil {
		return models.NewStoreError(err)
	}
	u.Apply(&n)
	data, err := json.Marshal(&n)
	if err != nil {
		return models.NewStoreError(err)
	}
	if err := s.store.Set(ctx, collection, n.ID, data); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

// MarkAllRead sets isRead on every unread notification of the recipient,
// committed as one atomic batch.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) error {
	q := store.Query{Collection: collection}.
		Where("recipientId", store.OpEqual, recipientID).
		Where("isRead", store.OpEqual, false)
	snap, err := s.store.Query(ctx, q)
	if err != nil {
		return models.NewStoreError(err)
	}
	if len(snap) == 0 {
		return nil
	}
	batch := s.store.Batch()
	for _, n := range decodeSnapshot(snap, s.log) {
		n.IsRead = true
		data, err := json.Marshal(&n)
		if err != nil {
			return models.NewStoreError(err)
		}
		batch.Set(collection, n.ID, data)
	}
	if err := batch.Commit(ctx); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}
