// Package chat implements conversations, messages, and read receipts:
// idempotent direct-conversation resolution, group and game-broadcast
// conversations, message send with notification fan-out, and the
// read-receipt tracker.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"socialkit/models"
	"socialkit/store"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// Notifier receives message events for fan-out. Best-effort: a delivery
// failure must never fail the send that triggered it.
type Notifier interface {
	MessageSent(ctx context.Context, conv *models.Conversation, msg *models.Message)
}

// Service drives conversations and messages against the store.
type Service struct {
	store    store.Client
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
}

// NewService builds a Service. notifier may be nil to disable fan-out.
func NewService(st store.Client, notifier Notifier, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		log:      log.WithField("component", "chat"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// GetOrCreateDirect resolves the direct conversation for the unordered pair
// {userA, userB}, creating it on first contact. Check-then-act with no
// transactional guard: concurrent first-contact callers can race and create
// two conversations for the same pair. The store offers no cross-document
// uniqueness constraint, so the duplicate surfaces as split history rather
// than an error.
func (s *Service) GetOrCreateDirect(ctx context.Context, userA, userAName, userB, userBName string) (*models.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, models.NewInvalidInputError("participant identities must not be empty")
	}
	if userA == userB {
		return nil, models.NewInvalidInputError("a direct conversation needs two distinct participants")
	}

	q := store.Query{Collection: conversationsCollection}.
		Where("participantIds", store.OpContains, userA).
		Where("kind", store.OpEqual, string(models.ConversationDirect))
	snap, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	for _, doc := range snap {
		var conv models.Conversation
		if err := json.Unmarshal(doc.Data, &conv); err != nil {
			continue
		}
		if conv.IsDirectBetween(userA, userB) {
			return &conv, nil
		}
	}

	conv := &models.Conversation{
		ID:             s.newID(),
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{userA, userB},
		ParticipantNames: map[string]string{
			userA: userAName,
			userB: userBName,
		},
		CreatedAt: s.now().UTC(),
		CreatedBy: userA,
	}
	if err := s.putConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"created_by":      userA,
	}).Info("direct conversation created")
	return s.Conversation(ctx, conv.ID)
}

// CreateGroup creates a named group conversation. participants maps each
// member's identity to its display name and must include the creator.
func (s *Service) CreateGroup(ctx context.Context, creatorID, groupName string, participants map[string]string) (*models.Conversation, error) {
	return s.createMultiParty(ctx, models.ConversationGroup, creatorID, groupName, "", participants)
}

// CreateGameBroadcast creates the conversation attached to a game.
func (s *Service) CreateGameBroadcast(ctx context.Context, creatorID, gameID, name string, participants map[string]string) (*models.Conversation, error) {
	if gameID == "" {
		return nil, models.NewInvalidInputError("game ID must not be empty")
	}
	return s.createMultiParty(ctx, models.ConversationGameBroadcast, creatorID, name, gameID, participants)
}

func (s *Service) createMultiParty(ctx context.Context, kind models.ConversationKind, creatorID, name, gameID string, participants map[string]string) (*models.Conversation, error) {
	if creatorID == "" {
		return nil, models.NewInvalidInputError("creator identity must not be empty")
	}
	if _, ok := participants[creatorID]; !ok {
		return nil, models.NewInvalidInputError("participants must include the creator")
	}
	if len(participants) < 2 {
		return nil, models.NewInvalidInputError("a conversation needs at least two participants")
	}

	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	conv := &models.Conversation{
		ID:               s.newID(),
		Kind:             kind,
		ParticipantIDs:   ids,
		ParticipantNames: participants,
		CreatedAt:        s.now().UTC(),
		CreatedBy:        creatorID,
		GroupName:        name,
		GameID:           gameID,
	}
	if err := s.putConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"kind":            kind,
	}).Info("conversation created")
	return conv, nil
}

// Conversation reads a single conversation by ID.
func (s *Service) Conversation(ctx context.Context, id string) (*models.Conversation, error) {
	doc, err := s.store.Get(ctx, conversationsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NewNotFoundError("conversation", id)
	}
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	var conv models.Conversation
	if err := json.Unmarshal(doc.Data, &conv); err != nil {
		return nil, models.NewStoreError(err)
	}
	return &conv, nil
}

// Conversations returns every conversation userID participates in, newest
// activity first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	snap, err := s.store.Query(ctx, conversationsQuery(userID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	return decodeConversations(snap, s.log), nil
}

// SendMessage appends a message to a conversation, stamps the conversation's
// last-message fields, and fans a notification out to the other
// participants. The sender is seeded into the message's readBy set.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, senderName, text string) (*models.Message, error) {
	if text == "" {
		return nil, models.NewInvalidInputError("message text must not be empty")
	}
	conv, err := s.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, models.NewForbiddenError("only participants can send messages")
	}

	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Text:           text,
		Timestamp:      s.now().UTC(),
		ReadBy:         []string{senderID},
	}
	if err := s.putMessage(ctx, msg); err != nil {
		return nil, err
	}

	update := models.ConversationUpdate{
		LastMessage:   &msg.Text,
		LastMessageAt: &msg.Timestamp,
		LastSenderID:  &msg.SenderID,
	}
	update.Apply(conv)
	if err := s.putConversation(ctx, conv); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.MessageSent(ctx, conv, msg)
	}
	return msg, nil
}

// Messages returns the conversation's messages in send order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	snap, err := s.store.Query(ctx, messagesQuery(conversationID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	return decodeMessages(snap, s.log), nil
}

// MarkRead adds readerID to the message's readBy set. Calling it again for
// the same reader is a no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) error {
	if readerID == "" {
		return models.NewInvalidInputError("reader identity must not be empty")
	}
	doc, err := s.store.Get(ctx, messagesCollection, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewNotFoundError("message", messageID)
	}
	if err != nil {
		return models.NewStoreError(err)
	}
	var msg models.Message
	if err := json.Unmarshal(doc.Data, &msg); err != nil {
		return models.NewStoreError(err)
	}
	if msg.ReadByUser(readerID) {
		return nil
	}
	update := models.MessageUpdate{AddReadBy: []string{readerID}}
	update.Apply(&msg)
	return s.putMessage(ctx, &msg)
}

// MarkConversationRead adds readerID to every message in the conversation
// that lacks it, committed as one atomic batch.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	if readerID == "" {
		return models.NewInvalidInputError("reader identity must not be empty")
	}
	snap, err := s.store.Query(ctx, messagesQuery(conversationID))
	if err != nil {
		return models.NewStoreError(err)
	}

	batch := s.store.Batch()
	pending := 0
	for _, msg := range decodeMessages(snap, s.log) {
		if msg.ReadByUser(readerID) {
			continue
		}
		update := models.MessageUpdate{AddReadBy: []string{readerID}}
		update.Apply(&msg)
		data, err := json.Marshal(&msg)
		if err != nil {
			return models.NewStoreError(err)
		}
		batch.Set(messagesCollection, msg.ID, data)
		pending++
	}
	if pending == 0 {
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages as one
// atomic batch.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	snap, err := s.store.Query(ctx, messagesQuery(conversationID))
	if err != nil {
		return models.NewStoreError(err)
	}
	batch := s.store.Batch()
	batch.Delete(conversationsCollection, conversationID)
	for _, doc := range snap {
		batch.Delete(messagesCollection, doc.ID)
	}
	if err := batch.Commit(ctx); err != nil {
		return models.NewStoreError(err)
	}
	s.log.WithField("conversation_id", conversationID).Info("conversation deleted")
	return nil
}

func conversationsQuery(userID string) store.Query {
	return store.Query{
		Collection: conversationsCollection,
		OrderBy:    "lastMessageAt",
		Descending: true,
	}.Where("participantIds", store.OpContains, userID)
}

func messagesQuery(conversationID string) store.Query {
	return store.Query{
		Collection: messagesCollection,
		OrderBy:    "timestamp",
	}.Where("conversationId", store.OpEqual, conversationID)
}

func (s *Service) putConversation(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return models.NewStoreError(err)
	}
	if err := s.store.Set(ctx, conversationsCollection, conv.ID, data); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

func (s *Service) putMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return models.NewStoreError(err)
	}
	if err := s.store.Set(ctx, messagesCollection, msg.ID, data); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

func decodeConversations(snap store.Snapshot, log logrus.FieldLogger) []models.Conversation {
	out := make([]models.Conversation, 0, len(snap))
	for _, doc := range snap {
		var conv models.Conversation
		if err := json.Unmarshal(doc.Data, &conv); err != nil {
			if log != nil {
				log.WithError(err).WithField("doc_id", doc.ID).Warn("skipping undecodable conversation")
			}
			continue
		}
		out = append(out, conv)
	}
	return out
}

func decodeMessages(snap store.Snapshot, log logrus.FieldLogger) []models.Message {
	out := make([]models.Message, 0, len(snap))
	for _, doc := range snap {
		var msg models.Message
		if err := json.Unmarshal(doc.Data, &msg); err != nil {
			if log != nil {
				log.WithError(err).WithField("doc_id", doc.ID).Warn("skipping undecodable message")
			}
			continue
		}
		out = append(out, msg)
	}
	return out
}
