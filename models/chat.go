// Package models contains data structures for the application's domain models.
package models

import "time"

// ConversationKind distinguishes direct, group, and game-broadcast conversations.
type ConversationKind string

const (
	// ConversationDirect is a one-to-one conversation, unique per unordered
	// pair of participants.
	ConversationDirect ConversationKind = "direct"
	// ConversationGroup is a named multi-party conversation.
	ConversationGroup ConversationKind = "group"
	// ConversationGameBroadcast is a conversation attached to a game.
	ConversationGameBroadcast ConversationKind = "gameBroadcast"
)

// Conversation represents a chat conversation.
type Conversation struct {
	ID               string            `json:"id"`
	Kind             ConversationKind  `json:"kind"`
	ParticipantIDs   []string          `json:"participantIds"`
	ParticipantNames map[string]string `json:"participantNames"`
	LastMessage      string            `json:"lastMessage,omitempty"`
	LastMessageAt    *time.Time        `json:"lastMessageAt,omitempty"`
	LastSenderID     string            `json:"lastSenderId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	CreatedBy        string            `json:"createdBy"`
	GroupName        string            `json:"groupName,omitempty"`
	GameID           string            `json:"gameId,omitempty"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsDirectBetween reports whether the conversation is the direct conversation
// for the unordered pair {a, b}.
func (c *Conversation) IsDirectBetween(a, b string) bool {
	if c.Kind != ConversationDirect || len(c.ParticipantIDs) != 2 {
		return false
	}
	return (c.ParticipantIDs[0] == a && c.ParticipantIDs[1] == b) ||
		(c.ParticipantIDs[0] == b && c.ParticipantIDs[1] == a)
}

// Message represents a chat message. Immutable once written except for
// ReadBy, which only grows.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	ReadBy         []string  `json:"readBy"`
}

// ReadByUser reports whether readerID has already acknowledged the message.
func (m *Message) ReadByUser(readerID string) bool {
	for _, id := range m.ReadBy {
		if id == readerID {
			return true
		}
	}
	return false
}
