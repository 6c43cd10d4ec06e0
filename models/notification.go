// Package models contains data structures for the application's domain models.
package models

import "time"

// NotificationType identifies the domain event that produced a notification.
type NotificationType string

const (
	// NotificationFriendRequest is emitted to the addressee of a new friend request.
	NotificationFriendRequest NotificationType = "friendRequest"
	// NotificationFriendAccepted is emitted to the original requester on acceptance.
	NotificationFriendAccepted NotificationType = "friendAccepted"
	// NotificationNewMessage is emitted to every conversation participant
	// except the sender.
	NotificationNewMessage NotificationType = "newMessage"
	// NotificationGameInvite is emitted to a user invited to a game.
	NotificationGameInvite NotificationType = "gameInvite"
)

// Notification is an auxiliary record created only as a side effect of
// another entity's mutation. IsRead and ActionTaken are independently
// settable and move false to true only.
type Notification struct {
	ID                    string           `json:"id"`
	RecipientID           string           `json:"recipientId"`
	Type                  NotificationType `json:"type"`
	Title                 string           `json:"title"`
	Message               string           `json:"message"`
	Timestamp             time.Time        `json:"timestamp"`
	IsRead                bool             `json:"isRead"`
	ActionTaken           bool             `json:"actionTaken"`
	FromUserID            string           `json:"fromUserId,omitempty"`
	FromUserName          string           `json:"fromUserName,omitempty"`
	RelatedFriendshipID   string           `json:"relatedFriendshipId,omitempty"`
	RelatedGameID         string           `json:"relatedGameId,omitempty"`
	RelatedConversationID string           `json:"relatedConversationId,omitempty"`
}
