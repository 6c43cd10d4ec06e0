// Package models contains data structures for the application's domain models.
package models

import "time"

// FriendshipStatus represents the status of a friendship record.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending friendship request.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an accepted friendship.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	// FriendshipStatusBlocked indicates one party has blocked the other.
	FriendshipStatusBlocked FriendshipStatus = "blocked"
	// FriendshipStatusNone is returned by status queries when no record exists.
	// It is never persisted.
	FriendshipStatusNone FriendshipStatus = "none"
)

// Friendship represents the single relationship record between two users.
// UserLow < UserHigh lexicographically, so the pair has exactly one record
// regardless of which party created it. ID is derived from the pair, never
// generated.
type Friendship struct {
	ID          string           `json:"id"`
	UserLow     string           `json:"userLow"`
	UserHigh    string           `json:"userHigh"`
	Status      FriendshipStatus `json:"status"`
	RequesterID string           `json:"requesterId"`
	CreatedAt   time.Time        `json:"createdAt"`
	AcceptedAt  *time.Time       `json:"acceptedAt,omitempty"`
}

// OtherUser returns the party on the opposite side of the record from userID.
func (f *Friendship) OtherUser(userID string) string {
	if f.UserLow == userID {
		return f.UserHigh
	}
	return f.UserLow
}

// Involves reports whether userID is one of the two parties.
func (f *Friendship) Involves(userID string) bool {
	return f.UserLow == userID || f.UserHigh == userID
}
