package models

import "time"

// Partial-update structs. Each field is optional; Apply copies only the set
// fields onto the target, preserving "update only what's set" semantics
// without stringly-typed field maps. Callers read the current document,
// apply, and write the whole document back.

// FriendshipUpdate is a partial update for a Friendship record.
type FriendshipUpdate struct {
	Status      *FriendshipStatus
	RequesterID *string
	AcceptedAt  *time.Time
}

// Apply copies the set fields onto f.
func (u FriendshipUpdate) Apply(f *Friendship) {
	if u.Status != nil {
		f.Status = *u.Status
	}
	if u.RequesterID != nil {
		f.RequesterID = *u.RequesterID
	}
	if u.AcceptedAt != nil {
		f.AcceptedAt = u.AcceptedAt
	}
}

// ConversationUpdate is a partial update for a Conversation record.
type ConversationUpdate struct {
	LastMessage   *string
	LastMessageAt *time.Time
	LastSenderID  *string
	GroupName     *string
}

// Apply copies the set fields onto c.
func (u ConversationUpdate) Apply(c *Conversation) {
	if u.LastMessage != nil {
		c.LastMessage = *u.LastMessage
	}
	if u.LastMessageAt != nil {
		c.LastMessageAt = u.LastMessageAt
	}
	if u.LastSenderID != nil {
		c.LastSenderID = *u.LastSenderID
	}
	if u.GroupName != nil {
		c.GroupName = *u.GroupName
	}
}

// MessageUpdate is a partial update for a Message record. ReadBy is a union,
// never a replacement: the acknowledgement set only grows.
type MessageUpdate struct {
	AddReadBy []string
}

// Apply unions AddReadBy into m.ReadBy, skipping readers already present.
func (u MessageUpdate) Apply(m *Message) {
	for _, id := range u.AddReadBy {
		if !m.ReadByUser(id) {
			m.ReadBy = append(m.ReadBy, id)
		}
	}
}

// NotificationUpdate is a partial update for a Notification record.
type NotificationUpdate struct {
	IsRead      *bool
	ActionTaken *bool
}

// Apply copies the set fields onto n.
func (u NotificationUpdate) Apply(n *Notification) {
	if u.IsRead != nil {
		n.IsRead = *u.IsRead
	}
	if u.ActionTaken != nil {
		n.ActionTaken = *u.ActionTaken
	}
}
