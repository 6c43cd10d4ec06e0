package friends

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"socialkit/models"
	"socialkit/store"
)

const collection = "friendships"

// Notifier receives friendship domain events for fan-out. Implementations
// must be best-effort: the methods return nothing, and a delivery failure
// must never fail the triggering operation.
type Notifier interface {
	FriendRequested(ctx context.Context, toUserID, fromUserID, fromUserName, friendshipID string)
	FriendAccepted(ctx context.Context, toUserID, fromUserID, fromUserName, friendshipID string)
}

// Service drives the friendship state machine against the store. All guards
// are enforced client-side before the write; a racing concurrent writer can
// still slip past a guard, which last-write-wins makes a tolerated,
// non-fatal inconsistency. No distributed lock is taken.
type Service struct {
	store    store.Client
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService builds a Service. notifier may be nil to disable fan-out.
func NewService(st store.Client, notifier Notifier, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		log:      log.WithField("component", "friends"),
		now:      time.Now,
	}
}

// SendRequest creates a pending friendship from fromID to toID. Fails with
// Conflict if a request or friendship already exists and with Forbidden if
// either party has blocked the other. fromName rides along for notification
// display only.
func (s *Service) SendRequest(ctx context.Context, fromID, fromName, toID string) (*models.Friendship, error) {
	key, err := PairKey(fromID, toID)
	if err != nil {
		return nil, err
	}

	existing, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.FriendshipStatusBlocked:
			return nil, models.NewForbiddenError("cannot send a friend request to this user")
		case models.FriendshipStatusAccepted:
			return nil, models.NewConflictError("you are already friends")
		default:
			if existing.RequesterID == fromID {
				return nil, models.NewConflictError("friend request already sent")
			}
			return nil, models.NewConflictError("this user already sent you a friend request")
		}
	}

	low, high := OrderPair(fromID, toID)
	friendship := &models.Friendship{
		ID:          key,
		UserLow:     low,
		UserHigh:    high,
		Status:      models.FriendshipStatusPending,
		RequesterID: fromID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.put(ctx, friendship); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.FriendRequested(ctx, toID, fromID, fromName, friendship.ID)
	}
	s.log.WithFields(logrus.Fields{
		"friendship_id": friendship.ID,
		"requester_id":  fromID,
	}).Info("friend request sent")
	return friendship, nil
}

// Accept transitions a pending friendship to accepted. Only the party that
// did not send the request may accept; the requester gets Forbidden. Guards
// are re-validated on every call, so retrying a failed accept is safe.
func (s *Service) Accept(ctx context.Context, id, actingUserID, actingUserName string) (*models.Friendship, error) {
	friendship, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if friendship == nil {
		return nil, models.NewNotFoundError("friendship", id)
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, models.NewConflictError("friend request is not pending")
	}
	if !friendship.Involves(actingUserID) {
		return nil, models.NewForbiddenError("you are not a party to this friendship")
	}
	if friendship.RequesterID == actingUserID {
		return nil, models.NewForbiddenError("you cannot accept your own friend request")
	}

	accepted := models.FriendshipStatusAccepted
	acceptedAt := s.now().UTC()
	update := models.FriendshipUpdate{Status: &accepted, AcceptedAt: &acceptedAt}
	update.Apply(friendship)
	if err := s.put(ctx, friendship); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.FriendAccepted(ctx, friendship.RequesterID, actingUserID, actingUserName, friendship.ID)
	}
	s.log.WithField("friendship_id", friendship.ID).Info("friend request accepted")
	return friendship, nil
}

// Reject deletes a pending request. The record is removed outright, so the
// requester may send a fresh request later.
func (s *Service) Reject(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

// Remove deletes an accepted friendship. Same operation as Reject; the
// distinction is caller-side framing only.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

// Block overwrites the canonical record with a blocked status regardless of
// its prior state. Block always wins and is idempotent.
func (s *Service) Block(ctx context.Context, actorID, targetID string) (*models.Friendship, error) {
	key, err := PairKey(actorID, targetID)
	if err != nil {
		return nil, err
	}
	low, high := OrderPair(actorID, targetID)
	friendship := &models.Friendship{
		ID:          key,
		UserLow:     low,
		UserHigh:    high,
		Status:      models.FriendshipStatusBlocked,
		RequesterID: actorID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.put(ctx, friendship); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"friendship_id": friendship.ID,
		"actor_id":      actorID,
	}).Info("user blocked")
	return friendship, nil
}

// Unblock deletes the blocked record, returning the pair to absent.
func (s *Service) Unblock(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

// Status is a single point read by canonical key. It returns
// FriendshipStatusNone and a nil record when no record exists.
func (s *Service) Status(ctx context.Context, a, b string) (models.FriendshipStatus, *models.Friendship, error) {
	key, err := PairKey(a, b)
	if err != nil {
		return "", nil, err
	}
	friendship, err := s.get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if friendship == nil {
		return models.FriendshipStatusNone, nil, nil
	}
	return friendship.Status, friendship, nil
}

// Friends returns the accepted friendships of userID as a one-shot read,
// merging the two role-indexed queries.
func (s *Service) Friends(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.queryBothSides(ctx, userID, models.FriendshipStatusAccepted, nil)
}

// PendingRequests returns the pending requests addressed to userID.
func (s *Service) PendingRequests(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.queryBothSides(ctx, userID, models.FriendshipStatusPending,
		func(f models.Friendship) bool { return f.RequesterID != userID })
}

// SentRequests returns the pending requests userID has sent.
func (s *Service) SentRequests(ctx context.Context, userID string) ([]models.Friendship, error) {
	return s.queryBothSides(ctx, userID, models.FriendshipStatusPending,
		func(f models.Friendship) bool { return f.RequesterID == userID })
}

func (s *Service) queryBothSides(ctx context.Context, userID string, status models.FriendshipStatus, keep func(models.Friendship) bool) ([]models.Friendship, error) {
	if err := validateIdentity(userID); err != nil {
		return nil, err
	}
	lowSnap, err := s.store.Query(ctx, sideQuery("userLow", userID, status))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	highSnap, err := s.store.Query(ctx, sideQuery("userHigh", userID, status))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	return unionFriendships(decodeSnapshot(lowSnap, s.log), decodeSnapshot(highSnap, s.log), keep), nil
}

// sideQuery builds one half of the friend-list predicate. No single store
// index supports "userLow=uid OR userHigh=uid", hence two queries.
func sideQuery(roleField, userID string, status models.FriendshipStatus) store.Query {
	return store.Query{Collection: collection}.
		Where(roleField, store.OpEqual, userID).
		Where("status", store.OpEqual, string(status))
}

func (s *Service) get(ctx context.Context, id string) (*models.Friendship, error) {
	doc, err := s.store.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	var friendship models.Friendship
	if err := json.Unmarshal(doc.Data, &friendship); err != nil {
		return nil, models.NewStoreError(err)
	}
	return &friendship, nil
}

func (s *Service) put(ctx context.Context, f *models.Friendship) error {
	data, err := json.Marshal(f)
	if err != nil {
		return models.NewStoreError(err)
	}
	if err := s.store.Set(ctx, collection, f.ID, data); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

func (s *Service) delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}
