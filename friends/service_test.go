package friends

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialkit/models"
	"socialkit/store/memstore"
)

type fanOutEvent struct {
	toUserID     string
	fromUserID   string
	friendshipID string
}

// notifierRecorder captures fan-out calls for assertions.
type notifierRecorder struct {
	mu        sync.Mutex
	requested []fanOutEvent
	accepted  []fanOutEvent
}

func (r *notifierRecorder) FriendRequested(_ context.Context, toUserID, fromUserID, _, friendshipID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested = append(r.requested, fanOutEvent{toUserID, fromUserID, friendshipID})
}

func (r *notifierRecorder) FriendAccepted(_ context.Context, toUserID, fromUserID, _, friendshipID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, fanOutEvent{toUserID, fromUserID, friendshipID})
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *notifierRecorder) {
	t.Helper()
	st := memstore.New()
	rec := &notifierRecorder{}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewService(st, rec, log), st, rec
}

func TestSendRequestCreatesPending(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", f.ID)
	assert.Equal(t, "alice", f.UserLow)
	assert.Equal(t, "bob", f.UserHigh)
	assert.Equal(t, models.FriendshipStatusPending, f.Status)
	assert.Equal(t, "bob", f.RequesterID)
	assert.Nil(t, f.AcceptedAt)

	require.Len(t, rec.requested, 1)
	assert.Equal(t, "alice", rec.requested[0].toUserID)
	assert.Equal(t, "bob", rec.requested[0].fromUserID)
}

func TestSendRequestDuplicateConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))

	// Exactly one pending record exists.
	status, f, err := svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusPending, status)
	assert.Equal(t, "bob", f.RequesterID)
}

func TestSendRequestCrossedRequestConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "alice", "Alice", "bob")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
}

func TestSendRequestToFriendConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, f.ID, "alice", "Alice")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
}

func TestSendRequestToBlockedForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Block(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.Error(t, err)
	assert.True(t, models.IsForbidden(err))
}

func TestAcceptByRequesterForbidden(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, f.ID, "bob", "Bob")
	require.Error(t, err)
	assert.True(t, models.IsForbidden(err))
	assert.Empty(t, rec.accepted)
}

func TestAcceptByAddressee(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, f.ID, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	// The original requester is notified.
	require.Len(t, rec.accepted, 1)
	assert.Equal(t, "bob", rec.accepted[0].toUserID)
	assert.Equal(t, "alice", rec.accepted[0].fromUserID)

	status, _, err := svc.Status(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusAccepted, status)
}

func TestAcceptByStrangerForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, f.ID, "mallory", "Mallory")
	require.Error(t, err)
	assert.True(t, models.IsForbidden(err))
}

func TestAcceptMissingNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Accept(context.Background(), "alice_bob", "alice", "Alice")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestAcceptNonPendingConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, f.ID, "alice", "Alice")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, f.ID, "alice", "Alice")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
}

func TestRejectDeletesRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, f.ID))

	status, _, err := svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusNone, status)

	// A fresh request is possible after rejection.
	_, err = svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
}

func TestBlockAlwaysWins(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, svc *Service)
	}{
		{name: "from absent", setup: func(*testing.T, *Service) {}},
		{name: "from pending", setup: func(t *testing.T, svc *Service) {
			_, err := svc.SendRequest(context.Background(), "bob", "Bob", "alice")
			require.NoError(t, err)
		}},
		{name: "from accepted", setup: func(t *testing.T, svc *Service) {
			ctx := context.Background()
			f, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
			require.NoError(t, err)
			_, err = svc.Accept(ctx, f.ID, "alice", "Alice")
			require.NoError(t, err)
		}},
		{name: "already blocked", setup: func(t *testing.T, svc *Service) {
			_, err := svc.Block(context.Background(), "alice", "bob")
			require.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			tt.setup(t, svc)

			f, err := svc.Block(context.Background(), "alice", "bob")
			require.NoError(t, err)
			assert.Equal(t, models.FriendshipStatusBlocked, f.Status)
			assert.Equal(t, "alice", f.RequesterID)

			status, _, err := svc.Status(context.Background(), "alice", "bob")
			require.NoError(t, err)
			assert.Equal(t, models.FriendshipStatusBlocked, status)
		})
	}
}

func TestUnblockReturnsToAbsent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Block(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Unblock(ctx, f.ID))

	status, _, err := svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusNone, status)

	_, err = svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
}

func TestStatusAbsentIsNone(t *testing.T) {
	svc, _, _ := newTestService(t)

	status, f, err := svc.Status(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusNone, status)
	assert.Nil(t, f)
}

func TestPendingAndSentRequests(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "bob", "Bob", "alice")
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "carol", "Carol", "alice")
	require.NoError(t, err)

	incoming, err := svc.PendingRequests(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, incoming, 2)

	sent, err := svc.SentRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "bob", sent[0].RequesterID)

	none, err := svc.PendingRequests(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFriendsListMergesBothRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// bob sits on the high side of one pair and the low side of the other.
	f1, err := svc.SendRequest(ctx, "alice", "Alice", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, f1.ID, "bob", "Bob")
	require.NoError(t, err)

	f2, err := svc.SendRequest(ctx, "carol", "Carol", "bob")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, f2.ID, "bob", "Bob")
	require.NoError(t, err)

	list, err := svc.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	others := []string{list[0].OtherUser("bob"), list[1].OtherUser("bob")}
	assert.ElementsMatch(t, []string{"alice", "carol"}, others)
}
