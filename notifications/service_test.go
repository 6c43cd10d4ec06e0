package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialkit/chat"
	"socialkit/friends"
	"socialkit/models"
	"socialkit/store/memstore"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newFixture(t *testing.T) (*Service, *friends.Service, *chat.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	log := quietLogger()
	notifySvc := NewService(st, log)
	friendSvc := friends.NewService(st, notifySvc, log)
	chatSvc := chat.NewService(st, notifySvc, log)
	return notifySvc, friendSvc, chatSvc, st
}

func TestFriendRequestScenario(t *testing.T) {
	notifySvc, friendSvc, _, _ := newFixture(t)
	ctx := context.Background()

	f, err := friendSvc.SendRequest(ctx, "u1", "User One", "u2")
	require.NoError(t, err)

	// u2 gains exactly one friendRequest notification from u1.
	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationFriendRequest, inbox[0].Type)
	assert.Equal(t, "u1", inbox[0].FromUserID)
	assert.Equal(t, "User One", inbox[0].FromUserName)
	assert.Equal(t, f.ID, inbox[0].RelatedFriendshipID)
	assert.False(t, inbox[0].IsRead)

	_, err = friendSvc.Accept(ctx, f.ID, "u2", "User Two")
	require.NoError(t, err)

	// u1 gains exactly one friendAccepted notification.
	inbox, err = notifySvc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationFriendAccepted, inbox[0].Type)
	assert.Equal(t, "u2", inbox[0].FromUserID)

	status, _, err := friendSvc.Status(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipStatusAccepted, status)
}

func TestGroupMessageScenario(t *testing.T) {
	notifySvc, _, chatSvc, _ := newFixture(t)
	ctx := context.Background()

	conv, err := chatSvc.CreateGroup(ctx, "u1", "crew", map[string]string{
		"u1": "User One", "u2": "User Two", "u3": "User Three",
	})
	require.NoError(t, err)

	msg, err := chatSvc.SendMessage(ctx, conv.ID, "u1", "User One", "anyone up for a game?")
	require.NoError(t, err)

	// Everyone but the sender gets exactly one newMessage notification.
	for _, recipient := range []string{"u2", "u3"} {
		inbox, err := notifySvc.List(ctx, recipient)
		require.NoError(t, err)
		require.Len(t, inbox, 1, "recipient %s", recipient)
		assert.Equal(t, models.NotificationNewMessage, inbox[0].Type)
		assert.Equal(t, "crew", inbox[0].Title)
		assert.Equal(t, conv.ID, inbox[0].RelatedConversationID)
	}
	sender, err := notifySvc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sender)

	updated, err := chatSvc.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Text, updated.LastMessage)
	assert.Equal(t, "u1", updated.LastSenderID)
	require.NotNil(t, updated.LastMessageAt)
}

// failingStore rejects writes to the notifications collection so fan-out
// failure paths can be exercised while domain writes still succeed.
type failingStore struct {
	*memstore.Store
}

var errNotificationsDown = errors.New("notifications shard unavailable")

func (f *failingStore) Set(ctx context.Context, collection, id string, data []byte) error {
	if collection == "notifications" {
		return errNotificationsDown
	}
	return f.Store.Set(ctx, collection, id, data)
}

func TestFanOutFailureDoesNotFailTriggeringOperation(t *testing.T) {
	st := &failingStore{Store: memstore.New()}
	log := quietLogger()
	notifySvc := NewService(st, log)
	friendSvc := friends.NewService(st, notifySvc, log)
	chatSvc := chat.NewService(st, notifySvc, log)
	ctx := context.Background()

	f, err := friendSvc.SendRequest(ctx, "u1", "User One", "u2")
	require.NoError(t, err, "friend request must survive fan-out failure")

	_, err = friendSvc.Accept(ctx, f.ID, "u2", "User Two")
	require.NoError(t, err, "accept must survive fan-out failure")

	conv, err := chatSvc.GetOrCreateDirect(ctx, "u1", "User One", "u2", "User Two")
	require.NoError(t, err)
	_, err = chatSvc.SendMessage(ctx, conv.ID, "u1", "User One", "hello")
	require.NoError(t, err, "message send must survive fan-out failure")

	msgs, err := chatSvc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

// partialStore lets a limited number of notification writes through before
// failing, to exercise a fan-out that dies partway down the recipient list.
type partialStore struct {
	*memstore.Store
	remaining int
}

func (p *partialStore) Set(ctx context.Context, collection, id string, data []byte) error {
	if collection == "notifications" {
		if p.remaining == 0 {
			return errNotificationsDown
		}
		p.remaining--
	}
	return p.Store.Set(ctx, collection, id, data)
}

func TestFanOutPartialFailureKeepsDeliveredNotifications(t *testing.T) {
	st := &partialStore{Store: memstore.New(), remaining: 1}
	log := quietLogger()
	notifySvc := NewService(st, log)
	chatSvc := chat.NewService(st, notifySvc, log)
	ctx := context.Background()

	conv, err := chatSvc.CreateGroup(ctx, "u1", "crew", map[string]string{
		"u1": "User One", "u2": "User Two", "u3": "User Three", "u4": "User Four",
	})
	require.NoError(t, err)

	// Recipients are visited in participant order u2, u3, u4; only the
	// first write succeeds before the store starts failing.
	_, err = chatSvc.SendMessage(ctx, conv.ID, "u1", "User One", "hello")
	require.NoError(t, err, "message send must survive partial fan-out failure")

	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationNewMessage, inbox[0].Type)

	for _, skipped := range []string{"u3", "u4"} {
		inbox, err := notifySvc.List(ctx, skipped)
		require.NoError(t, err)
		assert.Empty(t, inbox, "recipient %s", skipped)
	}
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	notifySvc, friendSvc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := friendSvc.SendRequest(ctx, "u1", "User One", "u2")
	require.NoError(t, err)
	_, err = friendSvc.SendRequest(ctx, "u3", "User Three", "u2")
	require.NoError(t, err)

	count, err := notifySvc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	require.NoError(t, notifySvc.MarkRead(ctx, inbox[0].ID))
	count, err = notifySvc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Marking again is a no-op.
	require.NoError(t, notifySvc.MarkRead(ctx, inbox[0].ID))
	count, err = notifySvc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkAllRead(t *testing.T) {
	notifySvc, friendSvc, _, _ := newFixture(t)
	ctx := context.Background()

	for _, from := range []string{"u1", "u3", "u4"} {
		_, err := friendSvc.SendRequest(ctx, from, from, "u2")
		require.NoError(t, err)
	}

	require.NoError(t, notifySvc.MarkAllRead(ctx, "u2"))
	count, err := notifySvc.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Nothing to write the second time.
	require.NoError(t, notifySvc.MarkAllRead(ctx, "u2"))
}

func TestMarkActionTaken(t *testing.T) {
	notifySvc, friendSvc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := friendSvc.SendRequest(ctx, "u1", "User One", "u2")
	require.NoError(t, err)

	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.False(t, inbox[0].ActionTaken)

	require.NoError(t, notifySvc.MarkActionTaken(ctx, inbox[0].ID))

	inbox, err = notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, inbox[0].ActionTaken)
	assert.False(t, inbox[0].IsRead, "isRead and actionTaken are independent")
}

func TestMarkReadMissingNotification(t *testing.T) {
	notifySvc, _, _, _ := newFixture(t)

	err := notifySvc.MarkRead(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}

func TestGameInvite(t *testing.T) {
	notifySvc, _, _, _ := newFixture(t)
	ctx := context.Background()

	notifySvc.GameInvite(ctx, "u2", "u1", "User One", "game-7", "Sunday Pickup")

	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationGameInvite, inbox[0].Type)
	assert.Equal(t, "game-7", inbox[0].RelatedGameID)
	assert.Contains(t, inbox[0].Message, "Sunday Pickup")
}

func TestListNewestFirst(t *testing.T) {
	notifySvc, _, _, _ := newFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	notifySvc.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	notifySvc.GameInvite(ctx, "u2", "u1", "User One", "game-1", "First")
	notifySvc.GameInvite(ctx, "u2", "u1", "User One", "game-2", "Second")

	inbox, err := notifySvc.List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "game-2", inbox[0].RelatedGameID)
	assert.Equal(t, "game-1", inbox[1].RelatedGameID)
}

func TestWatchInbox(t *testing.T) {
	notifySvc, friendSvc, _, st := newFixture(t)
	ctx := context.Background()

	w, err := notifySvc.WatchInbox(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 1, st.ActiveSubscriptions())

	_, err = friendSvc.SendRequest(ctx, "u1", "User One", "u2")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case inbox := <-w.Updates():
			if len(inbox) == 1 {
				assert.Equal(t, models.NotificationFriendRequest, inbox[0].Type)
				w.Close()
				assert.Equal(t, 0, st.ActiveSubscriptions())
				return
			}
		case <-deadline:
			t.Fatal("inbox watch never delivered the notification")
		}
	}
}

func TestPreviewTruncation(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("x", previewLimit+10)
	got := preview(long)
	assert.Equal(t, previewLimit+3, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
