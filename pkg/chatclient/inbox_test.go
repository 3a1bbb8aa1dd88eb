package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

// fakeAPI serves a mutable conversation list the way the inbox server
// would.
type fakeAPI struct {
	mu    sync.Mutex
	convs []model.Conversation
	fail  bool
}

func (f *fakeAPI) set(convs ...model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs = convs
}

func (f *fakeAPI) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.convs)
	})
}

func newTestInbox(t *testing.T, api *fakeAPI, opts ...InboxOption) *Inbox {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewInbox(NewClient(srv.URL), selfPhone, opts...)
}

func twoConvs() []model.Conversation {
	return []model.Conversation{
		conv("convB",
			[]model.Participant{{Phone: "222", Name: "Neha Joshi"}},
			cmsg("b1", "222", model.StatusDelivered, 30),
		),
		conv("convA",
			[]model.Participant{{Phone: "111", Name: "Ravi Kumar"}},
			cmsg("a1", "111", model.StatusDelivered, 10),
		),
	}
}

func TestLoadProjectsServerOrder(t *testing.T) {
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api)

	require.NoError(t, inbox.Load(context.Background()))
	chats := inbox.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "222", chats[0].User.ID)
	assert.Equal(t, "111", chats[1].User.ID)
	assert.True(t, inbox.Loaded())
	assert.NoError(t, inbox.Err())
}

func TestInitialLoadFailureLeavesInboxEmpty(t *testing.T) {
	api := &fakeAPI{}
	api.setFail(true)
	inbox := newTestInbox(t, api)

	require.Error(t, inbox.Load(context.Background()))
	assert.Empty(t, inbox.Chats())
	assert.False(t, inbox.Loaded())
	assert.Error(t, inbox.Err())
}

func TestRefreshFailurePreservesChats(t *testing.T) {
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api)
	require.NoError(t, inbox.Load(context.Background()))

	api.setFail(true)
	require.Error(t, inbox.Refresh(context.Background()))

	assert.Len(t, inbox.Chats(), 2, "refresh failure must not clear loaded state")
	assert.Error(t, inbox.Err())

	api.setFail(false)
	require.NoError(t, inbox.Refresh(context.Background()))
	assert.NoError(t, inbox.Err())
}

func TestSendOptimistic(t *testing.T) {
	fc := clockwork.NewFakeClock()
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api, WithClock(fc), WithDeliveredDelay(time.Second))
	require.NoError(t, inbox.Load(context.Background()))

	// convA sits at the back; sending must move it to the front.
	msg, ok := inbox.Send("111", "hello there")
	require.True(t, ok)
	assert.Equal(t, model.StatusSent, msg.Status)

	chats := inbox.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "111", chats[0].User.ID)
	require.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "hello there", chats[0].Messages[1].Text)
	assert.True(t, chats[0].Messages[1].IsSender)

	// One delivered-delay later the local status advances on its own.
	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		chat, ok := inbox.Chat("111")
		if !ok {
			return false
		}
		last := chat.Messages[len(chat.Messages)-1]
		return last.Status == model.StatusDelivered
	}, time.Second, 5*time.Millisecond)
}

func TestSendUnknownChat(t *testing.T) {
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api)
	require.NoError(t, inbox.Load(context.Background()))

	_, ok := inbox.Send("999", "into the void")
	assert.False(t, ok)
}

func TestOptimisticSendSurvivesRefresh(t *testing.T) {
	fc := clockwork.NewFakeClock()
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api, WithClock(fc))
	require.NoError(t, inbox.Load(context.Background()))

	_, ok := inbox.Send("111", "still here")
	require.True(t, ok)

	// The server knows nothing about the optimistic send; a refresh must
	// re-attach it and keep the chat at the front.
	require.NoError(t, inbox.Refresh(context.Background()))

	chats := inbox.Chats()
	assert.Equal(t, "111", chats[0].User.ID)
	last := chats[0].Messages[len(chats[0].Messages)-1]
	assert.Equal(t, "still here", last.Text)
}

func TestMarkReadAndOverlayReconciliation(t *testing.T) {
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api)
	require.NoError(t, inbox.Load(context.Background()))

	chat, ok := inbox.Chat("222")
	require.True(t, ok)
	require.Equal(t, 1, chat.UnreadCount)
	msgCount := len(chat.Messages)

	inbox.MarkRead("222")
	chat, _ = inbox.Chat("222")
	assert.Equal(t, 0, chat.UnreadCount)
	assert.Equal(t, msgCount, len(chat.Messages), "mark-as-read must not change message count")
	assert.Equal(t, model.StatusRead, chat.Messages[0].Status)

	// The server still reports delivered: the local read must survive
	// the refresh instead of regressing.
	require.NoError(t, inbox.Refresh(context.Background()))
	chat, _ = inbox.Chat("222")
	assert.Equal(t, model.StatusRead, chat.Messages[0].Status)
	assert.Equal(t, 0, chat.UnreadCount)

	// Once the server catches up the overlay entry is retired and the
	// server value stands on its own.
	convs := twoConvs()
	convs[0].Messages[0].Status = model.StatusRead
	api.set(convs...)
	require.NoError(t, inbox.Refresh(context.Background()))
	chat, _ = inbox.Chat("222")
	assert.Equal(t, model.StatusRead, chat.Messages[0].Status)
	inbox.mu.Lock()
	assert.Empty(t, inbox.overrides, "overlay entry must be dropped once the server is equal-or-later")
	inbox.mu.Unlock()
}

func TestOverlappingRefreshIssuesOneRequest(t *testing.T) {
	var hits int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Conversation{})
	}))
	t.Cleanup(srv.Close)
	inbox := NewInbox(NewClient(srv.URL), selfPhone)

	done := make(chan error, 1)
	go func() { done <- inbox.Load(context.Background()) }()
	<-started

	// The first fetch is parked server-side; an overlapping refresh
	// must return without issuing a second request.
	require.NoError(t, inbox.Refresh(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCancelStopsPendingDeliveredTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api,
		WithClock(fc), WithRefreshInterval(30*time.Second), WithDeliveredDelay(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()
	require.Eventually(t, func() bool { return inbox.Loaded() }, time.Second, 5*time.Millisecond)
	fc.BlockUntil(1)

	msg, ok := inbox.Send("111", "caught mid-flight")
	require.True(t, ok)
	require.Equal(t, model.StatusSent, msg.Status)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	inbox.mu.Lock()
	assert.Empty(t, inbox.timers, "cancellation must stop pending delivered-timers")
	inbox.mu.Unlock()

	// The stopped timer must not fire even past its delay.
	fc.Advance(2 * time.Second)
	chat, ok := inbox.Chat("111")
	require.True(t, ok)
	last := chat.Messages[len(chat.Messages)-1]
	assert.Equal(t, model.StatusSent, last.Status)
}

func TestRunRefreshesOnTick(t *testing.T) {
	fc := clockwork.NewFakeClock()
	api := &fakeAPI{}
	api.set(twoConvs()...)
	inbox := newTestInbox(t, api, WithClock(fc), WithRefreshInterval(30*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()

	// Wait for the initial load to finish and the ticker to be armed.
	require.Eventually(t, func() bool { return inbox.Loaded() }, time.Second, 5*time.Millisecond)
	fc.BlockUntil(1)

	// A third conversation appears server-side; the next tick picks it up.
	convs := append(twoConvs(), conv("convC",
		[]model.Participant{{Phone: "333"}},
		cmsg("c1", "333", model.StatusDelivered, 40),
	))
	api.set(convs...)
	fc.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		return len(inbox.Chats()) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
