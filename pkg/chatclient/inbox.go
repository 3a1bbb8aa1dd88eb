package chatclient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultDeliveredDelay  = time.Second
)

// localMessage is an optimistic send the server has not confirmed.
type localMessage struct {
	chatID string
	view   MessageView
}

// Inbox maintains the client-side chat list: the last fetched server
// snapshot with local mutations overlaid.
//
// Local mutations (optimistic sends, the simulated delivered transition,
// mark-as-read) live in an overlay keyed by message ID. On every refresh
// the overlay is re-applied on top of the fresh snapshot; an entry is
// discarded only once the server reports an equal-or-later status for
// that message, so a refresh can never regress what the user already saw.
type Inbox struct {
	client *Client
	self   string
	clock  clockwork.Clock
	logger *logger.Logger

	refreshEvery   time.Duration
	deliveredDelay time.Duration

	mu        sync.Mutex
	chats     []Chat
	loaded    bool
	lastErr   error
	inflight  bool
	overrides map[string]model.Status  // message ID -> local status floor
	localMsgs map[string]*localMessage // message ID -> optimistic send
	timers    map[string]clockwork.Timer
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithClock injects the clock. Tests use a fake.
func WithClock(c clockwork.Clock) InboxOption {
	return func(i *Inbox) { i.clock = c }
}

// WithRefreshInterval sets the periodic refresh interval.
func WithRefreshInterval(d time.Duration) InboxOption {
	return func(i *Inbox) { i.refreshEvery = d }
}

// WithDeliveredDelay sets how long after an optimistic send the local
// status advances to delivered.
func WithDeliveredDelay(d time.Duration) InboxOption {
	return func(i *Inbox) { i.deliveredDelay = d }
}

// WithLogger injects a logger.
func WithLogger(log *logger.Logger) InboxOption {
	return func(i *Inbox) { i.logger = log }
}

// NewInbox creates an inbox for the operator phone number selfPhone.
func NewInbox(client *Client, selfPhone string, opts ...InboxOption) *Inbox {
	i := &Inbox{
		client:         client,
		self:           selfPhone,
		clock:          clockwork.NewRealClock(),
		logger:         logger.Nop(),
		refreshEvery:   defaultRefreshInterval,
		deliveredDelay: defaultDeliveredDelay,
		overrides:      make(map[string]model.Status),
		localMsgs:      make(map[string]*localMessage),
		timers:         make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Load performs the initial fetch. On failure the inbox stays empty and
// the error is returned; this differs deliberately from Refresh, which
// preserves previously loaded chats.
func (i *Inbox) Load(ctx context.Context) error {
	return i.fetch(ctx)
}

// Refresh re-fetches the conversation list and reconciles it with the
// local overlay. A refresh overlapping an in-flight one is skipped.
func (i *Inbox) Refresh(ctx context.Context) error {
	return i.fetch(ctx)
}

func (i *Inbox) fetch(ctx context.Context) error {
	i.mu.Lock()
	if i.inflight {
		i.mu.Unlock()
		return nil
	}
	i.inflight = true
	i.mu.Unlock()

	convs, err := i.client.Conversations(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.inflight = false

	if err != nil {
		if !i.loaded {
			// Initial load: no prior state to preserve.
			i.chats = nil
		}
		i.lastErr = err
		return err
	}

	chats := Project(convs, i.self)
	i.chats = i.applyOverlayLocked(chats)
	i.loaded = true
	i.lastErr = nil
	return nil
}

// applyOverlayLocked re-applies local mutations on top of a fresh
// snapshot and drops the ones the server has caught up with.
func (i *Inbox) applyOverlayLocked(chats []Chat) []Chat {
	for ci := range chats {
		chat := &chats[ci]
		for mi := range chat.Messages {
			m := &chat.Messages[mi]

			if _, ok := i.localMsgs[m.ID]; ok {
				// The server now knows this optimistic send.
				i.dropLocalLocked(m.ID)
			}

			if floor, ok := i.overrides[m.ID]; ok {
				if m.Status.Rank() >= floor.Rank() {
					delete(i.overrides, m.ID)
				} else {
					m.Status = floor
				}
			}
		}
	}

	// Re-attach optimistic sends the server has not confirmed yet, and
	// keep their chats at the front.
	byChat := make(map[string][]MessageView)
	for _, lm := range i.localMsgs {
		byChat[lm.chatID] = append(byChat[lm.chatID], lm.view)
	}
	for chatID, views := range byChat {
		sort.Slice(views, func(a, b int) bool {
			return views[a].Timestamp.Before(views[b].Timestamp)
		})
		idx := chatIndex(chats, chatID)
		if idx < 0 {
			chats = append(chats, Chat{
				ConversationID: chatID,
				User: User{
					ID:          chatID,
					Name:        chatID,
					Avatar:      avatarURL(chatID),
					PhoneNumber: chatID,
				},
			})
			idx = len(chats) - 1
		}
		chats[idx].Messages = append(chats[idx].Messages, views...)
		chats = moveToFront(chats, idx)
	}

	for ci := range chats {
		chats[ci].UnreadCount = countUnread(chats[ci].Messages)
	}
	return chats
}

// Send appends an optimistic message to the chat identified by the other
// party's ID and moves that chat to the front. The message is local-only:
// there is no send endpoint, so it survives refreshes via the overlay
// until the server learns about it through some other path.
func (i *Inbox) Send(chatID, text string) (MessageView, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	idx := chatIndex(i.chats, chatID)
	if idx < 0 {
		return MessageView{}, false
	}

	msg := MessageView{
		ID:        "local-" + uuid.New().String(),
		Text:      text,
		Timestamp: i.clock.Now(),
		IsSender:  true,
		Status:    model.StatusSent,
	}
	i.localMsgs[msg.ID] = &localMessage{chatID: chatID, view: msg}
	i.chats[idx].Messages = append(i.chats[idx].Messages, msg)
	i.chats = moveToFront(i.chats, idx)

	// Simulated confirmation: advance to delivered after a fixed delay
	// unless the server reported something for this message first.
	id := msg.ID
	i.timers[id] = i.clock.AfterFunc(i.deliveredDelay, func() {
		i.deliverLocal(id)
	})

	return msg, true
}

func (i *Inbox) deliverLocal(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.timers, id)

	lm, ok := i.localMsgs[id]
	if !ok || lm.view.Status.Rank() >= model.StatusDelivered.Rank() {
		return
	}
	lm.view.Status = model.StatusDelivered

	if idx := chatIndex(i.chats, lm.chatID); idx >= 0 {
		msgs := i.chats[idx].Messages
		for mi := range msgs {
			if msgs[mi].ID == id {
				msgs[mi].Status = model.StatusDelivered
				break
			}
		}
	}
}

// MarkRead flips every received, non-read message in the chat to read and
// zeroes the unread count. Message order and count are untouched. The
// transition is recorded in the overlay so the next refresh cannot undo
// it before the server catches up.
func (i *Inbox) MarkRead(chatID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	idx := chatIndex(i.chats, chatID)
	if idx < 0 {
		return
	}

	msgs := i.chats[idx].Messages
	for mi := range msgs {
		if !msgs[mi].IsSender && msgs[mi].Status != model.StatusRead {
			msgs[mi].Status = model.StatusRead
			i.overrides[msgs[mi].ID] = model.StatusRead
		}
	}
	i.chats[idx].UnreadCount = 0
}

// Chats returns a copy of the current chat list.
func (i *Inbox) Chats() []Chat {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Chat, len(i.chats))
	for ci, chat := range i.chats {
		out[ci] = chat
		out[ci].Messages = append([]MessageView(nil), chat.Messages...)
	}
	return out
}

// Chat returns the chat for the given other-party ID.
func (i *Inbox) Chat(chatID string) (Chat, bool) {
	for _, chat := range i.Chats() {
		if chat.User.ID == chatID {
			return chat, true
		}
	}
	return Chat{}, false
}

// Err returns the error from the most recent failed fetch, nil after a
// successful one.
func (i *Inbox) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Loaded reports whether an initial load has succeeded.
func (i *Inbox) Loaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loaded
}

// Run performs the initial load and then refreshes on a fixed interval
// until ctx is cancelled. The ticker only starts once the initial load
// attempt has finished. Cancellation stops the ticker and all pending
// delivered-timers.
func (i *Inbox) Run(ctx context.Context) error {
	if err := i.Load(ctx); err != nil {
		i.logger.Warn("initial load failed", zap.Error(err))
	}

	ticker := i.clock.NewTicker(i.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.stopTimers()
			return ctx.Err()
		case <-ticker.Chan():
			if err := i.Refresh(ctx); err != nil {
				i.logger.Warn("refresh failed", zap.Error(err))
			}
		}
	}
}

func (i *Inbox) stopTimers() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, t := range i.timers {
		t.Stop()
		delete(i.timers, id)
	}
}

// dropLocalLocked removes a confirmed optimistic send and its timer.
func (i *Inbox) dropLocalLocked(id string) {
	delete(i.localMsgs, id)
	if t, ok := i.timers[id]; ok {
		t.Stop()
		delete(i.timers, id)
	}
}

func chatIndex(chats []Chat, chatID string) int {
	for idx := range chats {
		if chats[idx].User.ID == chatID {
			return idx
		}
	}
	return -1
}

// moveToFront moves chats[idx] to position 0, preserving the relative
// order of everything else.
func moveToFront(chats []Chat, idx int) []Chat {
	if idx <= 0 {
		return chats
	}
	chat := chats[idx]
	copy(chats[1:idx+1], chats[:idx])
	chats[0] = chat
	return chats
}
