package store

import (
	"context"
	"sort"
	"sync"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

// Memory is an in-memory Store. It backs tests and the STORE_DRIVER=memory
// development mode; the aggregation semantics mirror the Mongo pipeline.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]*model.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]*model.Message),
	}
}

// UpsertMessage inserts or fully replaces the message keyed on MessageID.
func (m *Memory) UpsertMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(msg)
}

func (m *Memory) upsertLocked(msg *model.Message) error {
	cp := *msg
	m.messages[msg.MessageID] = &cp
	return nil
}

// UpdateStatus sets status and lastUpdated on an existing message.
func (m *Memory) UpdateStatus(ctx context.Context, upd model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusLocked(upd)
}

func (m *Memory) updateStatusLocked(upd model.StatusUpdate) error {
	msg, ok := m.messages[upd.MessageID]
	if !ok {
		return ErrNotFound
	}
	if upd.Status.Rank() < msg.Status.Rank() {
		return ErrStaleStatus
	}
	msg.Status = upd.Status
	msg.LastUpdated = upd.LastUpdated
	return nil
}

// ApplyBatch applies the batch under a single critical section.
func (m *Memory) ApplyBatch(ctx context.Context, batch Batch) (BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res BatchResult
	for i := range batch.Messages {
		if err := m.upsertLocked(&batch.Messages[i]); err != nil {
			return res, err
		}
		res.Upserted++
	}
	for _, upd := range batch.Statuses {
		switch err := m.updateStatusLocked(upd); err {
		case nil:
			res.Applied = append(res.Applied, upd)
		case ErrNotFound:
			res.Missing = append(res.Missing, upd)
		case ErrStaleStatus:
			res.Stale++
		default:
			return res, err
		}
	}
	return res, nil
}

// ListConversations aggregates all messages into conversations.
func (m *Memory) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string][]*model.Message)
	for _, msg := range m.messages {
		groups[msg.ConversationID] = append(groups[msg.ConversationID], msg)
	}

	convs := make([]model.Conversation, 0, len(groups))
	for id, msgs := range groups {
		convs = append(convs, buildConversation(id, msgs))
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastUpdated.After(convs[j].LastUpdated)
	})
	return convs, nil
}

// GetConversation aggregates the single conversation with the given ID.
func (m *Memory) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == id {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	conv := buildConversation(id, msgs)
	return &conv, nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close(ctx context.Context) error { return nil }

// buildConversation assembles the derived conversation: messages ascending
// by timestamp, distinct participants with empty phones filtered out,
// lastUpdated as the max across the group.
func buildConversation(id string, msgs []*model.Message) model.Conversation {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	conv := model.Conversation{
		ID:           id,
		Messages:     make([]model.ConversationMessage, 0, len(msgs)),
		Participants: []model.Participant{},
	}
	seen := make(map[model.Participant]bool)
	for _, msg := range msgs {
		conv.Messages = append(conv.Messages, msg.View())

		p := model.Participant{Phone: msg.From, Name: msg.ContactName}
		if p.Phone != "" && !seen[p] {
			seen[p] = true
			conv.Participants = append(conv.Participants, p)
		}
		if msg.LastUpdated.After(conv.LastUpdated) {
			conv.LastUpdated = msg.LastUpdated
		}
	}
	return conv
}
