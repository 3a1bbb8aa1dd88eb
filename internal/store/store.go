// Package store provides persistence for processed webhook messages and
// the conversation-aggregation read side.
package store

import (
	"context"
	"errors"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

var (
	// ErrNotFound signals that no document matched the given key.
	ErrNotFound = errors.New("not found")
	// ErrStaleStatus signals a status update that would move a message
	// backward in the delivery lifecycle.
	ErrStaleStatus = errors.New("stale status update")
)

// Batch is one webhook payload's worth of writes, applied as a unit.
type Batch struct {
	Messages []model.Message
	Statuses []model.StatusUpdate
}

// BatchResult reports what a batch application actually changed.
// Applied lists the status updates the store accepted; statuses that
// matched no stored message are returned in Missing so the caller can
// decide what to do with them (buffer, drop, log).
type BatchResult struct {
	Upserted int
	Applied  []model.StatusUpdate
	Stale    int
	Missing  []model.StatusUpdate
}

// Store is the message store handle. Implementations must provide
// per-document atomicity for each upsert; ApplyBatch additionally applies
// a whole batch atomically where the backend supports it.
//
// The handle is constructed once at process start and injected into every
// consumer; there is no package-level connection state.
type Store interface {
	// UpsertMessage inserts or fully replaces a message keyed on MessageID.
	// Last write wins.
	UpsertMessage(ctx context.Context, msg *model.Message) error

	// UpdateStatus sets status and lastUpdated on an existing message.
	// It never inserts: an unknown MessageID returns ErrNotFound.
	// A lifecycle regression returns ErrStaleStatus and changes nothing.
	UpdateStatus(ctx context.Context, upd model.StatusUpdate) error

	// ApplyBatch applies a payload's messages and statuses as a unit.
	ApplyBatch(ctx context.Context, batch Batch) (BatchResult, error)

	// ListConversations groups all messages into conversations, messages
	// ascending by timestamp, conversations descending by lastUpdated.
	ListConversations(ctx context.Context) ([]model.Conversation, error)

	// GetConversation returns the single conversation with the given ID,
	// or ErrNotFound when no messages share it.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
