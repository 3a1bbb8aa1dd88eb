package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/internal/events"
	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/internal/store"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
	"github.com/relaymesh/whatsapp-inbox/pkg/metrics"
)

// pendingStatusCap bounds how many out-of-order statuses are held while
// waiting for their message to arrive.
const pendingStatusCap = 512

// EventPublisher receives events for records the store accepted. A
// nil-receiver *events.Publisher satisfies it as a no-op.
type EventPublisher interface {
	MessageUpserted(ctx context.Context, msg *model.Message)
	StatusUpdated(ctx context.Context, upd model.StatusUpdate)
}

var _ EventPublisher = (*events.Publisher)(nil)

// Ingestor applies webhook payloads to the message store.
//
// Status events can outrun the message they refer to (the provider does
// not order deliveries across payloads). A status whose message is not
// stored yet is held in a bounded LRU buffer and replayed when the
// message arrives; evicted entries are dropped and counted.
type Ingestor struct {
	store     store.Store
	publisher EventPublisher
	pending   *lru.Cache[string, model.StatusUpdate]
	logger    *logger.Logger
	now       func() time.Time
}

// NewIngestor creates an ingestor. publisher may be nil.
func NewIngestor(st store.Store, publisher EventPublisher, log *logger.Logger) *Ingestor {
	pending, _ := lru.New[string, model.StatusUpdate](pendingStatusCap)
	return &Ingestor{
		store:     st,
		publisher: publisher,
		pending:   pending,
		logger:    log,
		now:       time.Now,
	}
}

// Ingest applies one webhook payload as a unit.
func (in *Ingestor) Ingest(ctx context.Context, payload *model.RawPayload) error {
	batch := Normalize(payload, in.now())

	res, err := in.store.ApplyBatch(ctx, batch)
	if err != nil {
		metrics.RecordPayload("error")
		return fmt.Errorf("apply payload %s: %w", payload.ID, err)
	}

	metrics.RecordPayload("ok")
	metrics.MessageUpsertsTotal.Add(float64(res.Upserted))
	for i := 0; i < res.Stale; i++ {
		metrics.RecordStatusUpdate("stale")
	}

	// Events mirror what the store accepted. A buffered or stale status
	// must not be announced: a consumer replaying it would move message
	// state backward past the lifecycle guard.
	if in.publisher != nil {
		for i := range batch.Messages {
			in.publisher.MessageUpserted(ctx, &batch.Messages[i])
		}
	}
	for _, upd := range res.Applied {
		metrics.RecordStatusUpdate("applied")
		if in.publisher != nil {
			in.publisher.StatusUpdated(ctx, upd)
		}
	}

	in.bufferMissing(res.Missing)
	in.replayPending(ctx, batch.Messages)

	if len(res.Missing) > 0 || res.Stale > 0 {
		in.logger.Info("payload applied with skews",
			zap.String("payload_id", payload.ID),
			zap.Int("upserted", res.Upserted),
			zap.Int("statuses_applied", len(res.Applied)),
			zap.Int("statuses_buffered", len(res.Missing)),
			zap.Int("statuses_stale", res.Stale),
		)
	}
	return nil
}

// bufferMissing holds statuses whose message has not been ingested yet.
// A later status for the same message replaces an earlier buffered one
// only when it ranks higher.
func (in *Ingestor) bufferMissing(missing []model.StatusUpdate) {
	for _, upd := range missing {
		if prev, ok := in.pending.Peek(upd.MessageID); ok && prev.Status.Rank() > upd.Status.Rank() {
			continue
		}
		if evicted := in.pending.Add(upd.MessageID, upd); evicted {
			metrics.RecordStatusUpdate("dropped")
		}
		metrics.RecordStatusUpdate("buffered")
	}
	metrics.PendingStatusBuffered.Set(float64(in.pending.Len()))
}

// replayPending applies any buffered status whose message just arrived.
func (in *Ingestor) replayPending(ctx context.Context, msgs []model.Message) {
	for i := range msgs {
		upd, ok := in.pending.Peek(msgs[i].MessageID)
		if !ok {
			continue
		}
		err := in.store.UpdateStatus(ctx, upd)
		switch {
		case err == nil:
			metrics.RecordStatusUpdate("replayed")
			if in.publisher != nil {
				in.publisher.StatusUpdated(ctx, upd)
			}
		case errors.Is(err, store.ErrStaleStatus):
			metrics.RecordStatusUpdate("stale")
		case errors.Is(err, store.ErrNotFound):
			// Message vanished between batch and replay; keep it buffered.
			continue
		default:
			in.logger.Warn("failed to replay buffered status",
				zap.String("message_id", upd.MessageID), zap.Error(err))
			continue
		}
		in.pending.Remove(msgs[i].MessageID)
	}
	metrics.PendingStatusBuffered.Set(float64(in.pending.Len()))
}

// Seed bulk-ingests a fixed payload set. A failing payload is logged and
// skipped so one bad payload cannot block the rest of the seed.
func (in *Ingestor) Seed(ctx context.Context, payloads []model.RawPayload) error {
	var failed int
	for i := range payloads {
		if err := in.Ingest(ctx, &payloads[i]); err != nil {
			failed++
			in.logger.Error("failed to ingest seed payload",
				zap.String("payload_id", payloads[i].ID), zap.Error(err))
			continue
		}
		in.logger.Info("seed payload ingested", zap.String("payload_id", payloads[i].ID))
	}
	if failed == len(payloads) && failed > 0 {
		return fmt.Errorf("all %d seed payloads failed", failed)
	}
	return nil
}

// PendingStatuses reports how many statuses are buffered. Exposed for
// the health endpoint and tests.
func (in *Ingestor) PendingStatuses() int {
	return in.pending.Len()
}
