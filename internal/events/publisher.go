// Package events publishes ingestion events to NATS JetStream for
// downstream consumers (fanout, search indexing). The publisher is
// optional: a nil *Publisher is a valid no-op.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
	"github.com/relaymesh/whatsapp-inbox/pkg/metrics"
)

const (
	streamName = "INBOX"

	SubjectMessageUpserted = "inbox.message.upserted"
	SubjectStatusUpdated   = "inbox.status.updated"
)

// Config holds NATS connection configuration.
type Config struct {
	URL   string
	Token string
}

// Publisher wraps a NATS connection and JetStream context.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect establishes a connection to the NATS server and ensures the
// inbox stream exists.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: nc, js: js, logger: log}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"inbox.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}
	return nil
}

// MessageUpserted publishes a message-upserted event. Publish failures
// are logged, not propagated: event fanout must never fail ingestion.
func (p *Publisher) MessageUpserted(ctx context.Context, msg *model.Message) {
	if p == nil {
		return
	}
	p.publish(ctx, SubjectMessageUpserted, "msg-"+msg.MessageID, map[string]string{
		"message_id":      msg.MessageID,
		"conversation_id": msg.ConversationID,
		"from":            msg.From,
		"status":          string(msg.Status),
	})
}

// StatusUpdated publishes a status-updated event.
func (p *Publisher) StatusUpdated(ctx context.Context, upd model.StatusUpdate) {
	if p == nil {
		return
	}
	p.publish(ctx, SubjectStatusUpdated, fmt.Sprintf("status-%s-%s", upd.MessageID, upd.Status), map[string]string{
		"message_id": upd.MessageID,
		"status":     string(upd.Status),
	})
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, payload map[string]string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// JetStream dedupes on the msg ID, so webhook redeliveries do not
	// double-publish.
	msg.Header.Set(jetstream.MsgIDHeader, msgID)

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
		metrics.EventsPublishedTotal.WithLabelValues(subject, "error").Inc()
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(subject, "ok").Inc()
}

// IsConnected reports whether the underlying connection is up.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
