// Package ingest converts provider webhook payloads into message store
// writes.
package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/internal/store"
)

// ConversationID resolves the thread identifier for a message. Newer
// gateway payloads carry an explicit conversation_id on each message;
// older ones only have the batch payload ID, whose leading token (up to
// the first "-") partitions messages into conversations. The split is a
// compatibility shim, not a semantic thread ID.
func ConversationID(payloadID string, msg model.WebhookMessage) string {
	if msg.ConversationID != "" {
		return msg.ConversationID
	}
	if i := strings.Index(payloadID, "-"); i >= 0 {
		return payloadID[:i]
	}
	return payloadID
}

// Normalize flattens a webhook payload into the batch of store writes it
// implies: one full-document upsert per message event and one status-only
// update per status event.
func Normalize(payload *model.RawPayload, now time.Time) store.Batch {
	var batch store.Batch

	for _, entry := range payload.MetaData.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, wm := range value.Messages {
				msg := model.Message{
					MessageID:          wm.ID,
					ConversationID:     ConversationID(payload.ID, wm),
					From:               wm.From,
					To:                 value.Metadata.PhoneNumberID,
					Timestamp:          parseEpoch(wm.Timestamp, now),
					Status:             model.StatusReceived,
					Type:               wm.Type,
					ContactName:        contactName(value.Contacts, wm.From),
					PhoneNumberID:      value.Metadata.PhoneNumberID,
					DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
					AppID:              payload.MetaData.GsAppID,
					LastUpdated:        now,
				}
				if wm.Text != nil {
					msg.Body = wm.Text.Body
				}
				batch.Messages = append(batch.Messages, msg)
			}

			for _, ws := range value.Statuses {
				batch.Statuses = append(batch.Statuses, model.StatusUpdate{
					MessageID:   ws.ID,
					Status:      ws.Status,
					LastUpdated: parseEpoch(ws.Timestamp, now),
				})
			}
		}
	}

	return batch
}

// contactName matches a sender's phone against the payload's contact list.
// Absent a match the name stays unset.
func contactName(contacts []model.WebhookContact, from string) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	return ""
}

// parseEpoch converts the provider's epoch-seconds string. Unparseable
// timestamps fall back to the ingestion time.
func parseEpoch(s string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}
