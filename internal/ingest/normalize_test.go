package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

func messagePayload(payloadID string, msgs []model.WebhookMessage, contacts []model.WebhookContact) *model.RawPayload {
	return &model.RawPayload{
		ID: payloadID,
		MetaData: model.WebhookMetaData{
			GsAppID: "app-1",
			Entry: []model.WebhookEntry{{
				ID: "entry-1",
				Changes: []model.WebhookChange{{
					Field: "messages",
					Value: model.WebhookValue{
						Metadata: model.WebhookMetadata{
							DisplayPhoneNumber: "918329446654",
							PhoneNumberID:      "629305560276479",
						},
						Contacts: contacts,
						Messages: msgs,
					},
				}},
			}},
		},
	}
}

func TestConversationIDHeuristic(t *testing.T) {
	tests := []struct {
		name      string
		payloadID string
		msg       model.WebhookMessage
		want      string
	}{
		{"explicit thread id wins", "conv1-msg1-user", model.WebhookMessage{ConversationID: "thread-42"}, "thread-42"},
		{"split on first dash", "conv1-msg1-user", model.WebhookMessage{}, "conv1"},
		{"no separator uses whole id", "conv9", model.WebhookMessage{}, "conv9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConversationID(tt.payloadID, tt.msg))
		})
	}
}

func TestNormalizeMessages(t *testing.T) {
	now := time.Unix(2000, 0).UTC()
	payload := messagePayload("conv1-msg1-user",
		[]model.WebhookMessage{{
			From:      "919937320320",
			ID:        "wamid.1",
			Timestamp: "1000",
			Type:      "text",
			Text:      &model.WebhookText{Body: "hello"},
		}},
		[]model.WebhookContact{{
			Profile: model.WebhookProfile{Name: "Ravi Kumar"},
			WaID:    "919937320320",
		}},
	)

	batch := Normalize(payload, now)
	require.Len(t, batch.Messages, 1)
	require.Empty(t, batch.Statuses)

	m := batch.Messages[0]
	assert.Equal(t, "wamid.1", m.MessageID)
	assert.Equal(t, "conv1", m.ConversationID)
	assert.Equal(t, "hello", m.Body)
	assert.Equal(t, "919937320320", m.From)
	assert.Equal(t, "629305560276479", m.To)
	assert.Equal(t, time.Unix(1000, 0).UTC(), m.Timestamp)
	assert.Equal(t, model.StatusReceived, m.Status)
	assert.Equal(t, "Ravi Kumar", m.ContactName)
	assert.Equal(t, "app-1", m.AppID)
	assert.Equal(t, now, m.LastUpdated)
}

func TestNormalizeUnmatchedContactLeavesNameUnset(t *testing.T) {
	payload := messagePayload("conv1-x",
		[]model.WebhookMessage{{From: "555", ID: "wamid.2", Timestamp: "1000"}},
		[]model.WebhookContact{{Profile: model.WebhookProfile{Name: "Somebody Else"}, WaID: "777"}},
	)

	batch := Normalize(payload, time.Now())
	require.Len(t, batch.Messages, 1)
	assert.Empty(t, batch.Messages[0].ContactName)
}

func TestNormalizeStatuses(t *testing.T) {
	payload := &model.RawPayload{
		ID: "conv1-status",
		MetaData: model.WebhookMetaData{
			Entry: []model.WebhookEntry{{
				Changes: []model.WebhookChange{{
					Value: model.WebhookValue{
						Statuses: []model.WebhookStatus{{
							ID:        "wamid.1",
							Status:    model.StatusDelivered,
							Timestamp: "1500",
						}},
					},
				}},
			}},
		},
	}

	batch := Normalize(payload, time.Now())
	require.Empty(t, batch.Messages)
	require.Len(t, batch.Statuses, 1)
	assert.Equal(t, "wamid.1", batch.Statuses[0].MessageID)
	assert.Equal(t, model.StatusDelivered, batch.Statuses[0].Status)
	assert.Equal(t, time.Unix(1500, 0).UTC(), batch.Statuses[0].LastUpdated)
}

func TestNormalizeBadTimestampFallsBack(t *testing.T) {
	now := time.Unix(3000, 0).UTC()
	payload := messagePayload("conv1-x",
		[]model.WebhookMessage{{From: "555", ID: "wamid.3", Timestamp: "not-a-number"}},
		nil,
	)

	batch := Normalize(payload, now)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, now, batch.Messages[0].Timestamp)
}
