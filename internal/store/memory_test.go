package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

func msg(id, conv, from string, ts int64) model.Message {
	return model.Message{
		MessageID:      id,
		ConversationID: conv,
		Body:           "body-" + id,
		From:           from,
		To:             "629305560276479",
		Timestamp:      time.Unix(ts, 0).UTC(),
		Status:         model.StatusReceived,
		Type:           "text",
		LastUpdated:    time.Unix(ts, 0).UTC(),
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	first := msg("m1", "convA", "111", 10)
	first.Body = "first"
	require.NoError(t, st.UpsertMessage(ctx, &first))

	second := msg("m1", "convA", "111", 10)
	second.Body = "second"
	require.NoError(t, st.UpsertMessage(ctx, &second))

	conv, err := st.GetConversation(ctx, "convA")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "second", conv.Messages[0].Body)
}

func TestStatusUpdateUnknownMessageIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	err := st.UpdateStatus(ctx, model.StatusUpdate{
		MessageID:   "ghost",
		Status:      model.StatusDelivered,
		LastUpdated: time.Now(),
	})
	require.ErrorIs(t, err, ErrNotFound)

	convs, err := st.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs, "a status-only update must never create a document")
}

func TestStatusUpdateRejectsRegression(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	m := msg("m1", "convA", "111", 10)
	m.Status = model.StatusRead
	require.NoError(t, st.UpsertMessage(ctx, &m))

	err := st.UpdateStatus(ctx, model.StatusUpdate{
		MessageID:   "m1",
		Status:      model.StatusDelivered,
		LastUpdated: time.Now(),
	})
	require.ErrorIs(t, err, ErrStaleStatus)

	conv, err := st.GetConversation(ctx, "convA")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, conv.Messages[0].Status)
}

func TestAggregationGroupingAndOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	for _, m := range []model.Message{
		msg("m1", "convA", "111", 10),
		msg("m2", "convA", "111", 5),
		msg("m3", "convB", "222", 20),
	} {
		m := m
		require.NoError(t, st.UpsertMessage(ctx, &m))
	}

	convs, err := st.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	// convB's lastUpdated (ts 20) exceeds convA's (ts 10).
	assert.Equal(t, "convB", convs[0].ID)
	assert.Equal(t, "convA", convs[1].ID)

	// Messages within convA ascend by timestamp.
	require.Len(t, convs[1].Messages, 2)
	assert.Equal(t, "m2", convs[1].Messages[0].ID)
	assert.Equal(t, "m1", convs[1].Messages[1].ID)
}

func TestAggregationFiltersEmptyPhones(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	named := msg("m1", "convA", "111", 10)
	named.ContactName = "Ravi Kumar"
	require.NoError(t, st.UpsertMessage(ctx, &named))

	anon := msg("m2", "convA", "", 11)
	require.NoError(t, st.UpsertMessage(ctx, &anon))

	conv, err := st.GetConversation(ctx, "convA")
	require.NoError(t, err)
	require.Len(t, conv.Participants, 1)
	assert.Equal(t, "111", conv.Participants[0].Phone)
	assert.Equal(t, "Ravi Kumar", conv.Participants[0].Name)
}

func TestParticipantsDeduplicated(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	for i, id := range []string{"m1", "m2", "m3"} {
		m := msg(id, "convA", "111", int64(10+i))
		m.ContactName = "Ravi Kumar"
		require.NoError(t, st.UpsertMessage(ctx, &m))
	}

	conv, err := st.GetConversation(ctx, "convA")
	require.NoError(t, err)
	assert.Len(t, conv.Participants, 1)
}

func TestGetConversationNotFound(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	_, err := st.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyBatchReportsMissingStatuses(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	res, err := st.ApplyBatch(ctx, Batch{
		Messages: []model.Message{msg("m1", "convA", "111", 10)},
		Statuses: []model.StatusUpdate{
			{MessageID: "m1", Status: model.StatusDelivered, LastUpdated: time.Unix(11, 0)},
			{MessageID: "future", Status: model.StatusRead, LastUpdated: time.Unix(12, 0)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Upserted)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "m1", res.Applied[0].MessageID)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, "future", res.Missing[0].MessageID)

	conv, err := st.GetConversation(ctx, "convA")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, conv.Messages[0].Status)
}

func TestLastUpdatedIsMaxAcrossGroup(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	early := msg("m1", "convA", "111", 10)
	late := msg("m2", "convA", "111", 5)
	late.LastUpdated = time.Unix(99, 0).UTC()
	require.NoError(t, st.UpsertMessage(ctx, &early))
	require.NoError(t, st.UpsertMessage(ctx, &late))

	convs, err := st.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, time.Unix(99, 0).UTC(), convs[0].LastUpdated)
}
