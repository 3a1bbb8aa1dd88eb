package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

const selfPhone = "918329446654"

func conv(id string, participants []model.Participant, msgs ...model.ConversationMessage) model.Conversation {
	c := model.Conversation{
		ID:           id,
		Messages:     msgs,
		Participants: participants,
	}
	for _, m := range msgs {
		if m.Timestamp.After(c.LastUpdated) {
			c.LastUpdated = m.Timestamp
		}
	}
	return c
}

func cmsg(id, from string, status model.Status, ts int64) model.ConversationMessage {
	return model.ConversationMessage{
		ID:        id,
		Body:      "body-" + id,
		From:      from,
		To:        selfPhone,
		Timestamp: time.Unix(ts, 0).UTC(),
		Status:    status,
	}
}

func TestProjectRolesAndUnread(t *testing.T) {
	chats := Project([]model.Conversation{
		conv("convA",
			[]model.Participant{{Phone: "919937320320", Name: "Ravi Kumar"}, {Phone: selfPhone}},
			cmsg("m1", selfPhone, model.StatusSent, 10),
			cmsg("m2", "919937320320", model.StatusDelivered, 20),
		),
	}, selfPhone)

	require.Len(t, chats, 1)
	chat := chats[0]

	assert.Equal(t, "919937320320", chat.User.ID)
	assert.Equal(t, "Ravi Kumar", chat.User.Name)
	assert.Equal(t, "919937320320", chat.User.PhoneNumber)

	require.Len(t, chat.Messages, 2)
	assert.True(t, chat.Messages[0].IsSender)
	assert.False(t, chat.Messages[1].IsSender)
	assert.Equal(t, 1, chat.UnreadCount)
}

func TestProjectFallbackUser(t *testing.T) {
	// Only our own number participated: fall back to a pseudo-user
	// derived from the conversation itself.
	chats := Project([]model.Conversation{
		conv("convA",
			[]model.Participant{{Phone: selfPhone}},
			cmsg("m1", selfPhone, model.StatusSent, 10),
		),
	}, selfPhone)

	require.Len(t, chats, 1)
	assert.Equal(t, "convA", chats[0].User.ID)
	assert.Equal(t, "Unknown", chats[0].User.Name)
}

func TestProjectEmptyStatusDefaults(t *testing.T) {
	chats := Project([]model.Conversation{
		conv("convA",
			[]model.Participant{{Phone: "555"}},
			cmsg("m1", selfPhone, "", 10),
			cmsg("m2", "555", "", 20),
		),
	}, selfPhone)

	require.Len(t, chats, 1)
	msgs := chats[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, model.StatusSent, msgs[0].Status, "self-sent defaults to sent")
	assert.Equal(t, model.StatusDelivered, msgs[1].Status, "received defaults to delivered")
}

func TestProjectPreservesServerOrder(t *testing.T) {
	chats := Project([]model.Conversation{
		conv("convB", []model.Participant{{Phone: "222"}}, cmsg("m3", "222", model.StatusRead, 30)),
		conv("convA", []model.Participant{{Phone: "111"}}, cmsg("m1", "111", model.StatusRead, 10)),
	}, selfPhone)

	require.Len(t, chats, 2)
	assert.Equal(t, "convB", chats[0].ConversationID)
	assert.Equal(t, "convA", chats[1].ConversationID)
}

func TestProjectUnnamedParticipantFallsBackToUnknown(t *testing.T) {
	chats := Project([]model.Conversation{
		conv("convA", []model.Participant{{Phone: "555"}}, cmsg("m1", "555", model.StatusRead, 10)),
	}, selfPhone)

	require.Len(t, chats, 1)
	assert.Equal(t, "Unknown", chats[0].User.Name)
	assert.Equal(t, "555", chats[0].User.PhoneNumber)
}
