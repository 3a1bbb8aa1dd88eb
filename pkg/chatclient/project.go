package chatclient

import (
	"time"

	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

// User identifies the other party of a chat.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	PhoneNumber string `json:"phoneNumber"`
}

// MessageView is one message as displayed.
type MessageView struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
	IsSender  bool         `json:"isSender"`
	Status    model.Status `json:"status"`
}

// Chat wraps one conversation for display.
type Chat struct {
	ConversationID string        `json:"conversationId"`
	User           User          `json:"user"`
	Messages       []MessageView `json:"messages"`
	UnreadCount    int           `json:"unreadCount"`
}

// Project maps aggregated conversations into chat view-models. The input
// order is preserved: the server's recency ordering is authoritative and
// the client never re-sorts fetched chats.
func Project(convs []model.Conversation, selfPhone string) []Chat {
	chats := make([]Chat, 0, len(convs))
	for _, conv := range convs {
		chats = append(chats, projectOne(conv, selfPhone))
	}
	return chats
}

func projectOne(conv model.Conversation, selfPhone string) Chat {
	// The other party is the first participant that is not us. A
	// conversation where we only ever sent falls back to a pseudo-user
	// derived from the conversation itself.
	user := User{
		ID:          conv.ID,
		Name:        "Unknown",
		Avatar:      avatarURL(conv.ID),
		PhoneNumber: "Unknown",
	}
	for _, p := range conv.Participants {
		if p.Phone != selfPhone {
			user = User{
				ID:          p.Phone,
				Name:        p.Name,
				Avatar:      avatarURL(p.Phone),
				PhoneNumber: p.Phone,
			}
			if user.Name == "" {
				user.Name = "Unknown"
			}
			break
		}
	}

	msgs := make([]MessageView, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		isSender := m.From == selfPhone
		status := m.Status
		if !status.Valid() {
			// Messages stored before status tracking default by direction.
			if isSender {
				status = model.StatusSent
			} else {
				status = model.StatusDelivered
			}
		}
		msgs = append(msgs, MessageView{
			ID:        m.ID,
			Text:      m.Body,
			Timestamp: m.Timestamp,
			IsSender:  isSender,
			Status:    status,
		})
	}

	return Chat{
		ConversationID: conv.ID,
		User:           user,
		Messages:       msgs,
		UnreadCount:    countUnread(msgs),
	}
}

// countUnread counts received messages not yet read.
func countUnread(msgs []MessageView) int {
	n := 0
	for _, m := range msgs {
		if !m.IsSender && m.Status != model.StatusRead {
			n++
		}
	}
	return n
}

func avatarURL(seed string) string {
	return "https://i.pravatar.cc/150?u=" + seed
}
