// Package model defines data structures for the webhook inbox.
package model

import (
	"time"
)

// Status represents a message's position in the delivery lifecycle.
type Status string

const (
	StatusReceived  Status = "received"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders the delivery lifecycle. Failed is terminal and
// outranks everything.
var statusRank = map[Status]int{
	StatusReceived:  0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
	StatusFailed:    4,
}

// Rank returns the lifecycle rank of s. Unknown statuses rank lowest so
// they can never displace a known one.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Message is one flat message document in the processed_messages collection.
type Message struct {
	MessageID          string    `bson:"messageId" json:"messageId"`
	ConversationID     string    `bson:"conversationId" json:"conversationId"`
	Body               string    `bson:"body" json:"body"`
	From               string    `bson:"from" json:"from"`
	To                 string    `bson:"to" json:"to"`
	Timestamp          time.Time `bson:"timestamp" json:"timestamp"`
	Status             Status    `bson:"status" json:"status"`
	Type               string    `bson:"type,omitempty" json:"type,omitempty"`
	ContactName        string    `bson:"contactName,omitempty" json:"contactName,omitempty"`
	PhoneNumberID      string    `bson:"phoneNumberId" json:"phoneNumberId"`
	DisplayPhoneNumber string    `bson:"displayPhoneNumber" json:"displayPhoneNumber"`
	AppID              string    `bson:"appId" json:"appId"`
	LastUpdated        time.Time `bson:"lastUpdated" json:"lastUpdated"`
}

// StatusUpdate is a status-only mutation for an already stored message.
type StatusUpdate struct {
	MessageID   string
	Status      Status
	LastUpdated time.Time
}

// ConversationMessage is the message shape exposed by the read API.
type ConversationMessage struct {
	ID        string    `bson:"id" json:"id"`
	Body      string    `bson:"body" json:"body"`
	From      string    `bson:"from" json:"from"`
	To        string    `bson:"to" json:"to"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Status    Status    `bson:"status" json:"status"`
	Type      string    `bson:"type,omitempty" json:"type,omitempty"`
}

// Participant is one distinct sender within a conversation.
type Participant struct {
	Phone string `bson:"phone" json:"phone"`
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
}

// Conversation is the derived read model: never persisted, materialized
// fresh on every aggregation.
type Conversation struct {
	ID           string                `bson:"id" json:"id"`
	Messages     []ConversationMessage `bson:"messages" json:"messages"`
	Participants []Participant         `bson:"participants" json:"participants"`
	LastUpdated  time.Time             `bson:"lastUpdated" json:"lastUpdated"`
}

// View returns the API shape of m.
func (m *Message) View() ConversationMessage {
	return ConversationMessage{
		ID:        m.MessageID,
		Body:      m.Body,
		From:      m.From,
		To:        m.To,
		Timestamp: m.Timestamp,
		Status:    m.Status,
		Type:      m.Type,
	}
}
