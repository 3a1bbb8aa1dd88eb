package model

// Provider webhook wire types. The shapes follow the WhatsApp Business
// webhook format as delivered by the upstream gateway.

// WebhookProfile carries a contact's display profile.
type WebhookProfile struct {
	Name string `json:"name"`
}

// WebhookContact maps a WhatsApp ID to a profile.
type WebhookContact struct {
	Profile WebhookProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

// WebhookText is the text body of a message event.
type WebhookText struct {
	Body string `json:"body"`
}

// WebhookMessage is one inbound message event.
type WebhookMessage struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Text      *WebhookText `json:"text,omitempty"`
	Type      string       `json:"type,omitempty"`
	// ConversationID is the provider-supplied thread identifier. Older
	// gateway payloads omit it; see ingest.ConversationID for the fallback.
	ConversationID string `json:"conversation_id,omitempty"`
}

// WebhookStatus is one delivery-status event for a previously sent message.
type WebhookStatus struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Status      Status `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// WebhookMetadata identifies the business phone number the event belongs to.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookValue is the payload of a single change.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []WebhookMessage `json:"messages,omitempty"`
	Statuses         []WebhookStatus  `json:"statuses,omitempty"`
}

// WebhookChange wraps a value with the field it changed.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookEntry is one account entry within a payload.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookMetaData is the envelope around a payload's entries.
type WebhookMetaData struct {
	Entry   []WebhookEntry `json:"entry"`
	GsAppID string         `json:"gs_app_id"`
	Object  string         `json:"object"`
}

// RawPayload is one webhook delivery from the messaging provider.
type RawPayload struct {
	PayloadType string          `json:"payload_type"`
	ID          string          `json:"_id"`
	MetaData    WebhookMetaData `json:"metaData"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	Executed    bool            `json:"executed,omitempty"`
}
