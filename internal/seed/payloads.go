// Package seed holds the fixed payload set used to initialize the
// database with sample conversations.
package seed

import (
	"github.com/relaymesh/whatsapp-inbox/pkg/model"
)

const (
	businessPhoneID = "629305560276479"
	businessDisplay = "918329446654"
	appID           = "app-3f6c8e2a"
)

// Payloads returns the sample webhook deliveries: two conversations with
// inbound messages, business replies, and later status updates for the
// replies. Payload order matters: statuses reference earlier messages.
func Payloads() []model.RawPayload {
	return []model.RawPayload{
		messagePayload("conv1-msg1-user", "919937320320", "Ravi Kumar",
			"wamid.conv1-msg1", "Hi, I'd like to know more about your services.", "1754400000"),
		messagePayload("conv1-msg2-api", businessDisplay, "",
			"wamid.conv1-msg2", "Hi Ravi! Sure, I'd be happy to help you with that. Could you tell me what you're looking for?", "1754400020"),
		statusPayload("conv1-status1", "wamid.conv1-msg2", model.StatusSent, "1754400021"),
		statusPayload("conv1-status2", "wamid.conv1-msg2", model.StatusDelivered, "1754400023"),
		messagePayload("conv2-msg1-user", "929967673820", "Neha Joshi",
			"wamid.conv2-msg1", "Hi, I saw your ad. Can you share more details?", "1754401000"),
		messagePayload("conv2-msg2-api", businessDisplay, "",
			"wamid.conv2-msg2", "Hi Neha! Absolutely. Our services include consulting, implementation, and support.", "1754401030"),
		statusPayload("conv2-status1", "wamid.conv2-msg2", model.StatusSent, "1754401031"),
		statusPayload("conv2-status2", "wamid.conv2-msg2", model.StatusRead, "1754401100"),
	}
}

func messagePayload(payloadID, from, name, msgID, body, ts string) model.RawPayload {
	var contacts []model.WebhookContact
	if name != "" {
		contacts = []model.WebhookContact{
			{Profile: model.WebhookProfile{Name: name}, WaID: from},
		}
	}
	return model.RawPayload{
		PayloadType: "whatsapp_webhook",
		ID:          payloadID,
		MetaData: model.WebhookMetaData{
			Object:  "whatsapp_business_account",
			GsAppID: appID,
			Entry: []model.WebhookEntry{{
				ID: "entry-" + payloadID,
				Changes: []model.WebhookChange{{
					Field: "messages",
					Value: model.WebhookValue{
						MessagingProduct: "whatsapp",
						Metadata: model.WebhookMetadata{
							DisplayPhoneNumber: businessDisplay,
							PhoneNumberID:      businessPhoneID,
						},
						Contacts: contacts,
						Messages: []model.WebhookMessage{{
							From:      from,
							ID:        msgID,
							Timestamp: ts,
							Type:      "text",
							Text:      &model.WebhookText{Body: body},
						}},
					},
				}},
			}},
		},
	}
}

func statusPayload(payloadID, msgID string, status model.Status, ts string) model.RawPayload {
	return model.RawPayload{
		PayloadType: "whatsapp_webhook",
		ID:          payloadID,
		MetaData: model.WebhookMetaData{
			Object:  "whatsapp_business_account",
			GsAppID: appID,
			Entry: []model.WebhookEntry{{
				ID: "entry-" + payloadID,
				Changes: []model.WebhookChange{{
					Field: "messages",
					Value: model.WebhookValue{
						MessagingProduct: "whatsapp",
						Metadata: model.WebhookMetadata{
							DisplayPhoneNumber: businessDisplay,
							PhoneNumberID:      businessPhoneID,
						},
						Statuses: []model.WebhookStatus{{
							ID:          msgID,
							RecipientID: "919937320320",
							Status:      status,
							Timestamp:   ts,
						}},
					},
				}},
			}},
		},
	}
}
