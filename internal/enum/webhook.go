package enum

// WebhookEventType is the taxonomy of events a tenant webhook may subscribe
// to. Only the "message.sent", "message.bounced" and "message.failed" rows
// are actually emitted by the core; the rest are reserved for future
// producers (the inbound/DNS/open-tracking surfaces this repository treats
// as external collaborators).
type WebhookEventType string

const (
	WebhookEventMessageQueued    WebhookEventType = "message.queued"
	WebhookEventMessageSent      WebhookEventType = "message.sent"
	WebhookEventMessageDelivered WebhookEventType = "message.delivered"
	WebhookEventMessageBounced   WebhookEventType = "message.bounced"
	WebhookEventMessageFailed    WebhookEventType = "message.failed"
	WebhookEventMessageOpened    WebhookEventType = "message.opened"
	WebhookEventMessageClicked   WebhookEventType = "message.clicked"
	WebhookEventComplaintReceived WebhookEventType = "complaint.received"
)

func (e WebhookEventType) String() string {
	return string(e)
}

// WebhookDeliveryStatus is the Webhook Dispatcher's state machine:
// pending -> delivered | failed. Retries keep a delivery in pending with an
// incremented attempt counter until attempts >= max_webhook_retries.
type WebhookDeliveryStatus string

const (
	WebhookDeliveryPending   WebhookDeliveryStatus = "pending"
	WebhookDeliveryDelivered WebhookDeliveryStatus = "delivered"
	WebhookDeliveryFailed    WebhookDeliveryStatus = "failed"
)

func (s WebhookDeliveryStatus) String() string {
	return string(s)
}
