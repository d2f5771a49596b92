package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/repository"
	"github.com/postlane/mailengine/internal/smtpclient"
	"github.com/postlane/mailengine/internal/store"
)

// fakeRepositories backs a real *store.Store with in-memory stand-ins for
// just the repository methods the Email Worker's state machine calls.
type fakeMessageRepository struct {
	repository.MessageRepository
	sentID, sentSMTPMessageID string
	rejectedID, rejectedReason string
	retryID, retryReason       string
	retryAttempts               int
	failedID, failedReason      string
	failedAttempts              int
	bouncedID, bouncedReason    string
}

func (f *fakeMessageRepository) MarkSent(ctx context.Context, id, smtpMessageID string) error {
	f.sentID, f.sentSMTPMessageID = id, smtpMessageID
	return nil
}

func (f *fakeMessageRepository) MarkRejected(ctx context.Context, id, reason string) error {
	f.rejectedID, f.rejectedReason = id, reason
	return nil
}

func (f *fakeMessageRepository) MarkRetry(ctx context.Context, id, reason string, attempts int) error {
	f.retryID, f.retryReason, f.retryAttempts = id, reason, attempts
	return nil
}

func (f *fakeMessageRepository) MarkFailed(ctx context.Context, id, reason string, attempts int) error {
	f.failedID, f.failedReason, f.failedAttempts = id, reason, attempts
	return nil
}

func (f *fakeMessageRepository) MarkBounced(ctx context.Context, id, reason string) error {
	f.bouncedID, f.bouncedReason = id, reason
	return nil
}

type fakeSuppressionRepository struct {
	repository.SuppressionRepository
	existing *models.Suppression
	created  *models.Suppression
}

func (f *fakeSuppressionRepository) Get(ctx context.Context, apiKeyID, email string) (*models.Suppression, error) {
	return f.existing, nil
}

func (f *fakeSuppressionRepository) Create(ctx context.Context, suppression *models.Suppression) error {
	f.created = suppression
	return nil
}

type fakeWebhookRepository struct {
	repository.WebhookRepository
	subscribers []models.Webhook
}

func (f *fakeWebhookRepository) ListActiveSubscribers(ctx context.Context, apiKeyID string, event enum.WebhookEventType) ([]models.Webhook, error) {
	return f.subscribers, nil
}

type fakeWebhookDeliveryRepository struct {
	repository.WebhookDeliveryRepository
	created []*models.WebhookDelivery
}

func (f *fakeWebhookDeliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	f.created = append(f.created, delivery)
	return nil
}

func newTestWorker(t *testing.T) (*EmailWorker, *fakeMessageRepository, *fakeSuppressionRepository, *fakeWebhookRepository, *fakeWebhookDeliveryRepository) {
	t.Helper()

	messages := &fakeMessageRepository{}
	suppressions := &fakeSuppressionRepository{}
	webhooks := &fakeWebhookRepository{}
	deliveries := &fakeWebhookDeliveryRepository{}

	repos := &repository.Repositories{
		MessageRepository:         messages,
		SuppressionRepository:     suppressions,
		WebhookRepository:         webhooks,
		WebhookDeliveryRepository: deliveries,
	}
	s := store.NewStore(repos)

	log := logger.NewAppLogger(&logger.Config{DevMode: true})
	log.InitLogger()

	w := &EmailWorker{
		store: s,
		cfg:   &config.WorkerConfig{MaxRetries: 3},
		log:   log,
	}

	return w, messages, suppressions, webhooks, deliveries
}

func TestEmailWorker_CheckSuppressed_NoEntry(t *testing.T) {
	// Arrange
	w, _, _, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "to@example.com"}

	// Act
	suppressed, reason := w.checkSuppressed(context.Background(), message)

	// Assert
	assert.False(t, suppressed)
	assert.Empty(t, reason)
}

func TestEmailWorker_CheckSuppressed_Entry(t *testing.T) {
	// Arrange
	w, _, suppressions, _, _ := newTestWorker(t)
	suppressions.existing = &models.Suppression{Reason: enum.SuppressionHardBounce}
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "to@example.com"}

	// Act
	suppressed, reason := w.checkSuppressed(context.Background(), message)

	// Assert
	assert.True(t, suppressed)
	assert.Contains(t, reason, "suppressed")
}

func TestEmailWorker_Reject_MarksRejected(t *testing.T) {
	// Arrange
	w, messages, _, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1"}

	// Act
	w.reject(context.Background(), message, "recipient suppressed: bounced")

	// Assert
	assert.Equal(t, "msg_1", messages.rejectedID)
	assert.Equal(t, "recipient suppressed: bounced", messages.rejectedReason)
}

func TestEmailWorker_Succeed_MarksSentAndFansOutWebhooks(t *testing.T) {
	// Arrange
	w, messages, _, webhooks, deliveries := newTestWorker(t)
	webhooks.subscribers = []models.Webhook{{ID: "wh_1"}}
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "to@example.com", FromAddress: "from@example.com"}

	// Act
	w.succeed(context.Background(), message, "smtp-id-123")

	// Assert
	assert.Equal(t, "msg_1", messages.sentID)
	assert.Equal(t, "smtp-id-123", messages.sentSMTPMessageID)
	require.Len(t, deliveries.created, 1)
	assert.Equal(t, "wh_1", deliveries.created[0].WebhookID)
	assert.Equal(t, enum.WebhookEventMessageSent, deliveries.created[0].Event)
	payload := deliveries.created[0].Payload
	assert.Equal(t, "msg_1", payload["messageId"])
	assert.Equal(t, "smtp-id-123", payload["smtpMessageId"])
}

func TestEmailWorker_Fail_WebhookPayloadUsesFailureReasonKey(t *testing.T) {
	// Arrange
	w, _, _, webhooks, deliveries := newTestWorker(t)
	webhooks.subscribers = []models.Webhook{{ID: "wh_1"}}
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "to@example.com", FromAddress: "from@example.com"}

	// Act
	w.fail(context.Background(), message, "all retries exhausted")

	// Assert
	require.Len(t, deliveries.created, 1)
	payload := deliveries.created[0].Payload
	assert.Equal(t, "msg_1", payload["messageId"])
	assert.Equal(t, "all retries exhausted", payload["failureReason"])
	assert.NotContains(t, payload, "reason")
}

func TestEmailWorker_Bounce_WebhookPayloadUsesBounceKeys(t *testing.T) {
	// Arrange
	w, messages, _, webhooks, deliveries := newTestWorker(t)
	webhooks.subscribers = []models.Webhook{{ID: "wh_1"}}
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "bounced@example.com", FromAddress: "from@example.com", Attempts: 1}
	classified := &smtpclient.Classified{Kind: enum.SMTPErrorPermanent, Code: 550, HardBounce: true, Err: errors.New("mailbox unavailable")}

	// Act
	w.handleSendFailure(context.Background(), message, classified)

	// Assert
	assert.Equal(t, "msg_1", messages.failedID)
	require.Len(t, deliveries.created, 1)
	payload := deliveries.created[0].Payload
	assert.Equal(t, "msg_1", payload["messageId"])
	assert.Equal(t, "hard", payload["bounceType"])
	assert.Equal(t, 550, payload["bounceCode"])
	assert.Equal(t, "mailbox unavailable", payload["bounceMessage"])
}

func TestEmailWorker_HandleSendFailure_RetryableUnderLimit(t *testing.T) {
	// Arrange
	w, messages, _, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1", Attempts: 1}
	classified := &smtpclient.Classified{Kind: enum.SMTPErrorTemporary, Err: errors.New("temporary failure")}

	// Act
	w.handleSendFailure(context.Background(), message, classified)

	// Assert
	assert.Equal(t, "msg_1", messages.retryID)
	assert.Equal(t, 1, messages.retryAttempts)
	assert.Empty(t, messages.failedID)
}

func TestEmailWorker_HandleSendFailure_RetryableButAttemptsExhausted(t *testing.T) {
	// Arrange
	w, messages, _, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1", Attempts: 3}
	classified := &smtpclient.Classified{Kind: enum.SMTPErrorTemporary, Err: errors.New("still failing")}

	// Act
	w.handleSendFailure(context.Background(), message, classified)

	// Assert: MaxRetries is 3, so attempts==3 no longer qualifies for retry.
	assert.Empty(t, messages.retryID)
	assert.Equal(t, "msg_1", messages.failedID)
}

func TestEmailWorker_HandleSendFailure_HardBounceSuppressesRecipient(t *testing.T) {
	// Arrange
	w, messages, suppressions, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1", APIKeyID: "key_1", ToAddress: "bounced@example.com", Attempts: 1}
	classified := &smtpclient.Classified{Kind: enum.SMTPErrorPermanent, Code: 550, HardBounce: true, Err: errors.New("mailbox unavailable")}

	// Act
	w.handleSendFailure(context.Background(), message, classified)

	// Assert
	assert.Equal(t, "msg_1", messages.failedID)
	require.NotNil(t, suppressions.created)
	assert.Equal(t, "bounced@example.com", suppressions.created.Email)
	assert.Equal(t, enum.SuppressionHardBounce, suppressions.created.Reason)
}

func TestEmailWorker_HandleSendFailure_PermanentNonBounceFails(t *testing.T) {
	// Arrange
	w, messages, suppressions, _, _ := newTestWorker(t)
	message := &models.Message{ID: "msg_1", Attempts: 1}
	classified := &smtpclient.Classified{Kind: enum.SMTPErrorPermanent, Code: 501, HardBounce: false, Err: errors.New("syntax error")}

	// Act
	w.handleSendFailure(context.Background(), message, classified)

	// Assert
	assert.Equal(t, "msg_1", messages.failedID)
	assert.Nil(t, suppressions.created)
}


