package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/repository"
	"github.com/postlane/mailengine/internal/store"
)

type fakeWebhookRepository struct {
	repository.WebhookRepository
	webhook *models.Webhook
}

func (f *fakeWebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	return f.webhook, nil
}

type fakeWebhookDeliveryRepository struct {
	repository.WebhookDeliveryRepository
	deliveredID      string
	retryID          string
	retriedAttempts  int
	terminalID       string
	terminalAttempts int
}

func (f *fakeWebhookDeliveryRepository) MarkDelivered(ctx context.Context, id string) error {
	f.deliveredID = id
	return nil
}

func (f *fakeWebhookDeliveryRepository) MarkFailedRetry(ctx context.Context, id string, attempts int) error {
	f.retryID = id
	f.retriedAttempts = attempts
	return nil
}

func (f *fakeWebhookDeliveryRepository) MarkFailedTerminal(ctx context.Context, id string, attempts int) error {
	f.terminalID = id
	f.terminalAttempts = attempts
	return nil
}

func newTestDispatcher(t *testing.T, maxRetries int) (*Dispatcher, *fakeWebhookRepository, *fakeWebhookDeliveryRepository) {
	t.Helper()

	webhooks := &fakeWebhookRepository{}
	deliveries := &fakeWebhookDeliveryRepository{}

	repos := &repository.Repositories{
		WebhookRepository:         webhooks,
		WebhookDeliveryRepository: deliveries,
	}
	s := store.NewStore(repos)

	log := logger.NewAppLogger(&logger.Config{DevMode: true})
	log.InitLogger()

	d := NewDispatcher(s, &config.WebhookConfig{
		Concurrency:     1,
		MaxRetries:      maxRetries,
		RequestTimeoutS: 5,
		ClaimGuardS:     30,
	}, log)

	return d, webhooks, deliveries
}

// TestDispatcher_RetryOrFail_AttemptsReflectClaimCount asserts that
// retryOrFail stores the attempt count ClaimNextDelivery already
// persisted, with no second increment layered on top. Five claim-time
// increments (ClaimNextDelivery's job, not this one) must exhaust
// max_webhook_retries=5 after the fifth real POST, not the third.
func TestDispatcher_RetryOrFail_AttemptsReflectClaimCount(t *testing.T) {
	// Arrange
	d, _, deliveries := newTestDispatcher(t, 5)
	delivery := &models.WebhookDelivery{ID: "whd_1", Attempts: 4}

	// Act: the delivery has already been claimed 4 times; this is the 4th
	// failure.
	d.retryOrFail(context.Background(), delivery, assert.AnError)

	// Assert: still below max_webhook_retries, so it's requeued with the
	// claimed attempt count, not attempts+1.
	assert.Equal(t, "whd_1", deliveries.retryID)
	assert.Equal(t, 4, deliveries.retriedAttempts)
	assert.Empty(t, deliveries.terminalID)
}

func TestDispatcher_RetryOrFail_TerminatesAtMaxRetries(t *testing.T) {
	// Arrange
	d, _, deliveries := newTestDispatcher(t, 5)
	delivery := &models.WebhookDelivery{ID: "whd_1", Attempts: 5}

	// Act: the 5th claim has just failed.
	d.retryOrFail(context.Background(), delivery, assert.AnError)

	// Assert: a 6th POST never occurs (spec.md B5); attempts is the
	// already-claimed count, not 6.
	assert.Equal(t, "whd_1", deliveries.terminalID)
	assert.Equal(t, 5, deliveries.terminalAttempts)
	assert.Empty(t, deliveries.retryID)
}

func TestDispatcher_Process_SuccessMarksDelivered(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d, webhooks, deliveries := newTestDispatcher(t, 5)
	webhooks.webhook = &models.Webhook{ID: "wh_1", URL: server.URL, Secret: "secret", Active: true}
	delivery := &models.WebhookDelivery{ID: "whd_1", WebhookID: "wh_1", Event: enum.WebhookEventMessageSent, Payload: models.JSONMap{"messageId": "msg_1"}}

	// Act
	d.process(context.Background(), delivery)

	// Assert
	assert.Equal(t, "whd_1", deliveries.deliveredID)
	assert.Empty(t, deliveries.retryID)
	assert.Empty(t, deliveries.terminalID)
}

func TestDispatcher_Process_InactiveWebhookTerminatesImmediately(t *testing.T) {
	// Arrange
	d, webhooks, deliveries := newTestDispatcher(t, 5)
	webhooks.webhook = &models.Webhook{ID: "wh_1", Active: false}
	delivery := &models.WebhookDelivery{ID: "whd_1", WebhookID: "wh_1", Attempts: 1, Payload: models.JSONMap{}}

	// Act
	d.process(context.Background(), delivery)

	// Assert
	require.Equal(t, "whd_1", deliveries.terminalID)
	assert.Equal(t, 1, deliveries.terminalAttempts)
}
