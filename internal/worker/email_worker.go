package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/opentracing/opentracing-go"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/dkim"
	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/events"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/smtpclient"
	"github.com/postlane/mailengine/internal/store"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/utils"
)

// EmailWorker drives claimed messages through the state machine documented
// on enum.MessageStatus: suppression check, DKIM resolution, send, then the
// success/retry/fail/bounce branch (spec.md §4.3). One EmailWorker claim
// loop runs per process; its pool fans claimed messages out across
// cfg.Concurrency goroutines, mirroring modfin-brev/internal/mta/mta.go's
// spool-drain-and-submit loop.
type EmailWorker struct {
	store  *store.Store
	smtp   *smtpclient.Client
	dkim   *dkim.Resolver
	events *events.Publisher
	cfg    *config.WorkerConfig
	log    logger.Logger
	pool   *pond.WorkerPool

	ostop sync.Once
}

// NewEmailWorker wires the claim loop to its send and signing
// dependencies. eventsPublisher may be nil, in which case the worker
// skips the internal event bus entirely and only emits tenant webhooks —
// the bus is an additive notification channel, not a requirement of the
// state machine itself.
func NewEmailWorker(s *store.Store, smtpClient *smtpclient.Client, resolver *dkim.Resolver, eventsPublisher *events.Publisher, cfg *config.WorkerConfig, log logger.Logger) *EmailWorker {
	return &EmailWorker{
		store:  s,
		smtp:   smtpClient,
		dkim:   resolver,
		events: eventsPublisher,
		cfg:    cfg,
		log:    log,
		pool:   pond.New(cfg.Concurrency*4, cfg.Concurrency, pond.MinWorkers(runtime.NumCPU())),
	}
}

// RunOnce drains every currently-queued message, claiming and submitting
// them one at a time until the queue reports empty. The poller calls this
// on every wake-up (notify or periodic, spec.md §4.6).
func (w *EmailWorker) RunOnce(ctx context.Context) {
	for {
		message, err := w.store.ClaimNextMessage(ctx)
		if err != nil {
			w.log.Errorf("email worker: claim failed: %v", err)
			return
		}
		if message == nil {
			return
		}

		if w.pool.Stopped() {
			w.log.Warnf("email worker: pool stopped, leaving %s claimed for the next sweep", message.ID)
			return
		}
		w.pool.Submit(func() {
			w.process(context.Background(), message)
		})
	}
}

func (w *EmailWorker) Stop() {
	w.ostop.Do(func() {
		w.pool.StopAndWait()
		w.smtp.Close()
	})
}

func (w *EmailWorker) process(ctx context.Context, message *models.Message) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailWorker.process")
	defer span.Finish()
	tracing.TagComponentWorker(span)
	tracing.TagEntity(span, message.ID)
	span.LogKV("to", message.ToAddress, "attempts", message.Attempts)

	suppressed, reason := w.checkSuppressed(ctx, message)
	if suppressed {
		w.reject(ctx, message, reason)
		return
	}

	smtpMessageID := fmt.Sprintf("%s@%s", message.ID, w.smtp.SystemDomain())
	raw, err := smtpclient.BuildRawMessage(message, smtpMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		w.fail(ctx, message, err.Error())
		return
	}

	raw = w.maybeSign(ctx, message, raw)

	result, classified := w.smtp.Send(ctx, message, smtpMessageID, raw)
	if classified != nil {
		w.handleSendFailure(ctx, message, classified)
		return
	}

	w.succeed(ctx, message, result.SMTPMessageID)
}

// checkSuppressed looks up the recipient on the owning tenant's suppression
// list before ever dialing out (spec.md §4.3 step 1).
func (w *EmailWorker) checkSuppressed(ctx context.Context, message *models.Message) (bool, string) {
	suppression, err := w.store.Suppressions().Get(ctx, message.APIKeyID, message.ToAddress)
	if err != nil {
		w.log.Warnf("email worker: suppression lookup failed for %s, sending anyway: %v", message.ID, err)
		return false, ""
	}
	if suppression == nil {
		return false, ""
	}
	return true, fmt.Sprintf("recipient suppressed: %s", suppression.Reason)
}

// maybeSign resolves the From domain's DKIM key and signs raw, falling
// through to the unsigned message on any resolution or signing failure
// (spec.md §4.2: signing failures are warnings, never send failures).
func (w *EmailWorker) maybeSign(ctx context.Context, message *models.Message, raw []byte) []byte {
	domain := utils.ExtractDomainFromEmail(message.FromAddress)
	if domain == "" {
		return raw
	}

	signer := w.dkim.Resolve(ctx, message.APIKeyID, domain)
	if signer == nil {
		return raw
	}

	signed, err := signer.Sign(raw)
	if err != nil {
		w.log.Warnf("email worker: dkim sign failed for %s, sending unsigned: %v", message.ID, err)
		return raw
	}
	return signed
}

func (w *EmailWorker) handleSendFailure(ctx context.Context, message *models.Message, classified *smtpclient.Classified) {
	attempts := message.Attempts
	shouldRetry := classified.Kind.ShouldRetry() && attempts < w.cfg.MaxRetries

	if shouldRetry {
		w.log.Warnf("email worker: %s send failed (%s), requeuing attempt %d/%d: %v",
			message.ID, classified.Kind, attempts, w.cfg.MaxRetries, classified)
		if err := w.store.MarkMessageRetry(ctx, message.ID, classified.Error(), attempts); err != nil {
			w.log.Errorf("email worker: mark retry failed for %s: %v", message.ID, err)
		}
		return
	}

	if classified.HardBounce {
		w.bounce(ctx, message, classified)
		return
	}

	w.fail(ctx, message, classified.Error())
}

func (w *EmailWorker) succeed(ctx context.Context, message *models.Message, smtpMessageID string) {
	if err := w.store.MarkMessageSent(ctx, message.ID, smtpMessageID); err != nil {
		w.log.Errorf("email worker: mark sent failed for %s: %v", message.ID, err)
		return
	}
	extra := models.JSONMap{"smtpMessageId": smtpMessageID}
	w.enqueueWebhooks(ctx, message, enum.WebhookEventMessageSent, extra)
	w.publishEvent(ctx, message, enum.WebhookEventMessageSent, extra)
}

func (w *EmailWorker) fail(ctx context.Context, message *models.Message, reason string) {
	if err := w.store.MarkMessageFailed(ctx, message.ID, reason, message.Attempts); err != nil {
		w.log.Errorf("email worker: mark failed for %s: %v", message.ID, err)
		return
	}
	extra := models.JSONMap{"failureReason": reason}
	w.enqueueWebhooks(ctx, message, enum.WebhookEventMessageFailed, extra)
	w.publishEvent(ctx, message, enum.WebhookEventMessageFailed, extra)
}

func (w *EmailWorker) reject(ctx context.Context, message *models.Message, reason string) {
	if err := w.store.MarkMessageRejected(ctx, message.ID, reason); err != nil {
		w.log.Errorf("email worker: mark rejected for %s: %v", message.ID, err)
	}
}

// bounce marks the message failed, suppresses the recipient so no later
// message to the same address is even attempted, and emits
// message.bounced instead of message.failed (spec.md §4.3 step 5).
func (w *EmailWorker) bounce(ctx context.Context, message *models.Message, classified *smtpclient.Classified) {
	if err := w.store.MarkMessageFailed(ctx, message.ID, classified.Error(), message.Attempts); err != nil {
		w.log.Errorf("email worker: mark bounced for %s: %v", message.ID, err)
		return
	}

	suppression := &models.Suppression{
		APIKeyID: message.APIKeyID,
		Email:    message.ToAddress,
		Reason:   enum.SuppressionHardBounce,
	}
	if err := w.store.Suppressions().Create(ctx, suppression); err != nil {
		w.log.Errorf("email worker: suppress %s after bounce failed: %v", message.ToAddress, err)
	}

	extra := models.JSONMap{
		"bounceType":    "hard",
		"bounceCode":    classified.Code,
		"bounceMessage": classified.Error(),
	}
	w.enqueueWebhooks(ctx, message, enum.WebhookEventMessageBounced, extra)
	w.publishEvent(ctx, message, enum.WebhookEventMessageBounced, extra)
}

// publishEvent forwards a status transition onto the internal event bus.
// A publish failure is logged and dropped, never surfaced as a message
// processing failure (events.Publisher's own "best-effort" contract).
func (w *EmailWorker) publishEvent(ctx context.Context, message *models.Message, eventType enum.WebhookEventType, data models.JSONMap) {
	if w.events == nil {
		return
	}

	event := events.Event{
		Type:      eventType,
		MessageID: message.ID,
		APIKeyID:  message.APIKeyID,
		Timestamp: utils.Now().Format(time.RFC3339),
		Data:      data,
	}
	if err := w.events.Publish(ctx, event); err != nil {
		w.log.Warnf("email worker: publish internal event %s for %s failed: %v", eventType, message.ID, err)
	}
}

// enqueueWebhooks fans a status transition out to every active subscriber
// of event for the message's tenant (spec.md §4.4). A delivery that fails
// to enqueue is logged and dropped rather than failing the message
// transition it is reporting on.
func (w *EmailWorker) enqueueWebhooks(ctx context.Context, message *models.Message, event enum.WebhookEventType, extra map[string]interface{}) {
	subscribers, err := w.store.Webhooks().ListActiveSubscribers(ctx, message.APIKeyID, event)
	if err != nil {
		w.log.Errorf("email worker: list subscribers for %s failed: %v", event, err)
		return
	}
	if len(subscribers) == 0 {
		return
	}

	payload := models.JSONMap{
		"messageId": message.ID,
		"event":     event.String(),
		"to":        message.ToAddress,
		"from":      message.FromAddress,
		"timestamp": utils.Now(),
	}
	for k, v := range extra {
		payload[k] = v
	}

	messageID := message.ID
	for _, webhook := range subscribers {
		delivery := &models.WebhookDelivery{
			WebhookID: webhook.ID,
			MessageID: &messageID,
			Event:     event,
			Payload:   payload,
		}
		if err := w.store.WebhookDeliveries().Create(ctx, delivery); err != nil {
			w.log.Errorf("email worker: enqueue webhook delivery for %s failed: %v", webhook.ID, err)
		}
	}
}
