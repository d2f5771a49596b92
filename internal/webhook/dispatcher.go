package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/opentracing/opentracing-go"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/store"
	"github.com/postlane/mailengine/internal/tracing"
)

const systemHeaderPrefix = "X-Mailengine"

// Dispatcher pulls pending webhook deliveries, validates the parent
// webhook, signs the payload, and POSTs it. A failed delivery is written
// back as pending and becomes claimable again once the fixed claim guard
// (ClaimGuardS) has passed since its last attempt; no exponential back-off
// is computed. The claim loop is driven by an alitto/pond
// pool, the same shape modfin-brev/internal/mta/mta.go uses to bound
// concurrent sends.
type Dispatcher struct {
	store  *store.Store
	cfg    *config.WebhookConfig
	log    logger.Logger
	client *http.Client
	pool   *pond.WorkerPool
}

func NewDispatcher(s *store.Store, cfg *config.WebhookConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		store: s,
		cfg:   cfg,
		log:   log,
		client: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutS) * time.Second,
		},
		pool: pond.New(cfg.Concurrency*4, cfg.Concurrency, pond.MinWorkers(runtime.NumCPU())),
	}
}

// RunOnce drains the currently-pending queue of claimable deliveries,
// submitting one pool task per delivery. It returns once claim_next
// returns nil (queue empty for this tick).
func (d *Dispatcher) RunOnce(ctx context.Context) {
	for {
		delivery, err := d.store.ClaimNextWebhookDelivery(ctx, d.cfg.ClaimGuardS)
		if err != nil {
			d.log.Errorf("webhook dispatcher: claim failed: %v", err)
			return
		}
		if delivery == nil {
			return
		}

		d.pool.Submit(func() {
			d.process(context.Background(), delivery)
		})
	}
}

// Stop drains the pool, letting in-flight deliveries finish.
func (d *Dispatcher) Stop() {
	d.pool.StopAndWait()
}

func (d *Dispatcher) process(ctx context.Context, delivery *models.WebhookDelivery) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dispatcher.process")
	defer span.Finish()
	tracing.TagComponentWebhookDispatcher(span)
	span.LogKV("delivery_id", delivery.ID, "event", delivery.Event.String())

	webhookRow, err := d.store.Webhooks().GetByID(ctx, delivery.WebhookID)
	if err != nil {
		tracing.TraceErr(span, err)
		d.retryOrFail(ctx, delivery, err)
		return
	}
	if webhookRow == nil || !webhookRow.Active {
		// Deleted or inactive webhooks terminate the delivery immediately
		// (spec.md §4.5).
		if err := d.store.WebhookDeliveries().MarkFailedTerminal(ctx, delivery.ID, delivery.Attempts); err != nil {
			tracing.TraceErr(span, err)
		}
		return
	}

	payload, err := json.Marshal(delivery.Payload)
	if err != nil {
		tracing.TraceErr(span, err)
		d.retryOrFail(ctx, delivery, err)
		return
	}

	timestampMs := time.Now().UnixMilli()
	signature := Sign(webhookRow.Secret, timestampMs, payload)

	if err := d.post(ctx, webhookRow.URL, delivery.Event.String(), timestampMs, signature, payload); err != nil {
		tracing.TraceErr(span, err)
		d.retryOrFail(ctx, delivery, err)
		return
	}

	if err := d.store.WebhookDeliveries().MarkDelivered(ctx, delivery.ID); err != nil {
		tracing.TraceErr(span, err)
	}
}

func (d *Dispatcher) post(ctx context.Context, url, event string, timestampMs int64, signature string, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.RequestTimeoutS)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(systemHeaderPrefix+"-Event", event)
	req.Header.Set(systemHeaderPrefix+"-Timestamp", fmt.Sprintf("%d", timestampMs))
	req.Header.Set(systemHeaderPrefix+"-Signature", signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	return nil
}

func (d *Dispatcher) retryOrFail(ctx context.Context, delivery *models.WebhookDelivery, cause error) {
	// ClaimNextDelivery already incremented and persisted delivery.Attempts
	// on claim; it's already the post-claim count (mirrors email_worker.go's
	// attempts := message.Attempts).
	attempts := delivery.Attempts
	d.log.Warnf("webhook delivery %s attempt %d failed: %v", delivery.ID, attempts, cause)

	if attempts >= d.cfg.MaxRetries {
		if err := d.store.WebhookDeliveries().MarkFailedTerminal(ctx, delivery.ID, attempts); err != nil {
			d.log.Errorf("webhook dispatcher: mark failed terminal: %v", err)
		}
		return
	}

	if err := d.store.WebhookDeliveries().MarkFailedRetry(ctx, delivery.ID, attempts); err != nil {
		d.log.Errorf("webhook dispatcher: mark failed retry: %v", err)
	}
}
