package store

import (
	"time"

	"github.com/lib/pq"

	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/store/notify"
)

const (
	minReconnectInterval = time.Second
	maxReconnectInterval = 30 * time.Second
)

// Listener wraps two pq.Listener subscriptions (one per wake-up channel)
// and exposes them as non-blocking signal channels. The Poller reads from
// MessageWake() and WebhookWake() opportunistically; missing a notification
// is harmless because the Poller's periodic poll tick covers the gap
// (spec.md §4.6).
type Listener struct {
	messageListener *pq.Listener
	webhookListener *pq.Listener

	messageWake chan struct{}
	webhookWake chan struct{}
}

func NewListener(dsn string, log logger.Logger) *Listener {
	l := &Listener{
		messageWake: make(chan struct{}, 1),
		webhookWake: make(chan struct{}, 1),
	}

	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnf("store listener event: %v", err)
		}
	}

	l.messageListener = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, reportProblem)
	l.webhookListener = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, reportProblem)

	return l
}

// Start subscribes to both channels and begins forwarding notifications.
// Call Stop to release the underlying connections.
func (l *Listener) Start() error {
	if err := l.messageListener.Listen(notify.ChannelMessageQueued); err != nil {
		return err
	}
	if err := l.webhookListener.Listen(notify.ChannelWebhookPending); err != nil {
		return err
	}

	go l.forward(l.messageListener, l.messageWake)
	go l.forward(l.webhookListener, l.webhookWake)

	return nil
}

func (l *Listener) forward(src *pq.Listener, wake chan struct{}) {
	for range src.Notify {
		select {
		case wake <- struct{}{}:
		default:
			// a wake-up is already pending; the claim loop will pick up
			// every ready row regardless, so a coalesced signal is fine.
		}
	}
}

// MessageWake signals whenever a message_queued NOTIFY arrives.
func (l *Listener) MessageWake() <-chan struct{} {
	return l.messageWake
}

// WebhookWake signals whenever a webhook_pending NOTIFY arrives.
func (l *Listener) WebhookWake() <-chan struct{} {
	return l.webhookWake
}

func (l *Listener) Stop() error {
	if err := l.messageListener.Close(); err != nil {
		return err
	}
	return l.webhookListener.Close()
}
