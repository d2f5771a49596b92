package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/postlane/mailengine/internal/enum"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/tracing"
)

const (
	ExchangeMailengineEvents = "mailengine-events"

	QueueEvents = "events-mailengine"
	DLQEvents   = QueueEvents + "-dlq"

	RoutingKeyDeadLetter = "dead-letter"
	ExchangeDeadLetter   = "dead-letter"

	DefaultMessageTTL          = 240 * time.Hour
	DefaultMaxRetries          = 3
	DefaultPublishTimeout      = 5 * time.Second
	DefaultReconnectBackoff    = time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// Event is the envelope published to ExchangeMailengineEvents for every
// sent, failed or bounced transition; rejections are not published
// (spec.md §4.3/§4.4's "internal
// event" side effect, distinct from the Webhook Dispatcher's
// tenant-facing delivery).
type Event struct {
	Type      enum.WebhookEventType `json:"type"`
	MessageID string                `json:"messageId"`
	APIKeyID  string                `json:"apiKeyId"`
	Timestamp string                `json:"timestamp"`
	Data      models.JSONMap        `json:"data,omitempty"`
}

type PublisherConfig struct {
	MessageTTL          time.Duration
	MaxRetries          int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

// Publisher publishes message lifecycle events to a RabbitMQ direct
// exchange, adapted from services/events/publisher.go's
// RabbitMQPublisher. The teacher's CustomerOS/Notifications fanout
// exchanges have no subscriber in this repository's scope and are
// dropped; the connect/reconnect-with-backoff and publisher-confirm
// machinery is kept unchanged because every outbound event still needs
// it. Per spec.md's "the message bus is an optional, best-effort
// notification channel" framing, a publish failure is logged and
// dropped by the caller rather than failing the status transition it
// reports on — Publish itself still returns the error so tests can
// assert on it.
type Publisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	url             string
	log             logger.Logger
	confirms        chan amqp091.Confirmation
	config          PublisherConfig
}

func NewPublisher(rabbitMQURL string, log logger.Logger, config *PublisherConfig) (*Publisher, error) {
	if config == nil {
		config = &PublisherConfig{
			MessageTTL:          DefaultMessageTTL,
			MaxRetries:          DefaultMaxRetries,
			PublishTimeout:      DefaultPublishTimeout,
			ReconnectBackoff:    DefaultReconnectBackoff,
			MaxReconnectBackoff: DefaultMaxReconnectBackoff,
		}
	}

	p := &Publisher{
		url:    rabbitMQURL,
		log:    log,
		config: *config,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

// Publish sends event onto the direct exchange, keyed by its event type
// string, with publisher confirms and bounded retry (spec.md §4.3/§4.4).
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Publisher.Publish")
	defer span.Finish()
	tracing.TagEntity(span, event.MessageID)
	span.LogKV("event_type", event.Type.String())

	err := p.publishWithRetry(ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (p *Publisher) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		err := p.publishOnce(ctx, event)
		if err == nil {
			return nil
		}
		lastErr = err

		p.log.Warnf("events: publish attempt %d failed: %v", attempt+1, err)
		if attempt < p.config.MaxRetries-1 {
			time.Sleep(time.Millisecond * 100 * time.Duration(attempt+1))
		}
	}
	return errors.Wrap(lastErr, "events: publish failed after all retries")
}

func (p *Publisher) publishOnce(ctx context.Context, event Event) error {
	p.publishMutex.Lock()
	defer p.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := p.ensureConnectionAndChannel(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	err = p.publishChannel.Publish(
		ExchangeMailengineEvents,
		string(event.Type),
		true,
		false,
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	select {
	case confirm := <-p.confirms:
		if !confirm.Ack {
			return errors.New("event was not confirmed by broker")
		}
	case <-time.After(p.config.PublishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *Publisher) connect() error {
	p.connectionMutex.Lock()
	defer p.connectionMutex.Unlock()

	var err error
	p.connection, err = amqp091.Dial(p.url)
	if err != nil {
		return errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	if err := p.setupExchangeAndQueue(); err != nil {
		return errors.Wrap(err, "failed to set up exchange and queue")
	}
	if err := p.setupPublishChannel(); err != nil {
		return errors.Wrap(err, "failed to set up publish channel")
	}

	go p.handleReconnection()

	return nil
}

func (p *Publisher) ensureConnectionAndChannel() error {
	if p.connection == nil || p.connection.IsClosed() {
		if err := p.connect(); err != nil {
			return errors.Wrap(err, "failed to re-establish connection")
		}
	}
	if p.publishChannel == nil || p.publishChannel.IsClosed() {
		if err := p.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "failed to re-establish channel")
		}
	}
	return nil
}

func (p *Publisher) setupPublishChannel() error {
	channel, err := p.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open publish channel")
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		return errors.Wrap(err, "failed to enable publisher confirms")
	}

	p.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	p.publishChannel = channel
	return nil
}

func (p *Publisher) setupExchangeAndQueue() error {
	channel, err := p.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open channel for exchange/queue setup")
	}
	defer channel.Close()

	if err := channel.ExchangeDeclare(ExchangeDeadLetter, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare dead letter exchange")
	}
	if err := channel.ExchangeDeclare(ExchangeMailengineEvents, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare events exchange")
	}

	if _, err := channel.QueueDeclare(DLQEvents, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "failed to declare DLQ %s", DLQEvents)
	}
	if err := channel.QueueBind(DLQEvents, RoutingKeyDeadLetter, ExchangeDeadLetter, false, nil); err != nil {
		return errors.Wrapf(err, "failed to bind DLQ %s", DLQEvents)
	}

	args := map[string]interface{}{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             int64(p.config.MessageTTL.Milliseconds()),
	}
	if _, err := channel.QueueDeclare(QueueEvents, true, false, false, false, args); err != nil {
		return errors.Wrapf(err, "failed to declare queue %s", QueueEvents)
	}

	for _, routingKey := range []enum.WebhookEventType{
		enum.WebhookEventMessageSent,
		enum.WebhookEventMessageBounced,
		enum.WebhookEventMessageFailed,
	} {
		if err := channel.QueueBind(QueueEvents, string(routingKey), ExchangeMailengineEvents, false, nil); err != nil {
			return errors.Wrapf(err, "failed to bind queue %s to routing key %s", QueueEvents, routingKey)
		}
	}

	return nil
}

func (p *Publisher) handleReconnection() {
	backoff := p.config.ReconnectBackoff

	for {
		notifyClose := p.connection.NotifyClose(make(chan *amqp091.Error))
		err := <-notifyClose
		p.log.Warnf("events: RabbitMQ connection closed: %v, attempting to reconnect", err)

		for {
			if err := p.connect(); err == nil {
				p.log.Info("events: successfully reconnected to RabbitMQ")
				break
			} else {
				p.log.Errorf("events: failed to reconnect: %v, retrying in %v", err, backoff)
			}

			time.Sleep(backoff)
			backoff *= 2
			if backoff > p.config.MaxReconnectBackoff {
				backoff = p.config.MaxReconnectBackoff
			}
		}

		backoff = p.config.ReconnectBackoff
	}
}

// Close gracefully shuts down the publisher's connection and channel.
func (p *Publisher) Close() error {
	p.connectionMutex.Lock()
	defer p.connectionMutex.Unlock()

	var err error
	if p.publishChannel != nil {
		if cerr := p.publishChannel.Close(); cerr != nil {
			p.log.Errorf("events: error closing publish channel: %v", cerr)
			err = cerr
		}
	}
	if p.connection != nil {
		if cerr := p.connection.Close(); cerr != nil {
			p.log.Errorf("events: error closing connection: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}
	return err
}
