package store

import (
	"context"

	"github.com/customeros/mailsherpa/mailvalidate"

	internalerrors "github.com/postlane/mailengine/internal/errors"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/ratelimit"
	"github.com/postlane/mailengine/internal/repository"
)

// Store is the facade the Email Worker and Webhook Dispatcher claim loops
// are built on, collapsing the per-entity repositories behind the
// operations those loops actually call.
type Store struct {
	repos   *repository.Repositories
	limiter *ratelimit.Limiter
}

func NewStore(repos *repository.Repositories) *Store {
	return &Store{
		repos:   repos,
		limiter: ratelimit.NewLimiter(2),
	}
}

// CreateMessage validates the From/To address syntax, enforces the owning
// tenant's per-second rate-limit bucket (spec.md §3's Tenant entity, §5's
// "shared resources"), then delegates to the repository's idempotent
// insert.
func (s *Store) CreateMessage(ctx context.Context, message *models.Message) (*models.Message, bool, error) {
	if !mailvalidate.ValidateEmailSyntax(message.FromAddress).IsValid {
		return nil, false, internalerrors.ErrInvalidAddress
	}
	if !mailvalidate.ValidateEmailSyntax(message.ToAddress).IsValid {
		return nil, false, internalerrors.ErrInvalidAddress
	}

	apiKey, err := s.repos.APIKeyRepository.GetByID(ctx, message.APIKeyID)
	if err != nil {
		return nil, false, err
	}
	if apiKey == nil {
		return nil, false, internalerrors.ErrAPIKeyNotFound
	}
	if !s.limiter.Allow(apiKey.ID, apiKey.RateLimitPerSecond) {
		return nil, false, internalerrors.ErrRateLimited
	}

	return s.repos.MessageRepository.CreateMessage(ctx, message)
}

func (s *Store) ClaimNextMessage(ctx context.Context) (*models.Message, error) {
	return s.repos.MessageRepository.ClaimNextMessage(ctx)
}

// MarkMessageSent, MarkMessageRejected, MarkMessageRetry and
// MarkMessageFailed are the Email Worker's only write paths back to a
// claimed message (spec.md §4.3's processing algorithm). They, like
// MarkMessageBounced, pass straight through to the repository; the facade
// exists so the worker never imports internal/repository directly.
func (s *Store) MarkMessageSent(ctx context.Context, id, smtpMessageID string) error {
	return s.repos.MessageRepository.MarkSent(ctx, id, smtpMessageID)
}

func (s *Store) MarkMessageRejected(ctx context.Context, id, reason string) error {
	return s.repos.MessageRepository.MarkRejected(ctx, id, reason)
}

func (s *Store) MarkMessageRetry(ctx context.Context, id, reason string, attempts int) error {
	return s.repos.MessageRepository.MarkRetry(ctx, id, reason, attempts)
}

func (s *Store) MarkMessageFailed(ctx context.Context, id, reason string, attempts int) error {
	return s.repos.MessageRepository.MarkFailed(ctx, id, reason, attempts)
}

func (s *Store) MarkMessageBounced(ctx context.Context, id, reason string) error {
	return s.repos.MessageRepository.MarkBounced(ctx, id, reason)
}

func (s *Store) ClaimNextWebhookDelivery(ctx context.Context, claimGuardSeconds int) (*models.WebhookDelivery, error) {
	return s.repos.WebhookDeliveryRepository.ClaimNextDelivery(ctx, claimGuardSeconds)
}

// SweepStaleProcessing resets messages stuck in "processing" past the
// visibility timeout back to "queued" (spec.md §9's required correction).
func (s *Store) SweepStaleProcessing(ctx context.Context, visibilityTimeoutSeconds int) (int64, error) {
	return s.repos.MessageRepository.RequeueStaleProcessing(ctx, visibilityTimeoutSeconds)
}

func (s *Store) Domains() repository.DomainRepository {
	return s.repos.DomainRepository
}

func (s *Store) Suppressions() repository.SuppressionRepository {
	return s.repos.SuppressionRepository
}

func (s *Store) Webhooks() repository.WebhookRepository {
	return s.repos.WebhookRepository
}

func (s *Store) WebhookDeliveries() repository.WebhookDeliveryRepository {
	return s.repos.WebhookDeliveryRepository
}

func (s *Store) APIKeys() repository.APIKeyRepository {
	return s.repos.APIKeyRepository
}
