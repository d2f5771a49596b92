package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postlane/mailengine/internal/enum"
	internalerrors "github.com/postlane/mailengine/internal/errors"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/store/notify"
	"github.com/postlane/mailengine/internal/tracing"
	"github.com/postlane/mailengine/internal/utils"
)

type MessageRepository interface {
	// CreateMessage inserts a message, treating a repeated idempotency key
	// for the same api key as a no-op that returns the existing row
	// (spec.md I1).
	CreateMessage(ctx context.Context, message *models.Message) (*models.Message, bool, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	GetByIdempotencyKey(ctx context.Context, apiKeyID, idempotencyKey string) (*models.Message, error)

	// ClaimNextMessage locks and returns the oldest queued message using
	// SELECT ... FOR UPDATE SKIP LOCKED so concurrent worker instances
	// never claim the same row (spec.md §5 claim protocol).
	ClaimNextMessage(ctx context.Context) (*models.Message, error)

	MarkProcessing(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id, smtpMessageID string) error
	MarkFailed(ctx context.Context, id, reason string, attempts int) error
	MarkBounced(ctx context.Context, id, reason string) error
	MarkDelivered(ctx context.Context, id string) error
	MarkRejected(ctx context.Context, id, reason string) error

	// MarkRetry requeues a message after a retryable send failure, per
	// spec.md §4.3 step 5.
	MarkRetry(ctx context.Context, id, reason string, attempts int) error

	// RequeueStaleProcessing resets messages stuck in "processing" past the
	// visibility timeout back to "queued" (spec.md §9 correction).
	RequeueStaleProcessing(ctx context.Context, olderThanSeconds int) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) CreateMessage(ctx context.Context, message *models.Message) (*models.Message, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageRepository.CreateMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message.IdempotencyKey != nil && *message.IdempotencyKey != "" {
		existing, err := r.GetByIdempotencyKey(ctx, message.APIKeyID, *message.IdempotencyKey)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, false, err
		}
		if existing != nil {
			span.SetTag("duplicate", true)
			return existing, false, nil
		}
	}

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		// A unique-constraint race on (api_key_id, idempotency_key) loses
		// to the concurrent insert; fetch the winner instead of erroring.
		if message.IdempotencyKey != nil && *message.IdempotencyKey != "" {
			existing, getErr := r.GetByIdempotencyKey(ctx, message.APIKeyID, *message.IdempotencyKey)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, false, err
	}

	// Publish-notify: advisory wake-up, never fails the insert it follows
	// (spec.md §4.1). The listener's periodic poll fallback covers a lost
	// notification.
	if err := notify.Emit(ctx, r.db, notify.ChannelMessageQueued, map[string]interface{}{
		"id":     message.ID,
		"type":   message.Type.String(),
		"tenant": message.APIKeyID,
	}); err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "pg_notify failed"))
	}

	return message, true, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetByIdempotencyKey(ctx context.Context, apiKeyID, idempotencyKey string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageRepository.GetByIdempotencyKey")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND idempotency_key = ?", apiKeyID, idempotencyKey).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ClaimNextMessage(ctx context.Context) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageRepository.ClaimNextMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var claimed *models.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.Message
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", enum.MessageStatusQueued).
			Order("created_at ASC").
			Limit(1).
			First(&message).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internalerrors.ErrNoMessageReady
			}
			return err
		}

		now := utils.Now()
		message.Status = enum.MessageStatusProcessing
		message.Attempts++
		message.LastAttemptAt = &now

		if err := tx.Model(&message).
			Select("status", "attempts", "last_attempt_at").
			Updates(message).Error; err != nil {
			return err
		}

		claimed = &message
		return nil
	})
	if err != nil {
		if errors.Is(err, internalerrors.ErrNoMessageReady) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return claimed, nil
}

func (r *messageRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, "MessageRepository.MarkProcessing", id, map[string]interface{}{
		"status": enum.MessageStatusProcessing,
	})
}

func (r *messageRepository) MarkSent(ctx context.Context, id, smtpMessageID string) error {
	return r.updateStatus(ctx, "MessageRepository.MarkSent", id, map[string]interface{}{
		"status":          enum.MessageStatusSent,
		"smtp_message_id": smtpMessageID,
		"sent_at":         utils.Now(),
	})
}

func (r *messageRepository) MarkDelivered(ctx context.Context, id string) error {
	return r.updateStatus(ctx, "MessageRepository.MarkDelivered", id, map[string]interface{}{
		"status":       enum.MessageStatusDelivered,
		"delivered_at": utils.Now(),
	})
}

func (r *messageRepository) MarkFailed(ctx context.Context, id, reason string, attempts int) error {
	return r.updateStatus(ctx, "MessageRepository.MarkFailed", id, map[string]interface{}{
		"status":         enum.MessageStatusFailed,
		"failure_reason": reason,
		"attempts":       attempts,
		"failed_at":      utils.Now(),
	})
}

func (r *messageRepository) MarkBounced(ctx context.Context, id, reason string) error {
	return r.updateStatus(ctx, "MessageRepository.MarkBounced", id, map[string]interface{}{
		"status":         enum.MessageStatusBounced,
		"failure_reason": reason,
		"failed_at":      utils.Now(),
	})
}

func (r *messageRepository) MarkRejected(ctx context.Context, id, reason string) error {
	return r.updateStatus(ctx, "MessageRepository.MarkRejected", id, map[string]interface{}{
		"status":         enum.MessageStatusRejected,
		"failure_reason": reason,
		"failed_at":      utils.Now(),
	})
}

func (r *messageRepository) MarkRetry(ctx context.Context, id, reason string, attempts int) error {
	return r.updateStatus(ctx, "MessageRepository.MarkRetry", id, map[string]interface{}{
		"status":         enum.MessageStatusQueued,
		"failure_reason": reason,
		"attempts":       attempts,
	})
}

func (r *messageRepository) updateStatus(ctx context.Context, spanName, id string, values map[string]interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, spanName)
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *messageRepository) RequeueStaleProcessing(ctx context.Context, olderThanSeconds int) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MessageRepository.RequeueStaleProcessing")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	cutoff := utils.Now().Add(-durationSeconds(olderThanSeconds))

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("status = ? AND last_attempt_at < ?", enum.MessageStatusProcessing, cutoff).
		Update("status", enum.MessageStatusQueued)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
