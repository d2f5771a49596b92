// Package notify issues Postgres NOTIFY payloads on behalf of the
// repository layer. It's split out of internal/store to avoid a dependency
// cycle: internal/store imports internal/repository, so the repositories
// that need to emit a notification depend on this leaf package instead.
package notify

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
)

// Channel names shared between the repositories that emit NOTIFY and the
// Listener that subscribes to them (spec.md §4.1 "Publish-notify").
const (
	ChannelMessageQueued  = "message_queued"
	ChannelWebhookPending = "webhook_pending"
)

// Emit issues SELECT pg_notify(channel, payload) on the given connection.
// Payloads are advisory (spec.md §4.1 "Publish-notify") — a failure here
// is logged by the caller and never fails the write it accompanies.
func Emit(ctx context.Context, db *gorm.DB, channel string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", channel, string(body)).Error
}
