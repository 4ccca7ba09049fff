package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

const streamMaxLen = 10000

// NotificationStreamRepository appends notifications to a Redis stream read
// by the external mail/SMS sender.
type NotificationStreamRepository struct {
	client *redis.Client
	stream string
}

// NewNotificationStreamRepository constructs the repository.
func NewNotificationStreamRepository(client *redis.Client, stream string) *NotificationStreamRepository {
	return &NotificationStreamRepository{client: client, stream: stream}
}

// Publish appends n to the stream and returns the entry id.
func (r *NotificationStreamRepository) Publish(ctx context.Context, n models.Notification) (string, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal notification payload: %w", err)
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":       string(n.Kind),
			"recipient":  n.Recipient,
			"payload":    string(payload),
			"created_at": n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return id, nil
}
