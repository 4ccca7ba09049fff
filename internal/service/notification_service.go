package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/pkg/jobs"
)

// Notifier delivers a notification to an external sender.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type notificationPublisher interface {
	Publish(ctx context.Context, n models.Notification) (string, error)
}

// RedisNotifier appends notifications to a Redis stream consumed by the
// mail/SMS sender.
type RedisNotifier struct {
	publisher notificationPublisher
	logger    *zap.Logger
}

// NewRedisNotifier constructs a stream-backed notifier.
func NewRedisNotifier(publisher notificationPublisher, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{publisher: publisher, logger: logger}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, notification models.Notification) error {
	id, err := n.publisher.Publish(ctx, notification)
	if err != nil {
		return fmt.Errorf("publish %s: %w", notification.Kind, err)
	}
	n.logger.Debug("notification published", zap.String("kind", string(notification.Kind)), zap.String("stream_id", id))
	return nil
}

// LogNotifier writes notifications to the log. It is used when no stream is
// configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification models.Notification) error {
	n.logger.Info("notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("recipient", notification.Recipient),
		zap.Any("payload", notification.Payload),
	)
	return nil
}

const notificationJobType = "notification"

// NotificationDispatcher hands notifications to a Notifier off the request
// path. Delivery failures are retried by the queue and never reach the
// caller that committed the state change.
type NotificationDispatcher struct {
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NotificationDispatcherConfig configures the worker pool.
type NotificationDispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NewNotificationDispatcher wires a queue around the notifier.
func NewNotificationDispatcher(notifier Notifier, cfg NotificationDispatcherConfig, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &NotificationDispatcher{metrics: metrics, logger: logger}
	handler := func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(models.Notification)
		if !ok {
			return fmt.Errorf("unexpected payload %T", job.Payload)
		}
		return notifier.Notify(ctx, n)
	}
	d.queue = jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			n, _ := job.Payload.(models.Notification)
			metrics.RecordNotificationFailure(string(n.Kind))
			logger.Error("notification dropped", zap.String("job_id", job.ID), zap.String("kind", string(n.Kind)), zap.Error(err))
		},
	})
	return d
}

// Start launches the workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains pending notifications and stops the workers.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch queues a notification. Failure to queue is logged and counted.
func (d *NotificationDispatcher) Dispatch(n models.Notification) {
	if d == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := d.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: n})
	if err == nil {
		return
	}
	d.metrics.RecordNotificationFailure(string(n.Kind))
	if errors.Is(err, jobs.ErrQueueFull) {
		d.logger.Warn("notification queue full", zap.String("kind", string(n.Kind)))
		return
	}
	d.logger.Warn("notification not queued", zap.String("kind", string(n.Kind)), zap.Error(err))
}
