package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/model"
	"venue-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool tells subscribed customers that a device has become free.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

func WithLogger(l *zap.Logger) Option {
	return func(wp *WorkerPool) { wp.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(wp *WorkerPool) { wp.metrics = m }
}

// WithSender replaces the web push sender.
func WithSender(s NotificationSender) Option {
	return func(wp *WorkerPool) { wp.sender = s }
}

// NewWorkerPool creates a new worker pool with a job queue of queueSize.
func NewWorkerPool(size, queueSize int, st store.Store, webpushOptions *webpush.Options, opts ...Option) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	wp := &WorkerPool{
		size:    size,
		jobs:    make(chan string, queueSize),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
	for _, opt := range opts {
		opt(wp)
	}
	wp.log = logging.OrNop(wp.log)
	return wp
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("notification worker started")
	for {
		select {
		case deviceID := <-wp.jobs:
			wp.sendNotificationsForDevice(ctx, deviceID)
		case <-ctx.Done():
			log.Debug("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a device for notification. It never blocks: when the queue
// is full the job is dropped.
func (wp *WorkerPool) Dispatch(deviceID string) {
	select {
	case wp.jobs <- deviceID:
	default:
		wp.metrics.NotificationSent("dropped")
		wp.log.Warn("notification queue full, dropping job", zap.String("device_id", deviceID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForDevice(ctx context.Context, deviceID string) {
	subscriptions, err := wp.store.SubscriptionsForDevice(ctx, deviceID)
	if err != nil {
		wp.log.Error("fetching subscriptions failed", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := deviceID
	if d, err := wp.store.GetDevice(ctx, deviceID); err != nil {
		wp.log.Warn("fetching device failed", zap.String("device_id", deviceID), zap.Error(err))
	} else if d.Name != "" {
		label = d.Name
	}

	wp.log.Info("sending notifications", zap.String("device_id", deviceID), zap.Int("count", len(subscriptions)))
	message := fmt.Sprintf("Device %s is now available!", label)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.metrics.NotificationSent("error")
		wp.log.Warn("sending notification failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are removed.
	if resp.StatusCode == http.StatusGone {
		wp.metrics.NotificationSent("expired")
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("deleting expired subscription failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return
	}
	wp.metrics.NotificationSent("sent")
}
