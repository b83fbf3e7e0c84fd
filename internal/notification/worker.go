package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"devicehub-backend/internal/model"
)

// Job is one device connectivity transition to announce.
type Job struct {
	DeviceID int64
	Online   bool
}

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

// WorkerPool manages a pool of workers for sending connectivity alerts.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForDevice(ctx, job)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job without blocking the gateway: if every worker is busy
// and the buffer is full, the alert is dropped rather than stalling a
// connection loop.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("notification queue full, dropping alert for device %d", job.DeviceID)
	}
}

// DeviceOnline implements the gateway's Notifier interface.
func (wp *WorkerPool) DeviceOnline(deviceID int64) {
	wp.Dispatch(Job{DeviceID: deviceID, Online: true})
}

// DeviceOffline implements the gateway's Notifier interface.
func (wp *WorkerPool) DeviceOffline(deviceID int64) {
	wp.Dispatch(Job{DeviceID: deviceID, Online: false})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForDevice fetches watching subscriptions and sends alerts.
func (wp *WorkerPool) sendNotificationsForDevice(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.device_id = ?", job.DeviceID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("error fetching subscriptions for device %d: %v", job.DeviceID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var device model.Device
	deviceLabel := fmt.Sprintf("%d", job.DeviceID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&device, job.DeviceID).Error; err != nil {
		log.Printf("error fetching device %d: %v", job.DeviceID, err)
	} else if device.Name != "" {
		deviceLabel = device.Name
	}

	state := "offline"
	if job.Online {
		state = "online"
	}
	message := fmt.Sprintf("Device %s is now %s", deviceLabel, state)
	log.Printf("sending %d notifications for device %d (%s)", len(subscriptions), job.DeviceID, state)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
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
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription for endpoint %s is expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
