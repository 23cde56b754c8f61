// Package notify delivers web push notifications to recipients when a
// document is dropped off for them.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"locker-kiosk-backend/internal/model"
	"locker-kiosk-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers that deliver drop-off
// notifications. Jobs carry the claim-check ID of the new submission.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the push sender. Used by tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case submissionID := <-wp.jobs:
			wp.notifyForSubmission(ctx, submissionID)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a notification job for a submission. Notifications are
// best-effort: when the queue is full the job is dropped rather than
// blocking the caller.
func (wp *WorkerPool) Dispatch(submissionID string) {
	select {
	case wp.jobs <- submissionID:
	default:
		log.Warn().Str("submission", submissionID).Msg("notification queue full, dropping job")
	}
}

func (wp *WorkerPool) notifyForSubmission(ctx context.Context, submissionID string) {
	cc, err := wp.store.GetSubmission(ctx, submissionID)
	if err != nil {
		log.Error().Err(err).Str("submission", submissionID).Msg("failed to load submission for notification")
		return
	}

	subs, err := wp.store.SubscriptionsForRecipient(ctx, cc.RecipientEmail)
	if err != nil {
		log.Error().Err(err).Str("recipient", cc.RecipientEmail).Msg("failed to fetch subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	message := fmt.Sprintf("A document is waiting for you in locker %s.", cc.LockerNumber)
	for _, sub := range subs {
		wp.send(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send push notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
