package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/rabbitmq"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerTag = "verification-worker-1"

type Consumer interface {
	Consume(tag string) (<-chan amqp.Delivery, error)
	Cancel(tag string) error
}

type Mailer interface {
	SendVerificationRequired(to string) error
}

// VerificationWorker emails users whose sessions were gated behind phone
// verification.
type VerificationWorker struct {
	consumer Consumer
	users    store.UserStore
	mailer   Mailer
	retry    time.Duration
	log      *slog.Logger
}

func NewVerificationWorker(consumer Consumer, users store.UserStore, mailer Mailer) *VerificationWorker {
	return &VerificationWorker{
		consumer: consumer,
		users:    users,
		mailer:   mailer,
		retry:    rabbitmq.ReconnectDelay,
		log:      slog.Default().With("component", "verification_worker"),
	}
}

// Run consumes until ctx is cancelled. The consumer is registered again
// whenever the delivery channel closes underneath it.
func (w *VerificationWorker) Run(ctx context.Context) error {
	for {
		msgs, err := w.consumer.Consume(consumerTag)
		if err != nil {
			w.log.Warn("failed to register consumer", "error", err)
		} else {
			w.log.Info("worker started", "queue", rabbitmq.VerificationQueueName)
			if done := w.drain(ctx, msgs); done {
				if err := w.consumer.Cancel(consumerTag); err != nil {
					w.log.Warn("failed to cancel consumer", "error", err)
				}
				w.log.Info("worker exiting")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.retry):
		}
	}
}

// drain returns true when ctx ended, false when msgs closed.
func (w *VerificationWorker) drain(ctx context.Context, msgs <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-msgs:
			if !ok {
				return false
			}
			w.handle(ctx, d)
		}
	}
}

func (w *VerificationWorker) handle(ctx context.Context, d amqp.Delivery) {
	evt, err := rabbitmq.DecodeVerificationRequired(d.Body)
	if err != nil {
		w.log.Warn("rejecting malformed event", "error", err)
		_ = d.Reject(false)
		return
	}
	log := w.log.With("user_id", evt.UserID)

	uid, err := uuid.Parse(evt.UserID)
	if err != nil {
		log.Warn("rejecting event with invalid user id")
		_ = d.Reject(false)
		return
	}

	user, err := w.users.GetUserByID(ctx, uid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("user gone, dropping event")
		_ = d.Ack(false)
		return
	case err != nil:
		w.retryOrDrop(log, d, err)
		return
	}

	if skip, reason := skipEmail(user); skip {
		log.Info("skipping verification email", "reason", reason)
		_ = d.Ack(false)
		return
	}

	if err := w.mailer.SendVerificationRequired(user.Email); err != nil {
		w.retryOrDrop(log, d, err)
		return
	}

	log.Info("verification email sent")
	_ = d.Ack(false)
}

func skipEmail(user *models.User) (bool, string) {
	switch {
	case user.PhoneVerified:
		return true, "already_verified"
	case !user.NotifyEmail:
		return true, "email_disabled"
	default:
		return false, ""
	}
}

// retryOrDrop requeues a delivery once; a redelivered message is dropped.
func (w *VerificationWorker) retryOrDrop(log *slog.Logger, d amqp.Delivery, err error) {
	if d.Redelivered {
		log.Warn("dropping event after retry", "error", err)
		_ = d.Reject(false)
		return
	}
	log.Warn("requeueing event", "error", err)
	_ = d.Nack(false, true)
}
