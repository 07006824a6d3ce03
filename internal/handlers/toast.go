package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boscod/outreachguard/internal/rabbitmq"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
)

type EventPublisher interface {
	PublishVerificationRequired(ctx context.Context, evt rabbitmq.VerificationRequiredEvent) error
}

// trackingScope carries one tracking request's identity and collects the
// toasts raised while it runs.
type trackingScope struct {
	identity        tracker.Identity
	fingerprintHash string
	ip              string

	mu     sync.Mutex
	toasts []tracker.Notification
}

func (s *trackingScope) add(n tracker.Notification) {
	s.mu.Lock()
	s.toasts = append(s.toasts, n)
	s.mu.Unlock()
}

func (s *trackingScope) collected() []tracker.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tracker.Notification, len(s.toasts))
	copy(out, s.toasts)
	return out
}

type scopeKey struct{}

func withTrackingScope(ctx context.Context, s *trackingScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *trackingScope {
	s, _ := ctx.Value(scopeKey{}).(*trackingScope)
	return s
}

// ToastNotifier is the collector's Notifier. The toast goes back in the
// HTTP response; a destructive toast that newly gates its UI session is
// also stored in-app and published to the broker when one is connected.
type ToastNotifier struct {
	notifications *services.NotificationService
	publisher     EventPublisher
	now           func() time.Time
}

var _ tracker.Notifier = (*ToastNotifier)(nil)

// NewToastNotifier accepts a nil publisher when the broker is disabled.
func NewToastNotifier(notifications *services.NotificationService, publisher EventPublisher) *ToastNotifier {
	return &ToastNotifier{notifications: notifications, publisher: publisher, now: time.Now}
}

func (n *ToastNotifier) Notify(ctx context.Context, note tracker.Notification) {
	scope := scopeFrom(ctx)
	if scope == nil {
		slog.Warn("toast raised outside a tracking request", "title", note.Title)
		return
	}
	scope.add(note)

	if note.Severity != tracker.SeverityDestructive || tracker.GateRepeated(ctx) {
		return
	}
	log := slog.With("user_id", scope.identity.ID)

	if uid, err := uuid.Parse(scope.identity.ID); err == nil && n.notifications != nil {
		if err := n.notifications.NotifyVerificationRequired(ctx, uid, note.Title, note.Description, scope.fingerprintHash, scope.ip); err != nil {
			log.Warn("failed to store verification notification", "error", err)
		}
	}

	if n.publisher == nil {
		return
	}
	evt := rabbitmq.VerificationRequiredEvent{
		UserID:          scope.identity.ID,
		Email:           scope.identity.Email,
		FingerprintHash: scope.fingerprintHash,
		IPAddress:       scope.ip,
		OccurredAt:      n.now().UTC(),
	}
	if err := n.publisher.PublishVerificationRequired(ctx, evt); err != nil {
		log.Warn("failed to publish verification event", "error", err)
	}
}
