package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boscod/outreachguard/internal/rabbitmq"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	events []rabbitmq.VerificationRequiredEvent
	err    error
}

func (p *stubPublisher) PublishVerificationRequired(_ context.Context, evt rabbitmq.VerificationRequiredEvent) error {
	p.events = append(p.events, evt)
	return p.err
}

// gatedRisk requires verification for every user.
type gatedRisk struct{}

func (gatedRisk) GetAdjustedUsageLimits(context.Context, string) ([]tracker.UsageLimits, error) {
	return []tracker.UsageLimits{{RequiresVerification: true}}, nil
}

func (gatedRisk) DetectDuplicateAccount(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func newScope(userID string) *trackingScope {
	return &trackingScope{
		identity:        tracker.Identity{ID: userID, Email: "dana@example.com"},
		fingerprintHash: "hash-1",
		ip:              "198.51.100.4",
	}
}

func TestToastNotifier_DestructiveIsStoredAndPublished(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &stubPublisher{}
	n := NewToastNotifier(services.NewNotificationService(st), pub)

	uid := uuid.New()
	scope := newScope(uid.String())
	n.Notify(withTrackingScope(context.Background(), scope), tracker.VerificationNotification)

	assert.Equal(t, []tracker.Notification{tracker.VerificationNotification}, scope.collected())

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, uid.String(), evt.UserID)
	assert.Equal(t, "dana@example.com", evt.Email)
	assert.Equal(t, "hash-1", evt.FingerprintHash)
	assert.Equal(t, "198.51.100.4", evt.IPAddress)
	assert.False(t, evt.OccurredAt.IsZero())

	list, total, err := st.ListNotifications(context.Background(), uid, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "destructive", list[0].Severity)
}

func TestToastNotifier_RepeatedGateOnlyToasts(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &stubPublisher{}
	n := NewToastNotifier(services.NewNotificationService(st), pub)

	uid := uuid.New()
	registry := tracker.NewRegistry(tracker.NewCollector(
		tracker.NewFingerprintGenerator(),
		tracker.ContextIPResolver{},
		st,
		gatedRisk{},
		n,
	), time.Hour)
	session := registry.Session("ui-1")
	identity := &tracker.Identity{ID: uid.String(), Email: "dana@example.com"}

	var scopes []*trackingScope
	for i := 0; i < 3; i++ {
		scope := newScope(uid.String())
		ctx := tracker.WithClientIP(withTrackingScope(context.Background(), scope), "198.51.100.4")
		session.TrackUserSession(ctx, identity, tracker.DeviceContext{UserAgent: "ua"})
		scopes = append(scopes, scope)
	}

	for _, scope := range scopes {
		assert.Equal(t, []tracker.Notification{tracker.VerificationNotification}, scope.collected())
	}
	assert.Len(t, pub.events, 1)
	count, err := st.CountUnread(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestToastNotifier_DefaultToastStaysInResponse(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &stubPublisher{}
	n := NewToastNotifier(services.NewNotificationService(st), pub)

	uid := uuid.New()
	scope := newScope(uid.String())
	note := tracker.Notification{Title: "Welcome back", Severity: tracker.SeverityDefault}
	n.Notify(withTrackingScope(context.Background(), scope), note)

	assert.Equal(t, []tracker.Notification{note}, scope.collected())
	assert.Empty(t, pub.events)
	count, err := st.CountUnread(context.Background(), uid)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestToastNotifier_PublishFailureIsSwallowed(t *testing.T) {
	pub := &stubPublisher{err: errors.New("channel closed")}
	n := NewToastNotifier(nil, pub)

	scope := newScope(uuid.NewString())
	assert.NotPanics(t, func() {
		n.Notify(withTrackingScope(context.Background(), scope), tracker.VerificationNotification)
	})
	assert.Len(t, scope.collected(), 1)
	assert.Len(t, pub.events, 1)
}

func TestToastNotifier_WithoutBrokerOrScope(t *testing.T) {
	n := NewToastNotifier(nil, nil)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), tracker.VerificationNotification)
	})

	scope := newScope("not-a-uuid")
	n.Notify(withTrackingScope(context.Background(), scope), tracker.VerificationNotification)
	assert.Len(t, scope.collected(), 1)
}
