// Package tracker collects device and session signals for the anti-abuse
// flow and decides whether a session must be gated behind verification.
package tracker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Recorded event names
const (
	EventTrackingCompleted       = "tracking.completed"
	EventTrackingFailed          = "tracking.failed"
	EventFingerprintUpsertFailed = "tracking.fingerprint_upsert_failed"
	EventSessionInsertFailed     = "tracking.session_insert_failed"
	EventUsageLimitsFailed       = "tracking.usage_limits_failed"
	EventVerificationRequired    = "tracking.verification_required"
	EventDuplicateChecked        = "duplicate_check.completed"
	EventDuplicateCheckFailed    = "duplicate_check.failed"
)

// VerificationNotification is emitted when the backend gates a session.
var VerificationNotification = Notification{
	Title:       "Verification Required",
	Description: "Unusual activity was detected on this account. Verify your phone number to keep using LinkedIn outreach features.",
	Severity:    SeverityDestructive,
}

// Collector wires the signal sources and backends together. It holds no
// per-session state; see Session.
type Collector struct {
	fingerprints FingerprintGenerator
	ips          IPResolver
	store        SignalStore
	risk         RiskBackend
	notifier     Notifier
	recorder     Recorder
	policy       DuplicatePolicy
	retry        RetryPolicy
	now          func() time.Time
}

type Option func(*Collector)

func WithRecorder(r Recorder) Option {
	return func(c *Collector) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(c *Collector) { c.policy = p }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Collector) { c.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCollector(fingerprints FingerprintGenerator, ips IPResolver, store SignalStore, risk RiskBackend, notifier Notifier, opts ...Option) *Collector {
	c := &Collector{
		fingerprints: fingerprints,
		ips:          ips,
		store:        store,
		risk:         risk,
		notifier:     notifier,
		recorder:     NopRecorder,
		policy:       FailOpen,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the configured duplicate-check failure policy.
func (c *Collector) Policy() DuplicatePolicy {
	return c.policy
}

// Session is the observable tracking state of one UI session.
// Concurrent TrackUserSession calls are not serialized; the last writer
// wins on both flags.
type Session struct {
	collector            *Collector
	tracking             atomic.Bool
	requiresVerification atomic.Bool
}

func (c *Collector) NewSession() *Session {
	return &Session{collector: c}
}

// IsTracking reports whether TrackUserSession is executing.
func (s *Session) IsTracking() bool {
	return s.tracking.Load()
}

// RequiresVerification is the latest known server-side determination.
func (s *Session) RequiresVerification() bool {
	return s.requiresVerification.Load()
}

// TrackUserSession records the current device and session and refreshes
// the verification gate. It never fails from the caller's side: every
// error is recorded and swallowed. A nil identity is a no-op.
func (s *Session) TrackUserSession(ctx context.Context, identity *Identity, device DeviceContext) {
	if identity == nil || identity.ID == "" {
		return
	}

	c := s.collector
	s.tracking.Store(true)
	defer s.tracking.Store(false)
	defer func() {
		if r := recover(); r != nil {
			c.recorder.Record(EventTrackingFailed, map[string]any{
				"user_id": identity.ID,
				"error":   fmt.Sprint(r),
				"panic":   true,
			})
		}
	}()

	if err := s.track(ctx, identity, device); err != nil {
		c.recorder.Record(EventTrackingFailed, map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
		return
	}
	c.recorder.Record(EventTrackingCompleted, map[string]any{
		"user_id":               identity.ID,
		"requires_verification": s.RequiresVerification(),
	})
}

func (s *Session) track(ctx context.Context, identity *Identity, device DeviceContext) error {
	c := s.collector

	hash := c.fingerprints.Generate(device)
	ip, err := c.ips.ResolveIP(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve client ip: %w", err)
	}

	fp := DeviceFingerprint{
		FingerprintHash: hash,
		IPAddress:       ip,
		UserAgent:       device.UserAgent,
		LastSeenAt:      c.now(),
	}
	if err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.store.UpsertDeviceFingerprint(ctx, fp)
	}); err != nil {
		c.recorder.Record(EventFingerprintUpsertFailed, map[string]any{
			"user_id":          identity.ID,
			"fingerprint_hash": hash,
			"error":            err.Error(),
		})
	}

	session := UserSession{
		UserID:          identity.ID,
		IPAddress:       ip,
		FingerprintHash: hash,
		UserAgent:       device.UserAgent,
	}
	if err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.store.InsertUserSession(ctx, session)
	}); err != nil {
		c.recorder.Record(EventSessionInsertFailed, map[string]any{
			"user_id":          identity.ID,
			"fingerprint_hash": hash,
			"error":            err.Error(),
		})
	}

	limits, err := retryValue(ctx, c.retry, func(ctx context.Context) ([]UsageLimits, error) {
		return c.risk.GetAdjustedUsageLimits(ctx, identity.ID)
	})
	if err != nil {
		c.recorder.Record(EventUsageLimitsFailed, map[string]any{
			"user_id": identity.ID,
			"error":   err.Error(),
		})
		return nil
	}
	if len(limits) == 0 {
		return nil
	}

	requires := limits[0].RequiresVerification
	already := s.requiresVerification.Swap(requires)
	if requires {
		if already {
			ctx = withGateRepeated(ctx)
		}
		c.notifier.Notify(ctx, VerificationNotification)
		c.recorder.Record(EventVerificationRequired, map[string]any{
			"user_id":          identity.ID,
			"fingerprint_hash": hash,
		})
	}
	return nil
}

// CheckForDuplicateAccount reports whether email, together with the
// current device and IP, matches an existing account. When the check
// cannot complete, the verdict comes from the duplicate policy (false
// under FailOpen). It writes no records.
func (c *Collector) CheckForDuplicateAccount(ctx context.Context, email string, device DeviceContext) (duplicate bool) {
	defer func() {
		if r := recover(); r != nil {
			duplicate = c.policy.VerdictOnError()
			c.recorder.Record(EventDuplicateCheckFailed, map[string]any{
				"error":   fmt.Sprint(r),
				"panic":   true,
				"policy":  c.policy.String(),
				"verdict": duplicate,
			})
		}
	}()

	hash := c.fingerprints.Generate(device)
	verdict, err := c.checkDuplicate(ctx, email, hash)
	if err != nil {
		duplicate = c.policy.VerdictOnError()
		c.recorder.Record(EventDuplicateCheckFailed, map[string]any{
			"fingerprint_hash": hash,
			"error":            err.Error(),
			"policy":           c.policy.String(),
			"verdict":          duplicate,
		})
		return duplicate
	}

	c.recorder.Record(EventDuplicateChecked, map[string]any{
		"fingerprint_hash": hash,
		"verdict":          verdict,
	})
	return verdict
}

func (c *Collector) checkDuplicate(ctx context.Context, email, hash string) (bool, error) {
	ip, err := c.ips.ResolveIP(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve client ip: %w", err)
	}
	return retryValue(ctx, c.retry, func(ctx context.Context) (bool, error) {
		return c.risk.DetectDuplicateAccount(ctx, email, ip, hash)
	})
}
