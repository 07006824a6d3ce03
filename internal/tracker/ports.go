package tracker

import (
	"context"
	"time"
)

// Identity is the authenticated end-user a session belongs to.
type Identity struct {
	ID    string
	Email string
}

// Severity of a user-facing notification
type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

// Notification is a user-facing message such as a toast.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// DeviceFingerprint is the upsert payload for a device observation.
// FingerprintHash is the natural key.
type DeviceFingerprint struct {
	FingerprintHash string
	IPAddress       string
	UserAgent       string
	LastSeenAt      time.Time
}

// UserSession is one append-only record per tracked session start.
type UserSession struct {
	UserID          string
	IPAddress       string
	FingerprintHash string
	UserAgent       string
}

// UsageLimits is one row of the adjusted usage limits for a user.
type UsageLimits struct {
	RequiresVerification    bool   `json:"requires_verification"`
	Plan                    string `json:"plan"`
	DailyConnectionRequests int    `json:"daily_connection_requests"`
	DailyMessages           int    `json:"daily_messages"`
	MonthlyProspectSearches int    `json:"monthly_prospect_searches"`
	ActiveCampaigns         int    `json:"active_campaigns"`
	LinkedAccounts          int    `json:"linked_accounts"`
	Reduced                 bool   `json:"reduced"`
}

// FingerprintGenerator derives a stable hash from device signals.
// Identical input must always produce the identical hash.
type FingerprintGenerator interface {
	Generate(device DeviceContext) string
}

// IPResolver resolves the client's current IP address.
type IPResolver interface {
	ResolveIP(ctx context.Context) (string, error)
}

// SignalStore persists the signals collected on session start.
type SignalStore interface {
	UpsertDeviceFingerprint(ctx context.Context, fp DeviceFingerprint) error
	InsertUserSession(ctx context.Context, session UserSession) error
}

// RiskBackend evaluates limits and duplicate-account risk.
type RiskBackend interface {
	GetAdjustedUsageLimits(ctx context.Context, userID string) ([]UsageLimits, error)
	DetectDuplicateAccount(ctx context.Context, email, ip, fingerprintHash string) (bool, error)
}

// Notifier delivers a notification. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Recorder receives structured failure and audit events.
type Recorder interface {
	Record(event string, fields map[string]any)
}

type gateRepeatedKey struct{}

func withGateRepeated(ctx context.Context) context.Context {
	return context.WithValue(ctx, gateRepeatedKey{}, true)
}

// GateRepeated reports whether the verification notification carried by
// ctx was raised while its session already required verification. The
// toast is delivered either way; notifiers with durable side effects use
// this to perform them once per false to true transition.
func GateRepeated(ctx context.Context) bool {
	v, _ := ctx.Value(gateRepeatedKey{}).(bool)
	return v
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

type nopRecorder struct{}

func (nopRecorder) Record(string, map[string]any) {}

// NopRecorder discards every event.
var NopRecorder Recorder = nopRecorder{}
