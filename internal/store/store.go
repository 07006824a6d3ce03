// Package store persists users, device signals, notifications and phone
// verifications. BunStore targets PostgreSQL; MemoryStore backs
// STORE_DRIVER=memory and the tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
)

// ErrNotFound is returned for missing single rows. It is sql.ErrNoRows so
// callers can treat both stores the same way.
var ErrNotFound = sql.ErrNoRows

var ErrDuplicate = errors.New("record already exists")

// SignalStore holds the device and session signals.
type SignalStore interface {
	tracker.SignalStore

	// CountAccountsForFingerprint returns the distinct accounts that started
	// a session on the device.
	CountAccountsForFingerprint(ctx context.Context, hash string) (int, error)
	// CountAccountsForIP returns the distinct accounts other than
	// excludeEmail that started a session from ip since the given time.
	CountAccountsForIP(ctx context.Context, ip, excludeEmail string, since time.Time) (int, error)
	// FingerprintOwnedByOtherUser reports whether an account other than
	// email started a session on the device.
	FingerprintOwnedByOtherUser(ctx context.Context, email, hash string) (bool, error)
	ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserSession, error)
	ListFingerprintsForUser(ctx context.Context, userID uuid.UUID) ([]models.DeviceFingerprint, error)
}

type ProfileUpdate struct {
	FullName    *string
	Company     *string
	NotifyEmail *bool
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error
	MarkPhoneVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, userID uuid.UUID, id int64, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type VerificationStore interface {
	CreatePhoneVerification(ctx context.Context, v *models.PhoneVerification) error
	// LatestPendingVerification returns the newest pending challenge.
	LatestPendingVerification(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error)
	// UpdatePhoneVerification closes a pending challenge with v's status and
	// confirmation time. It returns ErrNotFound when the challenge is no
	// longer pending, and ErrDuplicate when confirming a phone that is
	// already confirmed for another user.
	UpdatePhoneVerification(ctx context.Context, v *models.PhoneVerification) error
	// ExpirePendingVerifications closes every pending challenge of the user.
	ExpirePendingVerifications(ctx context.Context, userID uuid.UUID) error
	// SpendVerificationAttempt adds one attempt to a pending challenge and
	// returns the new count, or ErrNotFound when it is not pending.
	SpendVerificationAttempt(ctx context.Context, id uuid.UUID) (int, error)
	// PhoneVerifiedByOtherUser reports whether phoneHash is confirmed for
	// any user other than userID.
	PhoneVerifiedByOtherUser(ctx context.Context, userID uuid.UUID, phoneHash string) (bool, error)
}

type Store interface {
	SignalStore
	UserStore
	NotificationStore
	VerificationStore
}

func parseUserID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	return uid, nil
}
