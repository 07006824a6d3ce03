package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/google/uuid"
)

type NotificationService struct {
	store store.NotificationStore
	now   func() time.Time
}

func NewNotificationService(st store.NotificationStore) *NotificationService {
	return &NotificationService{store: st, now: time.Now}
}

// CreateNotification creates a new in-app notification
func (s *NotificationService) CreateNotification(
	ctx context.Context,
	userID uuid.UUID,
	notifType string,
	severity string,
	title string,
	message string,
	metadata *models.NotificationMetadata,
) (*models.Notification, error) {
	metadataJSON := []byte("{}")
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = b
	}

	notification := &models.Notification{
		UserID:   userID,
		Type:     notifType,
		Severity: severity,
		Title:    title,
		Message:  message,
		Metadata: metadataJSON,
	}

	if err := s.store.CreateNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return notification, nil
}

// NotifyVerificationRequired stores the destructive in-app counterpart of
// the verification toast.
func (s *NotificationService) NotifyVerificationRequired(ctx context.Context, userID uuid.UUID, title, message, fingerprintHash, ip string) error {
	_, err := s.CreateNotification(ctx, userID,
		models.NotificationTypeVerificationRequired,
		models.SeverityDestructive,
		title, message,
		&models.NotificationMetadata{FingerprintHash: fingerprintHash, IPAddress: ip},
	)
	return err
}

func (s *NotificationService) NotifyPhoneVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := s.CreateNotification(ctx, userID,
		models.NotificationTypePhoneVerified,
		models.SeverityDefault,
		"Phone verified",
		"Your phone number is verified. Full outreach limits are restored on your next session.",
		&models.NotificationMetadata{Channel: "whatsapp", DeliveryStatus: "confirmed"},
	)
	return err
}

func (s *NotificationService) NotifyDuplicateSuspected(ctx context.Context, userID uuid.UUID, ip string) error {
	_, err := s.CreateNotification(ctx, userID,
		models.NotificationTypeDuplicateSuspected,
		models.SeverityDestructive,
		"Account under review",
		"This account was created from a device or network used by other accounts. Verify your phone number to avoid reduced limits.",
		&models.NotificationMetadata{IPAddress: ip},
	)
	return err
}

// GetUserNotifications returns notifications for a user
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Notification, int, error) {
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

// GetUnreadCount returns the count of unread notifications
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID int64, userID uuid.UUID) error {
	err := s.store.MarkNotificationRead(ctx, userID, notificationID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// MarkAllAsRead marks all notifications as read for a user
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.store.MarkAllNotificationsRead(ctx, userID, s.now())
}
