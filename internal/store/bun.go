package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pgUniqueViolation = "23505"

type BunStore struct {
	db *bun.DB
}

var _ Store = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// upsertFingerprintQuery merges repeated observations of a device into its
// single row.
func (s *BunStore) upsertFingerprintQuery(fp tracker.DeviceFingerprint) *bun.InsertQuery {
	seen := fp.LastSeenAt
	if seen.IsZero() {
		seen = time.Now()
	}
	row := &models.DeviceFingerprint{
		FingerprintHash: fp.FingerprintHash,
		IPAddress:       fp.IPAddress,
		UserAgent:       fp.UserAgent,
		SeenCount:       1,
		FirstSeenAt:     seen,
		LastSeenAt:      seen,
	}

	return s.db.NewInsert().
		Model(row).
		ExcludeColumn("id").
		On("CONFLICT (fingerprint_hash) DO UPDATE").
		Set("ip_address = EXCLUDED.ip_address").
		Set("user_agent = EXCLUDED.user_agent").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Set("seen_count = ?TableAlias.seen_count + 1")
}

func (s *BunStore) UpsertDeviceFingerprint(ctx context.Context, fp tracker.DeviceFingerprint) error {
	if _, err := s.upsertFingerprintQuery(fp).Exec(ctx); err != nil {
		return fmt.Errorf("upsert device fingerprint: %w", err)
	}
	return nil
}

func (s *BunStore) InsertUserSession(ctx context.Context, us tracker.UserSession) error {
	uid, err := parseUserID(us.UserID)
	if err != nil {
		return err
	}
	row := &models.UserSession{
		UserID:          uid,
		IPAddress:       us.IPAddress,
		FingerprintHash: us.FingerprintHash,
		UserAgent:       us.UserAgent,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert user session: %w", err)
	}
	return nil
}

func (s *BunStore) CountAccountsForFingerprint(ctx context.Context, hash string) (int, error) {
	var n int
	err := s.db.NewSelect().
		Model((*models.UserSession)(nil)).
		ColumnExpr("COUNT(DISTINCT us.user_id)").
		Where("us.fingerprint_hash = ?", hash).
		Scan(ctx, &n)
	return n, err
}

func (s *BunStore) countAccountsForIPQuery(ip, excludeEmail string, since time.Time) *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*models.UserSession)(nil)).
		ColumnExpr("COUNT(DISTINCT us.user_id)").
		Join("JOIN users AS u ON u.id = us.user_id").
		Where("us.ip_address = ?", ip).
		Where("us.created_at >= ?", since).
		Where("LOWER(u.email) <> LOWER(?)", excludeEmail)
}

func (s *BunStore) CountAccountsForIP(ctx context.Context, ip, excludeEmail string, since time.Time) (int, error) {
	var n int
	err := s.countAccountsForIPQuery(ip, excludeEmail, since).Scan(ctx, &n)
	return n, err
}

func (s *BunStore) FingerprintOwnedByOtherUser(ctx context.Context, email, hash string) (bool, error) {
	return s.db.NewSelect().
		Model((*models.UserSession)(nil)).
		Join("JOIN users AS u ON u.id = us.user_id").
		Where("us.fingerprint_hash = ?", hash).
		Where("LOWER(u.email) <> LOWER(?)", email).
		Exists(ctx)
}

func (s *BunStore) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.UserSession, error) {
	var sessions []models.UserSession
	q := s.db.NewSelect().
		Model(&sessions).
		Where("us.user_id = ?", userID).
		Order("us.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *BunStore) ListFingerprintsForUser(ctx context.Context, userID uuid.UUID) ([]models.DeviceFingerprint, error) {
	hashes := s.db.NewSelect().
		Model((*models.UserSession)(nil)).
		Column("fingerprint_hash").
		Where("user_id = ?", userID)

	var devices []models.DeviceFingerprint
	err := s.db.NewSelect().
		Model(&devices).
		Where("df.fingerprint_hash IN (?)", hashes).
		Order("df.last_seen_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// Users

func (s *BunStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	_, err := s.db.NewInsert().Model(user).Exec(ctx)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *BunStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := new(models.User)
	err := s.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BunStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := s.db.NewSelect().
		Model(user).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BunStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *BunStore) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error {
	q := s.db.NewUpdate().Model((*models.User)(nil)).Where("id = ?", id)

	if update.FullName != nil {
		q = q.Set("full_name = ?", *update.FullName)
	}
	if update.Company != nil {
		q = q.Set("company = ?", *update.Company)
	}
	if update.NotifyEmail != nil {
		q = q.Set("notify_email = ?", *update.NotifyEmail)
	}

	_, err := q.Set("updated_at = ?", time.Now()).Exec(ctx)
	return err
}

func (s *BunStore) MarkPhoneVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("phone_verified = true").
		Set("phone_verified_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Notifications

func (s *BunStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if len(n.Metadata) == 0 {
		n.Metadata = []byte("{}")
	}
	_, err := s.db.NewInsert().Model(n).Exec(ctx)
	return err
}

func (s *BunStore) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error) {
	var notifications []models.Notification

	query := s.db.NewSelect().
		Model(&notifications).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	total, err := query.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	if err := query.Limit(limit).Offset(offset).Scan(ctx); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *BunStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.db.NewSelect().
		Model((*models.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("is_read = false").
		Count(ctx)
}

func (s *BunStore) MarkNotificationRead(ctx context.Context, userID uuid.UUID, id int64, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = true").
		Set("read_at = ?", at).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *BunStore) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("is_read = true").
		Set("read_at = ?", at).
		Where("user_id = ?", userID).
		Where("is_read = false").
		Exec(ctx)
	return err
}

// Phone verifications

func (s *BunStore) CreatePhoneVerification(ctx context.Context, v *models.PhoneVerification) error {
	_, err := s.db.NewInsert().Model(v).Exec(ctx)
	return err
}

func (s *BunStore) LatestPendingVerification(ctx context.Context, userID uuid.UUID) (*models.PhoneVerification, error) {
	v := new(models.PhoneVerification)
	err := s.db.NewSelect().
		Model(v).
		Where("user_id = ?", userID).
		Where("status = ?", models.PhoneVerificationPending).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *BunStore) UpdatePhoneVerification(ctx context.Context, v *models.PhoneVerification) error {
	res, err := s.db.NewUpdate().
		Model(v).
		Column("status", "confirmed_at").
		WherePK().
		Where("status = ?", models.PhoneVerificationPending).
		Exec(ctx)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *BunStore) spendAttemptQuery(id uuid.UUID) *bun.UpdateQuery {
	return s.db.NewUpdate().
		Model((*models.PhoneVerification)(nil)).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Where("status = ?", models.PhoneVerificationPending).
		Returning("attempts")
}

func (s *BunStore) SpendVerificationAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	if err := s.spendAttemptQuery(id).Scan(ctx, &attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *BunStore) phoneClaimQuery(userID uuid.UUID, phoneHash string) *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*models.PhoneVerification)(nil)).
		Where("pv.phone_hash = ?", phoneHash).
		Where("pv.status = ?", models.PhoneVerificationConfirmed).
		Where("pv.user_id <> ?", userID)
}

func (s *BunStore) PhoneVerifiedByOtherUser(ctx context.Context, userID uuid.UUID, phoneHash string) (bool, error) {
	if phoneHash == "" {
		return false, nil
	}
	return s.phoneClaimQuery(userID, phoneHash).Exists(ctx)
}

func (s *BunStore) ExpirePendingVerifications(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*models.PhoneVerification)(nil)).
		Set("status = ?", models.PhoneVerificationExpired).
		Where("user_id = ?", userID).
		Where("status = ?", models.PhoneVerificationPending).
		Exec(ctx)
	return err
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation
}
