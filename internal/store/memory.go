package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
)

type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	users         map[uuid.UUID]*models.User
	fingerprints  map[string]*models.DeviceFingerprint
	sessions      []models.UserSession
	notifications []*models.Notification
	verifications []*models.PhoneVerification

	nextFingerprintID  int64
	nextNotificationID int64
}

var _ Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for created and seen timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:          time.Now,
		users:        make(map[uuid.UUID]*models.User),
		fingerprints: make(map[string]*models.DeviceFingerprint),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) UpsertDeviceFingerprint(_ context.Context, fp tracker.DeviceFingerprint) error {
	seen := fp.LastSeenAt
	if seen.IsZero() {
		seen = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.fingerprints[fp.FingerprintHash]; ok {
		row.IPAddress = fp.IPAddress
		row.UserAgent = fp.UserAgent
		row.LastSeenAt = seen
		row.SeenCount++
		return nil
	}

	s.nextFingerprintID++
	s.fingerprints[fp.FingerprintHash] = &models.DeviceFingerprint{
		ID:              s.nextFingerprintID,
		FingerprintHash: fp.FingerprintHash,
		IPAddress:       fp.IPAddress,
		UserAgent:       fp.UserAgent,
		SeenCount:       1,
		FirstSeenAt:     seen,
		LastSeenAt:      seen,
	}
	return nil
}

func (s *MemoryStore) InsertUserSession(_ context.Context, us tracker.UserSession) error {
	uid, err := parseUserID(us.UserID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, models.UserSession{
		ID:              uuid.New(),
		UserID:          uid,
		IPAddress:       us.IPAddress,
		FingerprintHash: us.FingerprintHash,
		UserAgent:       us.UserAgent,
		CreatedAt:       s.now(),
	})
	return nil
}

func (s *MemoryStore) CountAccountsForFingerprint(_ context.Context, hash string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make(map[uuid.UUID]struct{})
	for _, us := range s.sessions {
		if us.FingerprintHash == hash {
			accounts[us.UserID] = struct{}{}
		}
	}
	return len(accounts), nil
}

func (s *MemoryStore) CountAccountsForIP(_ context.Context, ip, excludeEmail string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make(map[uuid.UUID]struct{})
	for _, us := range s.sessions {
		if us.IPAddress != ip || us.CreatedAt.Before(since) {
			continue
		}
		if !s.otherAccount(us.UserID, excludeEmail) {
			continue
		}
		accounts[us.UserID] = struct{}{}
	}
	return len(accounts), nil
}

func (s *MemoryStore) FingerprintOwnedByOtherUser(_ context.Context, email, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, us := range s.sessions {
		if us.FingerprintHash == hash && s.otherAccount(us.UserID, email) {
			return true, nil
		}
	}
	return false, nil
}

// otherAccount reports whether the session owner is a known user with an
// email other than email. It matches the users join of the SQL store, so
// sessions of unknown users are ignored. Callers hold s.mu.
func (s *MemoryStore) otherAccount(userID uuid.UUID, email string) bool {
	u, ok := s.users[userID]
	return ok && !strings.EqualFold(u.Email, strings.TrimSpace(email))
}

func (s *MemoryStore) ListSessions(_ context.Context, userID uuid.UUID, limit int) ([]models.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UserSession
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].UserID != userID {
			continue
		}
		out = append(out, s.sessions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListFingerprintsForUser(_ context.Context, userID uuid.UUID) ([]models.DeviceFingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []models.DeviceFingerprint
	for _, us := range s.sessions {
		if us.UserID != userID {
			continue
		}
		if _, dup := seen[us.FingerprintHash]; dup {
			continue
		}
		seen[us.FingerprintHash] = struct{}{}
		if row, ok := s.fingerprints[us.FingerprintHash]; ok {
			out = append(out, *row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

// Fingerprint returns the stored row for hash.
func (s *MemoryStore) Fingerprint(hash string) (models.DeviceFingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.fingerprints[hash]
	if !ok {
		return models.DeviceFingerprint{}, false
	}
	return *row, true
}

func (s *MemoryStore) FingerprintCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fingerprints)
}

func (s *MemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Users

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}
	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.updateUser(id, func(u *models.User) { u.LastLoginAt = &at })
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, update ProfileUpdate) error {
	return s.updateUser(id, func(u *models.User) {
		if update.FullName != nil {
			v := *update.FullName
			u.FullName = &v
		}
		if update.Company != nil {
			v := *update.Company
			u.Company = &v
		}
		if update.NotifyEmail != nil {
			u.NotifyEmail = *update.NotifyEmail
		}
		u.UpdatedAt = s.now()
	})
}

func (s *MemoryStore) MarkPhoneVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.updateUser(id, func(u *models.User) {
		u.PhoneVerified = true
		u.PhoneVerifiedAt = &at
	})
}

func (s *MemoryStore) updateUser(id uuid.UUID, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	return nil
}

// Notifications

func (s *MemoryStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNotificationID++
	n.ID = s.nextNotificationID
	n.CreatedAt = s.now()
	if n.Severity == "" {
		n.Severity = models.SeverityDefault
	}
	if len(n.Metadata) == 0 {
		n.Metadata = []byte("{}")
	}

	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			all = append(all, *s.notifications[i])
		}
	}

	total := len(all)
	if offset >= total {
		return []models.Notification{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, note := range s.notifications {
		if note.UserID == userID && !note.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID uuid.UUID, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, note := range s.notifications {
		if note.ID == id && note.UserID == userID {
			note.IsRead = true
			note.ReadAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, note := range s.notifications {
		if note.UserID == userID && !note.IsRead {
			note.IsRead = true
			note.ReadAt = &at
		}
	}
	return nil
}

// Phone verifications

func (s *MemoryStore) CreatePhoneVerification(_ context.Context, v *models.PhoneVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Status == "" {
		v.Status = models.PhoneVerificationPending
	}
	v.CreatedAt = s.now()

	cp := *v
	s.verifications = append(s.verifications, &cp)
	return nil
}

func (s *MemoryStore) LatestPendingVerification(_ context.Context, userID uuid.UUID) (*models.PhoneVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.verifications) - 1; i >= 0; i-- {
		v := s.verifications[i]
		if v.UserID == userID && v.Status == models.PhoneVerificationPending {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePhoneVerification(_ context.Context, v *models.PhoneVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.verifications {
		if row.ID != v.ID {
			continue
		}
		if row.Status != models.PhoneVerificationPending {
			return ErrNotFound
		}
		if v.Status == models.PhoneVerificationConfirmed && s.phoneClaimed(row.UserID, row.PhoneHash) {
			return ErrDuplicate
		}
		row.Status = v.Status
		row.ConfirmedAt = v.ConfirmedAt
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) SpendVerificationAttempt(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.verifications {
		if row.ID == id && row.Status == models.PhoneVerificationPending {
			row.Attempts++
			return row.Attempts, nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryStore) PhoneVerifiedByOtherUser(_ context.Context, userID uuid.UUID, phoneHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phoneClaimed(userID, phoneHash), nil
}

// phoneClaimed matches the confirmed-phone unique index of the SQL store.
// Callers hold s.mu.
func (s *MemoryStore) phoneClaimed(userID uuid.UUID, phoneHash string) bool {
	if phoneHash == "" {
		return false
	}
	for _, row := range s.verifications {
		if row.Status == models.PhoneVerificationConfirmed && row.PhoneHash == phoneHash && row.UserID != userID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ExpirePendingVerifications(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.verifications {
		if row.UserID == userID && row.Status == models.PhoneVerificationPending {
			row.Status = models.PhoneVerificationExpired
		}
	}
	return nil
}
