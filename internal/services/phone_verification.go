package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeTTL            = 10 * time.Minute
	maxCodeAttempts    = 5
	defaultCountryCode = "62"
)

// CodeSender delivers a one-time code to a normalized phone number.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type PhoneVerificationService struct {
	verifications store.VerificationStore
	users         store.UserStore
	crypto        *CryptoService
	sender        CodeSender
	notifications *NotificationService

	now     func() time.Time
	newCode func() (string, error)
}

func NewPhoneVerificationService(
	verifications store.VerificationStore,
	users store.UserStore,
	crypto *CryptoService,
	sender CodeSender,
	notifications *NotificationService,
) *PhoneVerificationService {
	return &PhoneVerificationService{
		verifications: verifications,
		users:         users,
		crypto:        crypto,
		sender:        sender,
		notifications: notifications,
		now:           time.Now,
		newCode:       randomCode,
	}
}

type StartResult struct {
	MaskedPhone string    `json:"phone"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Start replaces any pending challenge with a new code sent to phone.
func (s *PhoneVerificationService) Start(ctx context.Context, userID, phone string) (*StartResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PhoneVerified {
		return nil, ErrAlreadyVerified
	}

	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	phoneHash := s.crypto.Hash(normalized)
	taken, err := s.verifications.PhoneVerifiedByOtherUser(ctx, user.ID, phoneHash)
	if err != nil {
		return nil, fmt.Errorf("check phone: %w", err)
	}
	if taken {
		return nil, ErrPhoneInUse
	}

	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	sealed, err := s.crypto.Encrypt(normalized)
	if err != nil {
		return nil, fmt.Errorf("encrypt phone: %w", err)
	}

	if err := s.verifications.ExpirePendingVerifications(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("expire pending: %w", err)
	}

	v := &models.PhoneVerification{
		UserID:         user.ID,
		PhoneEncrypted: sealed,
		PhoneHash:      phoneHash,
		CodeHash:       string(codeHash),
		Status:         models.PhoneVerificationPending,
		ExpiresAt:      s.now().Add(codeTTL),
	}
	if err := s.verifications.CreatePhoneVerification(ctx, v); err != nil {
		return nil, fmt.Errorf("create verification: %w", err)
	}

	if err := s.sender.SendCode(ctx, normalized, code); err != nil {
		if uerr := s.expire(ctx, v, nil); uerr != nil {
			slog.Warn("failed to close unsent verification", "user_id", user.ID, "error", uerr)
		}
		return nil, fmt.Errorf("send code: %w", err)
	}

	slog.Info("phone verification started", "user_id", user.ID, "phone", MaskPhone(normalized))
	return &StartResult{MaskedPhone: MaskPhone(normalized), ExpiresAt: v.ExpiresAt}, nil
}

// Confirm checks code against the pending challenge. Every check spends
// one attempt, counted atomically in the store.
func (s *PhoneVerificationService) Confirm(ctx context.Context, userID, code string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	v, err := s.verifications.LatestPendingVerification(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load verification: %w", err)
	}

	now := s.now()
	if now.After(v.ExpiresAt) {
		return s.expire(ctx, v, ErrVerificationExpired)
	}
	if v.Attempts >= maxCodeAttempts {
		return s.expire(ctx, v, ErrTooManyAttempts)
	}

	taken, err := s.verifications.PhoneVerifiedByOtherUser(ctx, user.ID, v.PhoneHash)
	if err != nil {
		return fmt.Errorf("check phone: %w", err)
	}
	if taken {
		return s.expire(ctx, v, ErrPhoneInUse)
	}

	attempts, err := s.verifications.SpendVerificationAttempt(ctx, v.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("spend attempt: %w", err)
	}
	if attempts > maxCodeAttempts {
		return s.expire(ctx, v, ErrTooManyAttempts)
	}

	if bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		if attempts >= maxCodeAttempts {
			return s.expire(ctx, v, ErrTooManyAttempts)
		}
		return ErrInvalidCode
	}

	v.Status = models.PhoneVerificationConfirmed
	v.ConfirmedAt = &now
	switch err := s.verifications.UpdatePhoneVerification(ctx, v); {
	case errors.Is(err, store.ErrDuplicate):
		v.ConfirmedAt = nil
		return s.expire(ctx, v, ErrPhoneInUse)
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("update verification: %w", err)
	}
	if err := s.users.MarkPhoneVerified(ctx, user.ID, now); err != nil {
		return fmt.Errorf("mark phone verified: %w", err)
	}

	if s.notifications != nil {
		if err := s.notifications.NotifyPhoneVerified(ctx, user.ID); err != nil {
			slog.Warn("failed to store phone verified notification", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// expire closes v and returns reason, or the store error if saving fails.
// A challenge another request already closed is not an error.
func (s *PhoneVerificationService) expire(ctx context.Context, v *models.PhoneVerification, reason error) error {
	v.Status = models.PhoneVerificationExpired
	err := s.verifications.UpdatePhoneVerification(ctx, v)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("update verification: %w", err)
	}
	return reason
}

func (s *PhoneVerificationService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	user, err := s.users.GetUserByID(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// NormalizePhone returns the number as digits with a country code. A
// national number with a leading 0 gets the default country code.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}

	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = defaultCountryCode + digits[1:]
	}

	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
