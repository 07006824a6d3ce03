package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	"github.com/google/uuid"
)

type RiskConfig struct {
	// DeviceAccountThreshold is the number of accounts on one device at
	// which the device counts as shared.
	DeviceAccountThreshold int
	// IPAccountThreshold is the number of other accounts seen on an IP
	// inside Window that makes a signup a duplicate. 0 disables the rule.
	IPAccountThreshold int
	Window             time.Duration
}

// RiskService computes usage limits and duplicate verdicts from the
// recorded device signals.
type RiskService struct {
	signals store.SignalStore
	users   store.UserStore
	cfg     RiskConfig
	now     func() time.Time
}

var _ tracker.RiskBackend = (*RiskService)(nil)

func NewRiskService(signals store.SignalStore, users store.UserStore, cfg RiskConfig) *RiskService {
	return &RiskService{
		signals: signals,
		users:   users,
		cfg:     cfg,
		now:     time.Now,
	}
}

// GetAdjustedUsageLimits returns one row for a known user and none for an
// unknown one.
func (s *RiskService) GetAdjustedUsageLimits(ctx context.Context, userID string) ([]tracker.UsageLimits, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	shared, err := s.hasSharedDevice(ctx, uid)
	if err != nil {
		return nil, err
	}

	plan := user.EffectivePlan(s.now())
	limits := models.GetPlanLimits(plan)
	if shared {
		limits = limits.Reduce()
	}

	return []tracker.UsageLimits{{
		RequiresVerification:    shared && !user.PhoneVerified,
		Plan:                    plan,
		DailyConnectionRequests: limits.DailyConnectionRequests,
		DailyMessages:           limits.DailyMessages,
		MonthlyProspectSearches: limits.MonthlyProspectSearches,
		ActiveCampaigns:         limits.ActiveCampaigns,
		LinkedAccounts:          limits.LinkedAccounts,
		Reduced:                 shared,
	}}, nil
}

func (s *RiskService) hasSharedDevice(ctx context.Context, uid uuid.UUID) (bool, error) {
	devices, err := s.signals.ListFingerprintsForUser(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		n, err := s.signals.CountAccountsForFingerprint(ctx, d.FingerprintHash)
		if err != nil {
			return false, fmt.Errorf("count device accounts: %w", err)
		}
		if n >= s.cfg.DeviceAccountThreshold {
			return true, nil
		}
	}
	return false, nil
}

func (s *RiskService) DetectDuplicateAccount(ctx context.Context, email, ip, fingerprintHash string) (bool, error) {
	if fingerprintHash != "" {
		owned, err := s.signals.FingerprintOwnedByOtherUser(ctx, email, fingerprintHash)
		if err != nil {
			return false, fmt.Errorf("check device owner: %w", err)
		}
		if owned {
			return true, nil
		}
	}

	if ip == "" || s.cfg.IPAccountThreshold <= 0 {
		return false, nil
	}

	since := s.now().Add(-s.cfg.Window)
	n, err := s.signals.CountAccountsForIP(ctx, ip, email, since)
	if err != nil {
		return false, fmt.Errorf("count ip accounts: %w", err)
	}
	return n >= s.cfg.IPAccountThreshold, nil
}
