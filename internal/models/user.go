package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email           string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	FullName        *string    `bun:"full_name" json:"full_name,omitempty"`
	Company         *string    `bun:"company" json:"company,omitempty"`
	IsActive        bool       `bun:"is_active,default:true" json:"is_active"`
	EmailVerified   bool       `bun:"email_verified,default:false" json:"email_verified"`
	PhoneVerified   bool       `bun:"phone_verified,default:false" json:"phone_verified"`
	PhoneVerifiedAt *time.Time `bun:"phone_verified_at" json:"phone_verified_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,default:now()" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,default:now()" json:"updated_at"`
	LastLoginAt     *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete" json:"-"`

	// Subscription
	Plan                  string     `bun:"plan,default:'free'" json:"plan"`
	SubscriptionExpiresAt *time.Time `bun:"subscription_expires_at" json:"-"`

	// Notification Preferences
	NotifyEmail bool `bun:"notify_email,default:true" json:"notify_email"`
}

// UserResponse is the safe representation for API responses
type UserResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FullName      *string `json:"full_name,omitempty"`
	Company       *string `json:"company,omitempty"`
	IsActive      bool    `json:"is_active"`
	EmailVerified bool    `json:"email_verified"`
	PhoneVerified bool    `json:"phone_verified"`
	Plan          string  `json:"plan"`
	NotifyEmail   bool    `json:"notify_email"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		FullName:      u.FullName,
		Company:       u.Company,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		Plan:          u.Plan,
		NotifyEmail:   u.NotifyEmail,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     u.UpdatedAt.Format(time.RFC3339),
	}
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*User)(nil)

func (u *User) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	if u.Plan == "" {
		u.Plan = PlanFree
	}
	return nil
}

// BeforeUpdate hook
var _ bun.BeforeUpdateHook = (*User)(nil)

func (u *User) BeforeUpdate(ctx context.Context, query *bun.UpdateQuery) error {
	u.UpdatedAt = time.Now()
	return nil
}

// EffectivePlan returns the plan in force, falling back to free once a
// paid subscription has lapsed.
func (u *User) EffectivePlan(now time.Time) string {
	if u.Plan != PlanFree && u.SubscriptionExpiresAt != nil && now.After(*u.SubscriptionExpiresAt) {
		return PlanFree
	}
	if u.Plan == "" {
		return PlanFree
	}
	return u.Plan
}
