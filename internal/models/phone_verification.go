package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	PhoneVerificationPending   = "pending"
	PhoneVerificationConfirmed = "confirmed"
	PhoneVerificationExpired   = "expired"
)

// PhoneVerification is one challenge sent to a phone number. The phone is
// AES-GCM encrypted, PhoneHash is its keyed hash for cross-account lookups
// and the code is stored as a bcrypt hash only.
type PhoneVerification struct {
	bun.BaseModel `bun:"table:phone_verifications,alias:pv"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID         uuid.UUID  `bun:"user_id,type:uuid,notnull" json:"user_id"`
	PhoneEncrypted string     `bun:"phone_encrypted,notnull" json:"-"`
	PhoneHash      string     `bun:"phone_hash,notnull,default:''" json:"-"`
	CodeHash       string     `bun:"code_hash,notnull" json:"-"`
	Status         string     `bun:"status,notnull,default:'pending'" json:"status"`
	Attempts       int        `bun:"attempts,notnull,default:0" json:"attempts"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	ConfirmedAt    *time.Time `bun:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*PhoneVerification)(nil)

func (p *PhoneVerification) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}
