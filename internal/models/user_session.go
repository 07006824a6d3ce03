package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserSession is an append-only record of one tracked session start.
type UserSession struct {
	bun.BaseModel `bun:"table:user_sessions,alias:us"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID          uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	IPAddress       string    `bun:"ip_address" json:"ip_address"`
	FingerprintHash string    `bun:"fingerprint_hash,notnull" json:"fingerprint_hash"`
	UserAgent       string    `bun:"user_agent" json:"user_agent"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type UserSessionResponse struct {
	ID              string `json:"id"`
	IPAddress       string `json:"ip_address"`
	FingerprintHash string `json:"fingerprint_hash"`
	UserAgent       string `json:"user_agent"`
	CreatedAt       string `json:"created_at"`
}

func (s *UserSession) ToResponse() *UserSessionResponse {
	return &UserSessionResponse{
		ID:              s.ID.String(),
		IPAddress:       s.IPAddress,
		FingerprintHash: s.FingerprintHash,
		UserAgent:       s.UserAgent,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*UserSession)(nil)

func (s *UserSession) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}
