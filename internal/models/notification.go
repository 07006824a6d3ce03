package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NotificationType constants
const (
	NotificationTypeVerificationRequired = "verification_required"
	NotificationTypePhoneVerified        = "phone_verified"
	NotificationTypeDuplicateSuspected   = "duplicate_suspected"
)

// Severity constants
const (
	SeverityDefault     = "default"
	SeverityDestructive = "destructive"
)

// NotificationMetadata for storing extra information
type NotificationMetadata struct {
	FingerprintHash string `json:"fingerprint_hash,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	Channel         string `json:"channel,omitempty"`         // email, whatsapp
	DeliveryStatus  string `json:"delivery_status,omitempty"` // sent, failed
}

type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID     int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`

	Type     string `bun:"type,notnull" json:"type"`
	Severity string `bun:"severity,notnull,default:'default'" json:"severity"`
	Title    string `bun:"title,notnull" json:"title"`
	Message  string `bun:"message,notnull" json:"message"`

	IsRead bool       `bun:"is_read,default:false" json:"is_read"`
	ReadAt *time.Time `bun:"read_at" json:"read_at,omitempty"`

	Metadata  json.RawMessage `bun:"metadata,type:jsonb,default:'{}'" json:"metadata"`
	CreatedAt time.Time       `bun:"created_at,nullzero,default:now()" json:"created_at"`
}

// NotificationResponse for API output
type NotificationResponse struct {
	ID        int64                `json:"id"`
	UserID    string               `json:"user_id"`
	Type      string               `json:"type"`
	Severity  string               `json:"severity"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	IsRead    bool                 `json:"is_read"`
	ReadAt    *string              `json:"read_at,omitempty"`
	Metadata  NotificationMetadata `json:"metadata"`
	CreatedAt string               `json:"created_at"`
}

func (n *Notification) ToResponse() *NotificationResponse {
	resp := &NotificationResponse{
		ID:        n.ID,
		UserID:    n.UserID.String(),
		Type:      n.Type,
		Severity:  n.Severity,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}

	if n.ReadAt != nil {
		r := n.ReadAt.Format(time.RFC3339)
		resp.ReadAt = &r
	}

	// Parse metadata
	if len(n.Metadata) > 0 {
		json.Unmarshal(n.Metadata, &resp.Metadata)
	}

	return resp
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*Notification)(nil)

func (n *Notification) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	n.CreatedAt = time.Now()
	if n.Severity == "" {
		n.Severity = SeverityDefault
	}
	return nil
}
