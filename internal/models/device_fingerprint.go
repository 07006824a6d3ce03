package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DeviceFingerprint is one row per observed device, keyed by its hash.
type DeviceFingerprint struct {
	bun.BaseModel `bun:"table:device_fingerprints,alias:df"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	FingerprintHash string    `bun:"fingerprint_hash,notnull,unique" json:"fingerprint_hash"`
	IPAddress       string    `bun:"ip_address" json:"ip_address"`
	UserAgent       string    `bun:"user_agent" json:"user_agent"`
	SeenCount       int       `bun:"seen_count,notnull,default:1" json:"seen_count"`
	FirstSeenAt     time.Time `bun:"first_seen_at,nullzero,notnull,default:current_timestamp" json:"first_seen_at"`
	LastSeenAt      time.Time `bun:"last_seen_at,nullzero,notnull,default:current_timestamp" json:"last_seen_at"`
}
