package database

import (
	"context"
	"fmt"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/uptrace/bun"
)

var tables = []any{
	(*models.User)(nil),
	(*models.DeviceFingerprint)(nil),
	(*models.UserSession)(nil),
	(*models.Notification)(nil),
	(*models.PhoneVerification)(nil),
}

// columns added after a table first shipped.
var columns = []struct {
	model any
	expr  string
}{
	{(*models.PhoneVerification)(nil), "phone_hash VARCHAR NOT NULL DEFAULT ''"},
}

var indexes = []struct {
	model   any
	name    string
	columns []string
	unique  bool
	where   string
}{
	{(*models.UserSession)(nil), "idx_user_sessions_user_id", []string{"user_id", "created_at"}, false, ""},
	{(*models.UserSession)(nil), "idx_user_sessions_fingerprint", []string{"fingerprint_hash"}, false, ""},
	{(*models.UserSession)(nil), "idx_user_sessions_ip", []string{"ip_address", "created_at"}, false, ""},
	{(*models.Notification)(nil), "idx_notifications_user_id", []string{"user_id", "is_read"}, false, ""},
	{(*models.PhoneVerification)(nil), "idx_phone_verifications_user_id", []string{"user_id", "status"}, false, ""},
	// one account per confirmed phone number
	{(*models.PhoneVerification)(nil), "idx_phone_verifications_confirmed_phone", []string{"phone_hash"}, true, "status = 'confirmed' AND phone_hash <> ''"},
}

// Migrate creates the tables, late columns and lookup indexes that do not
// exist yet.
func Migrate(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range tables {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		for _, col := range columns {
			if _, err := tx.NewAddColumn().Model(col.model).ColumnExpr(col.expr).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("add column: %w", err)
			}
		}
		for _, idx := range indexes {
			q := tx.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists()
			if idx.unique {
				q = q.Unique()
			}
			if idx.where != "" {
				q = q.Where(idx.where)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}
		return nil
	})
}
