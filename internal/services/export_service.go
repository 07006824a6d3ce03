package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/boscod/outreachguard/internal/store"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	sessionsSheet = "Sessions"
	devicesSheet  = "Devices"

	exportSessionLimit = 1000
)

// ExportService builds the per-user device and session report.
type ExportService struct {
	signals store.SignalStore
}

func NewExportService(signals store.SignalStore) *ExportService {
	return &ExportService{signals: signals}
}

func (s *ExportService) SessionsWorkbook(ctx context.Context, userID uuid.UUID) (*bytes.Buffer, error) {
	sessions, err := s.signals.ListSessions(ctx, userID, exportSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	devices, err := s.signals.ListFingerprintsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sessionsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(devicesSheet); err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F2937"}},
	})
	if err != nil {
		return nil, err
	}

	sessionRows := [][]interface{}{{"Started At", "IP Address", "Fingerprint", "User Agent"}}
	for _, us := range sessions {
		sessionRows = append(sessionRows, []interface{}{
			us.CreatedAt.UTC().Format(time.RFC3339), us.IPAddress, us.FingerprintHash, us.UserAgent,
		})
	}

	deviceRows := [][]interface{}{{"Fingerprint", "Last IP", "User Agent", "First Seen", "Last Seen", "Times Seen"}}
	for _, d := range devices {
		deviceRows = append(deviceRows, []interface{}{
			d.FingerprintHash, d.IPAddress, d.UserAgent,
			d.FirstSeenAt.UTC().Format(time.RFC3339), d.LastSeenAt.UTC().Format(time.RFC3339), d.SeenCount,
		})
	}

	if err := writeSheet(f, sessionsSheet, sessionRows, header); err != nil {
		return nil, err
	}
	if err := writeSheet(f, devicesSheet, deviceRows, header); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	return f.WriteToBuffer()
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(rows[0]))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 24)
}
