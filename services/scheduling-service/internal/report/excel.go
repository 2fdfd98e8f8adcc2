// Package report builds the compliance export: an Excel workbook with the
// schedule for a date window and the reschedule audit trail behind it.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/backflowhq/platform/services/scheduling-service/internal/audit"
	"github.com/backflowhq/platform/services/scheduling-service/internal/model"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
)

const (
	sheetSchedule = "Schedule"
	sheetAudit    = "Reschedule Audit"
)

// ScheduleWorkbook renders appointments and audit entries into an xlsx
// workbook and writes it to w.
func ScheduleWorkbook(w io.Writer, appts []model.Appointment, entries []audit.Entry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName("Sheet1", sheetSchedule)
	if _, err := f.NewSheet(sheetAudit); err != nil {
		return fmt.Errorf("create audit sheet: %w", err)
	}

	if err := writeScheduleSheet(f, appts); err != nil {
		return err
	}
	if err := writeAuditSheet(f, entries); err != nil {
		return err
	}
	return f.Write(w)
}

func writeScheduleSheet(f *excelize.File, appts []model.Appointment) error {
	header := []any{"Appointment ID", "Customer ID", "Device ID", "Date", "Time", "Zone", "Duration (min)", "Status", "Cancelled At", "Notes"}
	if err := writeRow(f, sheetSchedule, 1, header); err != nil {
		return err
	}
	if err := boldRow(f, sheetSchedule, 1, len(header)); err != nil {
		return err
	}

	for i, a := range appts {
		cancelledAt := ""
		if a.CancelledAt != nil {
			cancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			a.ID,
			a.CustomerID,
			a.DeviceID,
			a.ScheduledDate.Format("2006-01-02"),
			a.ScheduledTime,
			string(schedule.ResolveZone(a.ScheduledDate)),
			a.DurationMinutes,
			string(a.Status),
			cancelledAt,
			a.Notes,
		}
		if err := writeRow(f, sheetSchedule, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeAuditSheet(f *excelize.File, entries []audit.Entry) error {
	header := []any{"Appointment ID", "Actor", "Old Date", "Old Time", "New Date", "New Time", "Reason", "Recorded At"}
	if err := writeRow(f, sheetAudit, 1, header); err != nil {
		return err
	}
	if err := boldRow(f, sheetAudit, 1, len(header)); err != nil {
		return err
	}

	for i, e := range entries {
		row := []any{
			e.AppointmentID,
			e.ActorID,
			e.OldDate.Format("2006-01-02"),
			e.OldTime,
			e.NewDate.Format("2006-01-02"),
			e.NewTime,
			e.Reason,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(f, sheetAudit, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func boldRow(f *excelize.File, sheet string, rowNum, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(cols, rowNum)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}
