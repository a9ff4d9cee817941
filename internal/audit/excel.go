package audit

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the journal.
const SheetName = "Audit"

var exportColumns = []string{"ID", "Time", "Session", "Type", "Payload"}

// Filename returns the export file name for a run at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("audit_%s.xlsx", t.Format("2006-01-02_15-04-05"))
}

// Export writes entries as an Excel workbook to w.
func Export(w io.Writer, entries []Entry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// ExportToFile writes entries as an Excel workbook at path.
func ExportToFile(path string, entries []Entry) error {
	f, err := build(entries)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func build(entries []Entry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeRow(f, 1, toRow(exportColumns)); err != nil {
		f.Close()
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		_ = f.SetCellStyle(SheetName, "A1", endCell, style)
	}

	for i, e := range entries {
		row := []interface{}{
			e.ID,
			e.CreatedAt.Format(time.RFC3339),
			e.SessionID,
			e.Type,
			e.Payload,
		}
		if err := writeRow(f, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRow(f *excelize.File, n int, row []interface{}) error {
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, n)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func toRow(cols []string) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}
