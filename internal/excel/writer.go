package excel

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AndresPaulino/parking-garage-report/internal/logging"
	"github.com/AndresPaulino/parking-garage-report/internal/report"
)

// headers is the fixed column order of every account sheet.
var headers = []string{
	"Date", "Start Time", "End Time", "Entries", "Exits",
	"Manual Adjustments", "Net Movement", "Occupancy",
}

// maxSheetNameLength is Excel's hard cap on sheet names.
const maxSheetNameLength = 31

// sheetNameReplacer strips the characters Excel rejects in sheet names.
var sheetNameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", "?", "-", "*", "-",
	"[", "-", "]", "-", ":", "-", "&", "-",
)

// SanitizeSheetName maps an account name onto a legal Excel sheet name. The
// 31-character cap counts characters, not bytes, so accented names never get
// cut mid-rune.
func SanitizeSheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	if name == "" {
		name = "Sheet"
	}
	if runes := []rune(name); len(runes) > maxSheetNameLength {
		name = strings.TrimSpace(string(runes[:maxSheetNameLength]))
	}
	return name
}

// Writer persists collected data into the workbook at Path.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a workbook writer. The file is created on first save if
// it does not exist; an existing workbook keeps its unrelated sheets.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{
		path:   path,
		logger: logging.NewComponentLogger(logger, "excel"),
	}
}

// Path returns the workbook location.
func (w *Writer) Path() string { return w.path }

// Save writes one sheet per account in deterministic (sorted) order. An
// account whose sheet already exists has it replaced wholesale so reruns
// never produce "Name (2)" duplicates.
func (w *Writer) Save(data report.CollectedData) error {
	if w.path == "" {
		return errors.New("workbook path not configured")
	}
	f, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	accounts := make([]string, 0, len(data))
	for name := range data {
		accounts = append(accounts, name)
	}
	sort.Strings(accounts)

	intStyle, err := f.NewStyle(&excelize.Style{NumFmt: 1})
	if err != nil {
		return fmt.Errorf("create integer style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for _, account := range accounts {
		sheet := SanitizeSheetName(account)
		if err := w.writeSheet(f, sheet, data[account], headerStyle, intStyle); err != nil {
			return fmt.Errorf("write sheet %q: %w", sheet, err)
		}
	}

	// A freshly created workbook still carries the default sheet; drop it
	// once real sheets exist.
	if created && len(accounts) > 0 {
		if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx >= 0 {
			if SanitizeSheetName(accounts[0]) != "Sheet1" {
				_ = f.DeleteSheet("Sheet1")
			}
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	w.logger.Info("workbook saved",
		logging.String("path", w.path),
		logging.Int("sheets", len(accounts)))
	return nil
}

func (w *Writer) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	// A corrupt workbook is replaced rather than aborting the run; the
	// backup file still holds every collected row.
	w.logger.Warn("existing workbook unreadable, recreating",
		logging.String("path", w.path),
		logging.Error(err))
	if removeErr := os.Remove(w.path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("remove unreadable workbook: %w", removeErr)
	}
	return excelize.NewFile(), true, nil
}

func (w *Writer) writeSheet(f *excelize.File, sheet string, rows []report.Row, headerStyle, intStyle int) error {
	if idx, err := f.GetSheetIndex(sheet); err == nil && idx >= 0 {
		// DeleteSheet silently refuses to drop a workbook's last remaining
		// sheet, which would leave stale rows from the prior run beneath the
		// rewrite. Park a placeholder so deletion is always legal.
		placeholder := placeholderName(f)
		if _, err := f.NewSheet(placeholder); err != nil {
			return fmt.Errorf("create placeholder sheet: %w", err)
		}
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("delete stale sheet: %w", err)
		}
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		if err := f.DeleteSheet(placeholder); err != nil {
			return fmt.Errorf("drop placeholder sheet: %w", err)
		}
	} else if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerRow := make([]any, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		values := []any{
			row.Date, row.StartTime, row.EndTime,
			row.Entries, row.Exits, row.ManualAdjustments,
			row.NetMovement, row.Occupancy,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	// Count columns render as whole numbers, never 12.0.
	if len(rows) > 0 {
		start, _ := excelize.CoordinatesToCellName(4, 2)
		end, _ := excelize.CoordinatesToCellName(len(headers), len(rows)+1)
		if err := f.SetCellStyle(sheet, start, end, intStyle); err != nil {
			return fmt.Errorf("style counts: %w", err)
		}
	}
	return nil
}

// placeholderName picks a sheet name not already present in the workbook.
func placeholderName(f *excelize.File) string {
	name := "__rewrite__"
	for i := 2; ; i++ {
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			return name
		}
		name = fmt.Sprintf("__rewrite%d__", i)
	}
}
