package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the single sheet in the output workbook.
const SheetName = "Summary"

// Header is the first row of the output workbook.
var Header = []string{"Tax ID", "Name", "CGST", "SGST", "CESS", "Year"}

// ErrOutputExists is returned when the target path is already taken.
var ErrOutputExists = errors.New("output file already exists")

// WorkbookWriter writes output workbooks with WriteWorkbook.
type WorkbookWriter struct{}

// WriteWorkbook implements the engine's artifact writer.
func (WorkbookWriter) WriteWorkbook(path string, records []Record) error {
	return WriteWorkbook(path, records)
}

// WriteWorkbook writes a header row plus one row per record to path. The
// workbook is built in a temporary file in the same directory and renamed
// into place, so path either holds the complete workbook or does not exist.
// An existing file at path is never replaced.
func WriteWorkbook(path string, records []Record) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}

	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".taxsheet-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := f.Write(tmp); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("move workbook into place: %w", err)
	}
	committed = true
	return nil
}

func build(records []Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}

	for i, r := range records {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		row := []interface{}{r.TaxID, r.Name, r.CGST, r.SGST, r.Cess, r.Year}
		if err := f.SetSheetRow(SheetName, cellName, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20)
	_ = f.SetColWidth(SheetName, "B", "B", 32)
	_ = f.SetColWidth(SheetName, "C", "E", 14)
	return f, nil
}
