package sheet

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// HeaderExtractor reads the first sheet of a workbook, locates the header row
// by its tax id column and sums the tax components of every data row below it.
// Rows without a tax id (totals, notes) are ignored.
type HeaderExtractor struct {
	Columns Columns
}

// columnIndex holds 0-based positions of each field; -1 means absent.
type columnIndex struct {
	taxID, name, cgst, sgst, cess, year int
}

// Extract implements Extractor.
func (x HeaderExtractor) Extract(path string) (Record, error) {
	rec, err := x.extract(path)
	if err != nil {
		return Record{}, &ExtractError{Path: path, Err: err}
	}
	rec.SourceFile = filepath.Base(path)
	return rec, nil
}

func (x HeaderExtractor) extract(path string) (Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return Record{}, ErrNoSheets
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return Record{}, fmt.Errorf("read rows: %w", err)
	}

	headerRow, idx, err := locateHeader(rows, x.Columns.withDefaults())
	if err != nil {
		return Record{}, err
	}
	return aggregate(rows[headerRow+1:], headerRow+2, idx)
}

// locateHeader returns the index of the first row holding a tax id header and
// the positions of every field in it.
func locateHeader(rows [][]string, cols Columns) (int, columnIndex, error) {
	lookup := make(map[string]string)
	add := func(field string, aliases []string) {
		for _, a := range aliases {
			lookup[normalizeHeader(a)] = field
		}
	}
	add("tax_id", cols.TaxID)
	add("name", cols.Name)
	add("cgst", cols.CGST)
	add("sgst", cols.SGST)
	add("cess", cols.Cess)
	add("year", cols.Year)

	for r, row := range rows {
		idx := columnIndex{-1, -1, -1, -1, -1, -1}
		for c, cell := range row {
			field, ok := lookup[normalizeHeader(cell)]
			if !ok {
				continue
			}
			slot := idx.slot(field)
			if *slot == -1 {
				*slot = c
			}
		}
		if idx.taxID == -1 {
			continue
		}
		if missing := idx.missing(); len(missing) > 0 {
			return 0, idx, fmt.Errorf("%w: %s (header row %d)", ErrMissingColumn, strings.Join(missing, ", "), r+1)
		}
		return r, idx, nil
	}
	return 0, columnIndex{}, ErrNoHeader
}

func (i *columnIndex) slot(field string) *int {
	switch field {
	case "tax_id":
		return &i.taxID
	case "name":
		return &i.name
	case "cgst":
		return &i.cgst
	case "sgst":
		return &i.sgst
	case "cess":
		return &i.cess
	default:
		return &i.year
	}
}

// missing lists the required fields without a column. Cess is optional.
func (i columnIndex) missing() []string {
	var out []string
	if i.name == -1 {
		out = append(out, "name")
	}
	if i.cgst == -1 {
		out = append(out, "cgst")
	}
	if i.sgst == -1 {
		out = append(out, "sgst")
	}
	if i.year == -1 {
		out = append(out, "year")
	}
	return out
}

// aggregate folds data rows into one Record. firstRowNum is the 1-based sheet
// row number of rows[0], used in error messages.
func aggregate(rows [][]string, firstRowNum int, idx columnIndex) (Record, error) {
	var rec Record
	n := 0
	for i, row := range rows {
		rowNum := firstRowNum + i
		id := strings.ToUpper(cell(row, idx.taxID))
		if id == "" {
			continue
		}
		if n == 0 {
			rec.TaxID = id
			rec.Name = cell(row, idx.name)
		} else if id != rec.TaxID {
			return Record{}, fmt.Errorf("%w: %s and %s (row %d)", ErrMixedTaxIDs, rec.TaxID, id, rowNum)
		}

		cgst, err := parseAmount(cell(row, idx.cgst))
		if err != nil {
			return Record{}, fmt.Errorf("row %d cgst: %w", rowNum, err)
		}
		sgst, err := parseAmount(cell(row, idx.sgst))
		if err != nil {
			return Record{}, fmt.Errorf("row %d sgst: %w", rowNum, err)
		}
		cess, err := parseAmount(cell(row, idx.cess))
		if err != nil {
			return Record{}, fmt.Errorf("row %d cess: %w", rowNum, err)
		}
		year, err := parseYear(cell(row, idx.year))
		if err != nil {
			return Record{}, fmt.Errorf("row %d year: %w", rowNum, err)
		}

		rec.CGST += cgst
		rec.SGST += sgst
		rec.Cess += cess
		if year > rec.Year {
			rec.Year = year
		}
		n++
	}
	if n == 0 {
		return Record{}, ErrNoDataRows
	}
	if math.IsInf(rec.CGST, 0) || math.IsInf(rec.SGST, 0) || math.IsInf(rec.Cess, 0) {
		return Record{}, fmt.Errorf("%w: total out of range", ErrBadNumber)
	}
	return rec, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var amountReplacer = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "₹", "")

// parseAmount accepts formatted numbers such as "1,234.50" or "(12.00)".
// An empty cell is zero.
func parseAmount(s string) (float64, error) {
	s = amountReplacer.Replace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// parseYear reads "2024", "2024.0" or a fiscal year such as "2023-24"
// (which yields its first year).
func parseYear(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty year", ErrBadNumber)
	}
	if len(s) >= 4 {
		if y, err := strconv.Atoi(s[:4]); err == nil && (len(s) == 4 || !isDigit(s[4])) {
			return y, nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return int(v), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
