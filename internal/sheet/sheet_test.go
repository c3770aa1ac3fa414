package sheet

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows into the first sheet of a new workbook at path.
func writeWorkbook(tb testing.TB, path string, rows [][]interface{}) {
	tb.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			tb.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cellName, &r); err != nil {
			tb.Fatalf("set row %d: %v", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		tb.Fatalf("save %s: %v", path, err)
	}
}

func TestExtractSumsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acme.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"GSTIN", "Name", "CGST", "SGST", "Cess", "Year"},
		{"27aapfu0939f1zv", "Acme Traders", 100.5, 100.5, 10, 2023},
		{"27AAPFU0939F1ZV", "Acme Traders", 50, 50, "", 2024},
		{"", "Total", 150.5, 150.5, 10, ""},
	})

	rec, err := HeaderExtractor{}.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.TaxID != "27AAPFU0939F1ZV" {
		t.Errorf("TaxID = %q", rec.TaxID)
	}
	if rec.Name != "Acme Traders" {
		t.Errorf("Name = %q", rec.Name)
	}
	if rec.CGST != 150.5 || rec.SGST != 150.5 || rec.Cess != 10 {
		t.Errorf("components = %v/%v/%v, want 150.5/150.5/10", rec.CGST, rec.SGST, rec.Cess)
	}
	if rec.Year != 2024 {
		t.Errorf("Year = %d, want 2024", rec.Year)
	}
	if rec.SourceFile != "acme.xlsx" {
		t.Errorf("SourceFile = %q", rec.SourceFile)
	}
}

func TestExtractFindsHeaderBelowTitleRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titled.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"Quarterly tax statement"},
		{},
		{"Legal_Name", "Tax-ID", "Central Tax", "State Tax", "Fiscal Year"},
		{"Beta Ltd", "29ABCDE1234F1Z5", "1,200.00", "1,200.00", "2023-24"},
	})

	rec, err := HeaderExtractor{}.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.TaxID != "29ABCDE1234F1Z5" || rec.Name != "Beta Ltd" {
		t.Errorf("identity = %q/%q", rec.TaxID, rec.Name)
	}
	if rec.CGST != 1200 || rec.SGST != 1200 || rec.Cess != 0 {
		t.Errorf("components = %v/%v/%v", rec.CGST, rec.SGST, rec.Cess)
	}
	if rec.Year != 2023 {
		t.Errorf("Year = %d, want 2023", rec.Year)
	}
}

func TestExtractCustomColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"PAN", "Party", "C", "S", "Period"},
		{"X1", "Gamma", 1, 2, 2022},
	})

	x := HeaderExtractor{Columns: Columns{
		TaxID: []string{"pan"},
		Name:  []string{"party"},
		CGST:  []string{"c"},
		SGST:  []string{"s"},
		Year:  []string{"period"},
	}}
	rec, err := x.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.TaxID != "X1" || rec.CGST != 1 || rec.SGST != 2 || rec.Year != 2022 {
		t.Errorf("record = %+v", rec)
	}
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		rows [][]interface{}
		want error
	}{
		{"no header", [][]interface{}{{"a", "b"}, {1, 2}}, ErrNoHeader},
		{"missing column", [][]interface{}{{"GSTIN", "Name", "CGST"}, {"X", "Y", 1}}, ErrMissingColumn},
		{"no data", [][]interface{}{{"GSTIN", "Name", "CGST", "SGST", "Year"}}, ErrNoDataRows},
		{"mixed ids", [][]interface{}{
			{"GSTIN", "Name", "CGST", "SGST", "Year"},
			{"A", "One", 1, 1, 2024},
			{"B", "Two", 1, 1, 2024},
		}, ErrMixedTaxIDs},
		{"bad number", [][]interface{}{
			{"GSTIN", "Name", "CGST", "SGST", "Year"},
			{"A", "One", "lots", 1, 2024},
		}, ErrBadNumber},
		{"nan amount", [][]interface{}{
			{"GSTIN", "Name", "CGST", "SGST", "Year"},
			{"A", "One", "NaN", 1, 2024},
		}, ErrBadNumber},
		{"overflowing total", [][]interface{}{
			{"GSTIN", "Name", "CGST", "SGST", "Year"},
			{"A", "One", "1e308", 1, 2024},
			{"A", "One", "1e308", 1, 2024},
		}, ErrBadNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".xlsx")
			writeWorkbook(t, path, tc.rows)
			_, err := HeaderExtractor{}.Extract(path)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var xerr *ExtractError
			if !errors.As(err, &xerr) || xerr.Path != path {
				t.Errorf("expected *ExtractError for %s, got %T", path, err)
			}
		})
	}
}

func TestExtractRejectsNonWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (HeaderExtractor{}).Extract(path); err == nil {
		t.Fatal("expected error for malformed workbook")
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"":         0,
		"-":        0,
		"12":       12,
		"1,234.50": 1234.5,
		"(10.25)":  -10.25,
		"₹ 99":     99,
	}
	for _, in := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity", "(inf)"} {
		if _, err := parseAmount(in); !errors.Is(err, ErrBadNumber) {
			t.Errorf("parseAmount(%q) err = %v, want ErrBadNumber", in, err)
		}
	}
	for _, in := range []string{"NaN", "Infinity"} {
		if _, err := parseYear(in); !errors.Is(err, ErrBadNumber) {
			t.Errorf("parseYear(%q) err = %v, want ErrBadNumber", in, err)
		}
	}
	for in, want := range cases {
		got, err := parseAmount(in)
		if err != nil {
			t.Errorf("parseAmount(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseAmount(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriteWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xlsx")
	records := []Record{
		{TaxID: "A1", Name: "Alpha", CGST: 1.5, SGST: 2.5, Cess: 0, Year: 2024},
		{TaxID: "B2", Name: "Beta", CGST: 3, SGST: 4, Cess: 1, Year: 2023},
	}
	if err := WriteWorkbook(path, records); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	for i, h := range Header {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	if rows[1][0] != "A1" || rows[2][1] != "Beta" || rows[2][5] != "2023" {
		t.Errorf("unexpected data rows: %v", rows[1:])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the output file in %s, found %d entries", dir, len(entries))
	}
}

func TestWriteWorkbookRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := os.WriteFile(path, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteWorkbook(path, nil); !errors.Is(err, ErrOutputExists) {
		t.Fatalf("err = %v, want ErrOutputExists", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "keep me" {
		t.Error("existing file was modified")
	}
}

func TestWriteWorkbookMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.xlsx")
	if err := WriteWorkbook(path, []Record{{TaxID: "A"}}); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat err = %v", err)
	}
}
