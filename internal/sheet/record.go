// Package sheet reads tax figures out of source workbooks and writes the
// consolidated output workbook.
package sheet

import (
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

// Record is the per-file tax aggregate written to the store and the output
// workbook.
type Record struct {
	TaxID string  `json:"taxId"`
	Name  string  `json:"name"`
	CGST  float64 `json:"cgst"`
	SGST  float64 `json:"sgst"`
	Cess  float64 `json:"cess"`
	Year  int     `json:"year"`

	// SourceFile is the base name of the workbook the record came from.
	SourceFile string `json:"sourceFile,omitempty"`
}

// Extractor turns one source workbook into a Record. Implementations decide
// how rows are aggregated.
type Extractor interface {
	Extract(path string) (Record, error)
}

// Extraction failures.
var (
	ErrNoSheets      = errors.New("workbook has no sheets")
	ErrNoHeader      = errors.New("no header row with a tax id column")
	ErrMissingColumn = errors.New("missing required column")
	ErrNoDataRows    = errors.New("no data rows")
	ErrMixedTaxIDs   = errors.New("rows carry different tax ids")
	ErrBadNumber     = errors.New("invalid number")
)

// ExtractError reports why a single workbook could not be read.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return filepath.Base(e.Path) + ": " + e.Err.Error()
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Columns lists the accepted header spellings for each Record field.
// Matching ignores case, surrounding spaces, underscores and hyphens.
type Columns struct {
	TaxID []string `yaml:"tax_id" toml:"tax_id" json:"tax_id"`
	Name  []string `yaml:"name"   toml:"name"   json:"name"`
	CGST  []string `yaml:"cgst"   toml:"cgst"   json:"cgst"`
	SGST  []string `yaml:"sgst"   toml:"sgst"   json:"sgst"`
	Cess  []string `yaml:"cess"   toml:"cess"   json:"cess"`
	Year  []string `yaml:"year"   toml:"year"   json:"year"`
}

// DefaultColumns returns the built-in header aliases.
func DefaultColumns() Columns {
	return Columns{
		TaxID: []string{"gstin", "tax id", "taxid", "tax identifier"},
		Name:  []string{"name", "entity", "entity name", "legal name", "trade name"},
		CGST:  []string{"cgst", "central tax"},
		SGST:  []string{"sgst", "state tax", "sgst/utgst"},
		Cess:  []string{"cess", "cesc"},
		Year:  []string{"year", "fiscal year", "financial year", "fy"},
	}
}

// withDefaults fills empty alias lists from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if len(c.TaxID) == 0 {
		c.TaxID = d.TaxID
	}
	if len(c.Name) == 0 {
		c.Name = d.Name
	}
	if len(c.CGST) == 0 {
		c.CGST = d.CGST
	}
	if len(c.SGST) == 0 {
		c.SGST = d.SGST
	}
	if len(c.Cess) == 0 {
		c.Cess = d.Cess
	}
	if len(c.Year) == 0 {
		c.Year = d.Year
	}
	return c
}

var headerReplacer = strings.NewReplacer("_", " ", "-", " ", "\u00a0", " ")

// normalizeHeader case-folds s and collapses separators so "Tax_ID",
// " tax-id " and "TAX ID" compare equal.
func normalizeHeader(s string) string {
	s = headerReplacer.Replace(s)
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
