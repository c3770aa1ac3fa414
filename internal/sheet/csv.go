package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffLen is how much of a CSV file is inspected to guess its encoding and
// delimiter.
const sniffLen = 4096

// CSVExtractor reads comma or semicolon separated exports with the same
// header rules as HeaderExtractor. Text is decoded to UTF-8 first: a BOM wins,
// then Charset if set, then a guess between UTF-8 and Windows-1252.
type CSVExtractor struct {
	Columns Columns
	Charset string
}

// Extract implements Extractor.
func (x CSVExtractor) Extract(path string) (Record, error) {
	rec, err := x.extract(path)
	if err != nil {
		return Record{}, &ExtractError{Path: path, Err: err}
	}
	rec.SourceFile = filepath.Base(path)
	return rec, nil
}

func (x CSVExtractor) extract(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return Record{}, fmt.Errorf("read csv: %w", err)
	}

	enc, err := x.encoding(head)
	if err != nil {
		return Record{}, err
	}
	r := csv.NewReader(transform.NewReader(br, unicode.BOMOverride(enc.NewDecoder())))
	r.Comma = sniffDelimiter(head)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return Record{}, fmt.Errorf("parse csv: %w", err)
	}

	headerRow, idx, err := locateHeader(rows, x.Columns.withDefaults())
	if err != nil {
		return Record{}, err
	}
	return aggregate(rows[headerRow+1:], headerRow+2, idx)
}

func (x CSVExtractor) encoding(head []byte) (encoding.Encoding, error) {
	if x.Charset != "" {
		enc, _ := charset.Lookup(x.Charset)
		if enc == nil {
			return nil, fmt.Errorf("unknown charset %q", x.Charset)
		}
		return enc, nil
	}
	enc, _, _ := charset.DetermineEncoding(head, "text/csv")
	return enc, nil
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas, as spreadsheet exports in comma-decimal locales do.
func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// ExtractorFor returns the extractor matching a source file extension.
func ExtractorFor(ext string, cols Columns) Extractor {
	if strings.EqualFold(strings.TrimPrefix(ext, "."), "csv") {
		return CSVExtractor{Columns: cols}
	}
	return HeaderExtractor{Columns: cols}
}
