/*
Package ingest turns uploaded count spreadsheets into counted lines.

PURPOSE:
  A physical count arrives as one or more two-column tables
  (reference, quantity). Ingest parses every file, drops the rows that
  cannot be counted, and merges the rest by reference.

ROW RULES:
  - The first HeaderRows rows of every file are skipped
  - The reference cell is trimmed; an empty reference drops the row
  - The quantity must be an integral number greater than zero
    ("5" and "5.0" are kept; "2.5", "abc", "", "0" and "-3" are dropped)
  - Quantities of the same reference are summed, within and across files

FAILURE POLICY:
  Best effort per file. A file that cannot be read fails alone and is
  reported in Result.Failures; the other files are still merged.
  If every file fails, Ingest returns ErrNoValidFiles. If the files parse
  but contain no countable row, Ingest returns ErrNoCountedLines.

FORMATS:
  .xlsx / .xlsm: first worksheet (xlsx.go)
  .csv:          comma or semicolon separated (csv.go)

USAGE:
  result, err := ingest.New(ingest.Options{HeaderRows: 1}).Ingest(files)
  lines := result.Lines // sorted by reference
*/
package ingest

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/warp/stock-count/count"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoValidFiles      = errors.New("no file could be read")
	ErrNoCountedLines    = errors.New("files contain no countable rows")
	ErrEmptyWorkbook     = errors.New("workbook has no worksheet")
)

// FileError reports a file that could not be ingested.
type FileError struct {
	File string `json:"file"`
	Err  error  `json:"-"`
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TYPES
// =============================================================================

// File is one uploaded table.
type File struct {
	Name string
	Data io.Reader
}

// Options configures an Ingester.
type Options struct {
	// HeaderRows is the number of leading rows skipped in each file.
	// Zero means the default of one header row; use -1 for none.
	HeaderRows int
}

// FileReport describes what was taken from one file.
type FileReport struct {
	File    string `json:"file"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped"`
}

// Result is the merged outcome of an ingestion.
type Result struct {
	Lines    []count.CountedLine `json:"lines"`
	Files    []FileReport        `json:"files"`
	Failures []*FileError        `json:"failures,omitempty"`
}

// rowReader extracts the raw rows of a file.
type rowReader func(r io.Reader) ([][]string, error)

var readers = map[string]rowReader{
	".xlsx": readXLSX,
	".xlsm": readXLSX,
	".csv":  readCSV,
}

// Supported reports whether a file name has a readable extension.
func Supported(name string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(name))]
	return ok
}

// =============================================================================
// INGESTER
// =============================================================================

// Ingester parses count files.
type Ingester struct {
	headerRows int
}

// New creates an Ingester.
func New(opts Options) *Ingester {
	h := opts.HeaderRows
	switch {
	case h == 0:
		h = 1
	case h < 0:
		h = 0
	}
	return &Ingester{headerRows: h}
}

// Ingest parses, filters and merges files.
func (in *Ingester) Ingest(files []File) (Result, error) {
	var result Result
	totals := make(map[string]int)

	for _, f := range files {
		rows, err := in.readFile(f)
		if err != nil {
			result.Failures = append(result.Failures, &FileError{File: f.Name, Err: err})
			continue
		}
		report := FileReport{File: f.Name}
		for _, row := range rows {
			ref, qty, ok := parseRow(row)
			if !ok {
				report.Skipped++
				continue
			}
			totals[ref] += qty
			report.Rows++
		}
		result.Files = append(result.Files, report)
	}

	if len(files) > 0 && len(result.Failures) == len(files) {
		errs := make([]error, len(result.Failures))
		for i, fe := range result.Failures {
			errs[i] = fe
		}
		return result, fmt.Errorf("%w: %w", ErrNoValidFiles, errors.Join(errs...))
	}

	result.Lines = make([]count.CountedLine, 0, len(totals))
	for ref, qty := range totals {
		result.Lines = append(result.Lines, count.CountedLine{Reference: ref, CountedQuantity: qty})
	}
	sort.Slice(result.Lines, func(i, j int) bool {
		return result.Lines[i].Reference < result.Lines[j].Reference
	})

	if len(result.Lines) == 0 {
		return result, ErrNoCountedLines
	}
	return result, nil
}

func (in *Ingester) readFile(f File) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	read, ok := readers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if f.Data == nil {
		return nil, errors.New("no content")
	}
	rows, err := read(f.Data)
	if err != nil {
		return nil, err
	}
	if len(rows) <= in.headerRows {
		return nil, nil
	}
	return rows[in.headerRows:], nil
}

// parseRow applies the row rules to one raw row.
func parseRow(row []string) (string, int, bool) {
	if len(row) < 2 {
		return "", 0, false
	}
	ref := strings.TrimSpace(row[0])
	if ref == "" {
		return "", 0, false
	}
	qty, err := count.ParseQuantity(row[1])
	if err != nil || qty <= 0 {
		return "", 0, false
	}
	return ref, qty, true
}
