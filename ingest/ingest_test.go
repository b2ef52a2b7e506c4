package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-count/count"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// xlsxFile builds a workbook with a header row followed by rows.
func xlsxFile(t *testing.T, name string, rows ...[]any) File {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	all := append([][]any{{"REF", "CANT"}}, rows...)
	for i, row := range all {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return File{Name: name, Data: bytes.NewReader(buf.Bytes())}
}

func csvFile(name, content string) File {
	return File{Name: name, Data: strings.NewReader(content)}
}

func quantities(lines []count.CountedLine) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.Reference] = l.CountedQuantity
	}
	return out
}

// =============================================================================
// MERGE
// =============================================================================

func TestIngest_MergesAcrossFiles(t *testing.T) {
	// GIVEN: Two files that both count REF-1
	a := xlsxFile(t, "a.xlsx", []any{"REF-1", 4})
	b := xlsxFile(t, "b.xlsx", []any{"REF-1", 6}, []any{"REF-2", 1})

	// WHEN
	result, err := New(Options{}).Ingest([]File{a, b})

	// THEN: Quantities are summed per reference
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"REF-1": 10, "REF-2": 1}, quantities(result.Lines))
	assert.Empty(t, result.Failures)
}

func TestIngest_SameFileTwiceDoublesQuantities(t *testing.T) {
	rows := [][]any{{"B-2", 3}, {"A-1", 7}, {"B-2", 1}, {"C-3", 5.0}}

	once, err := New(Options{}).Ingest([]File{xlsxFile(t, "f.xlsx", rows...)})
	require.NoError(t, err)
	twice, err := New(Options{}).Ingest([]File{xlsxFile(t, "f.xlsx", rows...), xlsxFile(t, "f.xlsx", rows...)})
	require.NoError(t, err)

	single := quantities(once.Lines)
	double := quantities(twice.Lines)
	require.Len(t, double, len(single))
	for ref, qty := range single {
		assert.Equal(t, 2*qty, double[ref], "reference %s", ref)
	}
	assert.Equal(t, 4, single["B-2"])
}

func TestIngest_SortedByReference(t *testing.T) {
	result, err := New(Options{}).Ingest([]File{xlsxFile(t, "f.xlsx", []any{"Z", 1}, []any{"A", 1}, []any{"M", 1})})
	require.NoError(t, err)

	refs := make([]string, len(result.Lines))
	for i, l := range result.Lines {
		refs[i] = l.Reference
	}
	assert.Equal(t, []string{"A", "M", "Z"}, refs)
}

// =============================================================================
// ROW RULES
// =============================================================================

func TestIngest_DropsInvalidRows(t *testing.T) {
	// GIVEN: One valid row and rows that break each rule
	f := xlsxFile(t, "f.xlsx",
		[]any{"  OK-1  ", 2},
		[]any{"", 5},
		[]any{"ZERO", 0},
		[]any{"NEG", -3},
		[]any{"FRAC", 2.5},
		[]any{"TEXT", "abc"},
		[]any{"ONLYREF"},
	)

	// WHEN
	result, err := New(Options{}).Ingest([]File{f})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"OK-1": 2}, quantities(result.Lines))
	require.Len(t, result.Files, 1)
	assert.Equal(t, 1, result.Files[0].Rows)
	assert.Equal(t, 6, result.Files[0].Skipped)
}

func TestIngest_HeaderRows(t *testing.T) {
	content := "Inventory export\nREF;CANT\nREF-1;4\n"

	result, err := New(Options{HeaderRows: 2}).Ingest([]File{csvFile("count.csv", content)})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"REF-1": 4}, quantities(result.Lines))
}

func TestIngest_CSVSeparators(t *testing.T) {
	comma := csvFile("a.csv", "ref,qty\nREF-1,2\nREF-2,3\n")
	semi := csvFile("b.CSV", "ref;qty\nREF-1;5\n")

	result, err := New(Options{}).Ingest([]File{comma, semi})

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"REF-1": 7, "REF-2": 3}, quantities(result.Lines))
}

// =============================================================================
// FAILURE POLICY
// =============================================================================

func TestIngest_BadFileDoesNotAbortBatch(t *testing.T) {
	// GIVEN: A corrupt workbook, an unsupported file and a good file
	good := xlsxFile(t, "good.xlsx", []any{"REF-1", 4})
	corrupt := File{Name: "corrupt.xlsx", Data: strings.NewReader("not a zip")}
	pdf := File{Name: "count.pdf", Data: strings.NewReader("%PDF")}

	// WHEN
	result, err := New(Options{}).Ingest([]File{corrupt, good, pdf})

	// THEN: The good file is still merged and each failure is reported
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"REF-1": 4}, quantities(result.Lines))
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "corrupt.xlsx", result.Failures[0].File)
	assert.Equal(t, "count.pdf", result.Failures[1].File)
	assert.ErrorIs(t, result.Failures[1], ErrUnsupportedFormat)
}

func TestIngest_AllFilesFail(t *testing.T) {
	files := []File{
		{Name: "a.txt", Data: strings.NewReader("x")},
		{Name: "b.xlsx", Data: strings.NewReader("broken")},
	}

	result, err := New(Options{}).Ingest(files)

	assert.ErrorIs(t, err, ErrNoValidFiles)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Len(t, result.Failures, 2)
	assert.Empty(t, result.Lines)
}

func TestIngest_NoCountableRows(t *testing.T) {
	_, err := New(Options{}).Ingest([]File{xlsxFile(t, "empty.xlsx", []any{"REF", 0})})
	assert.ErrorIs(t, err, ErrNoCountedLines)
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.xlsx", "B.XLSM", "c.csv"} {
		assert.True(t, Supported(name), name)
	}
	for _, name := range []string{"a.xls", "b.pdf", "noext"} {
		assert.False(t, Supported(name), name)
	}
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		row  []string
		ref  string
		qty  int
		keep bool
	}{
		{[]string{"A", "1"}, "A", 1, true},
		{[]string{" A ", "5.0"}, "A", 5, true},
		{[]string{"A", " 3 ", "extra"}, "A", 3, true},
		{[]string{"A", ""}, "", 0, false},
		{[]string{"   ", "2"}, "", 0, false},
		{[]string{"A", "x1"}, "", 0, false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			ref, qty, ok := parseRow(tt.row)
			assert.Equal(t, tt.keep, ok)
			assert.Equal(t, tt.ref, ref)
			assert.Equal(t, tt.qty, qty)
		})
	}
}
