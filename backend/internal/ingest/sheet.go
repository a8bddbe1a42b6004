// Package ingest parses uploaded grade sheets and validates them against a
// class roster. Nothing in this package writes state.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Grid is the 2-D cell grid of the first sheet of a workbook. Cells are
// trimmed; rows may have different lengths.
type Grid [][]string

// Cell returns the trimmed value at (row, col) or "" when out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}
	return g[row][col]
}

// BlankRow reports whether every cell of the row is empty.
func (g Grid) BlankRow(row int) bool {
	if row < 0 || row >= len(g) {
		return true
	}
	for _, c := range g[row] {
		if c != "" {
			return false
		}
	}
	return true
}

// Empty reports whether the grid holds no non-blank rows.
func (g Grid) Empty() bool {
	for i := range g {
		if !g.BlankRow(i) {
			return false
		}
	}
	return true
}

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")

var xlsxMagic = []byte("PK\x03\x04")

// ReadSheet reads the first sheet of an .xlsx workbook or a .csv file. The
// format is chosen by extension and falls back to content sniffing.
func ReadSheet(r io.Reader, filename string) (Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data)
	case ".csv":
		return readCSV(data)
	case ".xls":
		return nil, ErrUnsupportedFormat
	}

	if bytes.HasPrefix(data, xlsxMagic) {
		return readXLSX(data)
	}
	return readCSV(data)
}

func readXLSX(data []byte) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Grid{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return trimGrid(rows), nil
}

func readCSV(data []byte) (Grid, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return trimGrid(rows), nil
}

func trimGrid(rows [][]string) Grid {
	g := make(Grid, len(rows))
	for i, row := range rows {
		g[i] = make([]string, len(row))
		for j, c := range row {
			g[i][j] = strings.TrimSpace(c)
		}
	}
	return g
}
