// Package sheet reads the rectangular tables telegrams arrive in: xlsx
// workbooks and csv exports. The first column of every data row is the region
// label and the remaining columns hold telegram text.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// Row is one data row.
type Row struct {
	Index int      // 0-based position among data rows (header excluded)
	Line  int      // 1-based row number in the source file
	Cells []string // raw cell text, region label first
}

// Region returns the first cell, or "".
func (r Row) Region() string {
	if len(r.Cells) == 0 {
		return ""
	}
	return r.Cells[0]
}

// Telegrams returns every cell after the region label.
func (r Row) Telegrams() []string {
	if len(r.Cells) < 2 {
		return nil
	}
	return r.Cells[1:]
}

// IsBlank reports whether a cell holds nothing but whitespace.
func IsBlank(cell string) bool {
	return strings.TrimSpace(cell) == ""
}

// Table is a source of data rows. Every call to Rows starts a fresh pass.
type Table interface {
	Rows() iter.Seq2[Row, error]
}

// Options control how a file is read.
type Options struct {
	Sheet    string // xlsx sheet name; the first sheet when empty
	NoHeader bool   // the first row is data, not a header
	Comma    rune   // csv field separator; ',' when zero
}

// Open reads the table at path, choosing the reader by file extension.
func Open(path string, opts Options) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path), opts)
}

// Read reads a table from r. name is only used to pick the format.
func Read(r io.Reader, name string, opts Options) (Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, opts)
	case ".csv", ".txt":
		return ReadCSV(r, opts)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
}

// Cells is an in-memory table. Rows are data rows; there is no header.
type Cells [][]string

// Rows implements Table.
func (c Cells) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for i, cells := range c {
			if !yield(Row{Index: i, Line: i + 1, Cells: cells}, nil) {
				return
			}
		}
	}
}

// CSVTable is a csv file held in memory.
type CSVTable struct {
	data []byte
	opts Options
}

// ReadCSV buffers r so the table can be read more than once.
func ReadCSV(r io.Reader, opts Options) (*CSVTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	// Excel writes a UTF-8 BOM in front of csv exports.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return &CSVTable{data: data, opts: opts}, nil
}

// Rows implements Table.
func (t *CSVTable) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		cr := csv.NewReader(bytes.NewReader(t.data))
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		if t.opts.Comma != 0 {
			cr.Comma = t.opts.Comma
		}

		line, index := 0, 0
		for {
			cells, err := cr.Read()
			if err == io.EOF {
				return
			}
			line++
			if err != nil {
				yield(Row{}, fmt.Errorf("read csv line %d: %w", line, err))
				return
			}
			if line == 1 && !t.opts.NoHeader {
				continue
			}
			if !yield(Row{Index: index, Line: line, Cells: cells}, nil) {
				return
			}
			index++
		}
	}
}

// XLSXTable is an xlsx workbook held in memory.
type XLSXTable struct {
	file  *excelize.File
	sheet string
	opts  Options
}

// ReadXLSX loads a workbook from r.
func ReadXLSX(r io.Reader, opts Options) (*XLSXTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		_ = f.Close()
		return nil, fmt.Errorf("open xlsx: sheet %q not found", sheet)
	}

	return &XLSXTable{file: f, sheet: sheet, opts: opts}, nil
}

// Sheet returns the name of the sheet being read.
func (t *XLSXTable) Sheet() string {
	return t.sheet
}

// Close releases the workbook.
func (t *XLSXTable) Close() error {
	return t.file.Close()
}

// Rows implements Table.
func (t *XLSXTable) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rows, err := t.file.Rows(t.sheet)
		if err != nil {
			yield(Row{}, fmt.Errorf("read sheet %q: %w", t.sheet, err))
			return
		}
		defer rows.Close()

		line, index := 0, 0
		for rows.Next() {
			line++
			cells, err := rows.Columns()
			if err != nil {
				yield(Row{}, fmt.Errorf("read sheet %q row %d: %w", t.sheet, line, err))
				return
			}
			if line == 1 && !t.opts.NoHeader {
				continue
			}
			if !yield(Row{Index: index, Line: line, Cells: cells}, nil) {
				return
			}
			index++
		}
		if err := rows.Error(); err != nil {
			yield(Row{}, fmt.Errorf("read sheet %q: %w", t.sheet, err))
		}
	}
}
