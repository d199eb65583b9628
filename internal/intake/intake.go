// Package intake turns operator spreadsheets into validator rows.
package intake

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/ubysync/ubysync/internal/validator"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrEmpty             = errors.New("input has no header row")
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Table is a parsed input file. Row numbers follow the spreadsheet, so the
// header is row 1 and the first data row is row 2.
type Table struct {
	Source  string
	Rows    []validator.Row
	Ignored []string
}

// ReadFile picks the reader by file extension.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	defer f.Close()

	var t *Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		t, err = ReadCSV(f)
	case ".xlsx", ".xlsm":
		t, err = ReadXLSX(f)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	t.Source = path
	return t, nil
}

// ReadCSV reads comma or semicolon separated input; the separator is taken
// from the header line.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(len(utf8BOM)); bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	head, _ := br.Peek(br.Size())

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if line, _, _ := bytes.Cut(head, []byte("\n")); bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		cr.Comma = ';'
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return build(records, nil)
}

// ReadXLSX reads the first sheet. Cells are read raw so that dates arrive as
// serial numbers and can be converted without guessing the display format.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmpty
	}
	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrap(err, "read sheet")
	}
	return build(records, convertXLSXCell)
}

type cellConverter func(field validator.Field, raw string) any

func build(records [][]string, conv cellConverter) (*Table, error) {
	headerIdx := -1
	for i, rec := range records {
		if !isEmptyRow(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrEmpty
	}

	t := &Table{}
	columns := make(map[int]validator.Field)
	present := make(map[validator.Field]bool)
	for i, h := range records[headerIdx] {
		f, ok := validator.ColumnFor(h)
		if !ok {
			if strings.TrimSpace(h) != "" {
				t.Ignored = append(t.Ignored, strings.TrimSpace(h))
			}
			continue
		}
		if present[f] {
			continue
		}
		columns[i] = f
		present[f] = true
	}
	if missing := validator.MissingRequired(present); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return nil, errors.Wrap(ErrMissingColumns, strings.Join(names, ", "))
	}

	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		if isEmptyRow(rec) {
			continue
		}
		row := validator.Row{Number: i + 1, Values: make(map[validator.Field]any, len(columns))}
		for col, f := range columns {
			if col >= len(rec) {
				continue
			}
			cell := strings.TrimSpace(rec[col])
			if cell == "" {
				continue
			}
			if conv != nil {
				row.Values[f] = conv(f, cell)
			} else {
				row.Values[f] = cell
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Serial numbers below this are dates; a birth date typed as a number
// (e.g. 15051985) is far above it.
const maxDateSerial = 100000

func convertXLSXCell(f validator.Field, raw string) any {
	switch f {
	case validator.FieldBirthDate, validator.FieldArrival, validator.FieldDeparture:
	default:
		return raw
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	if f == validator.FieldBirthDate && n >= maxDateSerial {
		return n
	}
	if n <= 0 || n >= maxDateSerial {
		return raw
	}
	tm, err := excelize.ExcelDateToTime(n, false)
	if err != nil {
		return raw
	}
	return tm
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
