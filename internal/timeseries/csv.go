package timeseries

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// IndexColumn is the CSV header of the date index.
const IndexColumn = "date"

// WriteCSV writes the table with a header row; null cells are empty.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := append([]string{IndexColumn}, t.columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, d := range t.index {
		record[0] = d.Format(DateLayout)
		for j, name := range t.columns {
			record[j+1] = formatCell(t.values[name][i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a table written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("read csv: missing header")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) == 0 || header[0] != IndexColumn {
		return nil, fmt.Errorf("read csv: first column must be %q", IndexColumn)
	}
	columns := header[1:]

	var index []time.Time
	cols := make([][]null.Float, len(columns))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		d, err := time.Parse(DateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: parse date: %w", line, err)
		}
		index = append(index, d)

		for j := range columns {
			v, err := parseCell(record[j+1])
			if err != nil {
				return nil, fmt.Errorf("read csv line %d column %q: %w", line, columns[j], err)
			}
			cols[j] = append(cols[j], v)
		}
	}

	t := New(index)
	for j, name := range columns {
		vals := cols[j]
		if vals == nil {
			vals = []null.Float{}
		}
		if err := t.Set(name, vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MarshalCSV encodes t as a CSV payload.
func MarshalCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalCSV decodes a CSV payload.
func UnmarshalCSV(payload []byte) (*Table, error) {
	return ReadCSV(bytes.NewReader(payload))
}

func formatCell(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

func parseCell(s string) (null.Float, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return null.Float{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return Finite(f), nil
}
