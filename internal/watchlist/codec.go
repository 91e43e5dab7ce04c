package watchlist

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/guregu/null/v6"
	"github.com/xuri/excelize/v2"

	"sector-dashboard/internal/cache"
)

// Codec caches a watchlist snapshot as CSV.
var Codec = cache.Codec[[]Entry]{
	Encode: MarshalCSV,
	Decode: UnmarshalCSV,
}

func record(e Entry) []string {
	row := []string{e.Ticker, e.Name.ValueOrZero(), e.Sector}
	if !e.Name.Valid {
		row[1] = NotAvailable
	}
	for _, f := range numericFields {
		row = append(row, f.get(&e).Text())
	}
	return row
}

// WriteCSV writes entries with a header row; unavailable fields are written as N/A.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(record(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalCSV encodes entries for the cache.
func MarshalCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalCSV decodes a payload written by MarshalCSV.
func UnmarshalCSV(payload []byte) ([]Entry, error) {
	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read watchlist csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read watchlist csv: missing header")
	}
	header := Header()
	if len(records[0]) != len(header) {
		return nil, fmt.Errorf("read watchlist csv: expected %d columns, got %d", len(header), len(records[0]))
	}

	entries := make([]Entry, 0, len(records)-1)
	for n, rec := range records[1:] {
		e := Entry{Ticker: rec[0], Sector: rec[2]}
		if rec[1] != NotAvailable {
			e.Name = null.StringFrom(rec[1])
		}
		for i, f := range numericFields {
			field, err := ParseField(rec[3+i])
			if err != nil {
				return nil, fmt.Errorf("read watchlist csv row %d: %w", n+2, err)
			}
			*f.get(&e) = field
		}
		entries = append(entries, e)
	}
	return entries, nil
}

const sheetName = "Watchlist"

// WriteXLSX writes entries to a single-sheet workbook. Unavailable fields are written as N/A.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := Header()
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Ticker, e.Name.ValueOrZero(), e.Sector}
		if !e.Name.Valid {
			row[1] = NotAvailable
		}
		for _, nf := range numericFields {
			if v := nf.get(&e); v.Available() {
				row = append(row, v.Float64)
			} else {
				row = append(row, NotAvailable)
			}
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 16); err != nil {
		return err
	}
	return f.Write(w)
}
