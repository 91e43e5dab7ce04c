package timeseries

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func floats(vals ...float64) []null.Float {
	out := make([]null.Float, len(vals))
	for i, v := range vals {
		out[i] = Finite(v)
	}
	return out
}

func equalFloats(t *testing.T, got, want []null.Float) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Valid != want[i].Valid {
			t.Fatalf("index %d validity: got %v want %v", i, got[i], want[i])
		}
		if got[i].Valid && math.Abs(got[i].Float64-want[i].Float64) > 1e-9 {
			t.Fatalf("index %d: got %v want %v", i, got[i].Float64, want[i].Float64)
		}
	}
}

func TestAlignUnionIndex(t *testing.T) {
	a := Series{{Date: day(2024, 1, 3), Value: null.FloatFrom(3)}, {Date: day(2024, 1, 1), Value: null.FloatFrom(1)}}
	b := Series{{Date: day(2024, 1, 2), Value: null.FloatFrom(20)}}

	tbl, err := Align([]string{"a", "b"}, []Series{a, b})
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.Len())
	}
	colA, _ := tbl.Column("a")
	colB, _ := tbl.Column("b")
	equalFloats(t, colA, []null.Float{null.FloatFrom(1), {}, null.FloatFrom(3)})
	equalFloats(t, colB, []null.Float{{}, null.FloatFrom(20), {}})
}

func TestInterpolateTimeAware(t *testing.T) {
	index := []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 11), day(2024, 1, 12)}
	vals := []null.Float{{}, null.FloatFrom(0), {}, null.FloatFrom(10)}

	got := Interpolate(index, vals)
	// day 11 is 9 of 10 days between the anchors
	equalFloats(t, got, []null.Float{{}, null.FloatFrom(0), null.FloatFrom(9), null.FloatFrom(10)})
}

func TestInterpolateCarriesTrailingValue(t *testing.T) {
	index := []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)}
	got := Interpolate(index, []null.Float{null.FloatFrom(4), {}, {}})
	equalFloats(t, got, floats(4, 4, 4))
}

func TestInterpolateIdempotent(t *testing.T) {
	index := []time.Time{day(2024, 1, 1), day(2024, 2, 1), day(2024, 2, 10), day(2024, 4, 1), day(2024, 4, 2)}
	tbl := New(index)
	_ = tbl.Set("x", []null.Float{{}, null.FloatFrom(2), {}, null.FloatFrom(5), {}})
	_ = tbl.Set("y", []null.Float{null.FloatFrom(1), {}, {}, {}, null.FloatFrom(9)})

	once := tbl.Interpolate()
	twice := once.Interpolate()
	for _, name := range once.Columns() {
		a, _ := once.Column(name)
		b, _ := twice.Column(name)
		equalFloats(t, b, a)
	}
}

func TestRollingMeanMinPeriodsOne(t *testing.T) {
	got := RollingMean([]null.Float{null.FloatFrom(1), {}, null.FloatFrom(3), null.FloatFrom(5)}, 2)
	equalFloats(t, got, floats(1, 1, 3, 4))
}

func TestSubtractRequiresBothOperands(t *testing.T) {
	got := Subtract([]null.Float{null.FloatFrom(4), {}, null.FloatFrom(2)}, []null.Float{null.FloatFrom(1), null.FloatFrom(1), {}})
	equalFloats(t, got, []null.Float{null.FloatFrom(3), {}, {}})
}

func TestCSVRoundTripKeepsIndexAndNulls(t *testing.T) {
	tbl := New([]time.Time{day(2023, 12, 29), day(2024, 1, 2)})
	_ = tbl.Set("close", floats(101.25, 0.1+0.2))
	_ = tbl.Set("rsi", []null.Float{{}, null.FloatFrom(55)})

	payload, err := MarshalCSV(tbl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(payload), "date,close,rsi\n") {
		t.Fatalf("unexpected header: %q", payload)
	}

	back, err := UnmarshalCSV(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if strings.Join(back.Columns(), ",") != "close,rsi" {
		t.Fatalf("columns not preserved: %v", back.Columns())
	}
	if !back.Index()[1].Equal(day(2024, 1, 2)) {
		t.Fatalf("index not preserved: %v", back.Index())
	}
	closeCol, _ := back.Column("close")
	if closeCol[1].Float64 != 0.1+0.2 {
		t.Fatalf("float not round-tripped exactly: %v", closeCol[1].Float64)
	}
	rsi, _ := back.Column("rsi")
	if rsi[0].Valid {
		t.Fatal("null cell should stay null")
	}
}

func TestReadCSVRejectsMissingIndex(t *testing.T) {
	if _, err := UnmarshalCSV([]byte("close\n1\n")); err == nil {
		t.Fatal("payload without date column should fail")
	}
}

func TestSinceFilterAndYearStarts(t *testing.T) {
	tbl := New([]time.Time{day(2022, 12, 30), day(2023, 1, 3), day(2023, 6, 1), day(2024, 1, 2)})
	_ = tbl.Set("v", floats(1, 2, 3, 4))

	recent := tbl.Since(day(2023, 1, 1))
	if recent.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", recent.Len())
	}
	starts := recent.YearStarts()
	if len(starts) != 2 || !starts[0].Equal(day(2023, 1, 3)) || !starts[1].Equal(day(2024, 1, 2)) {
		t.Fatalf("unexpected year starts: %v", starts)
	}
}

func TestRenameDropSelect(t *testing.T) {
	tbl := New([]time.Time{day(2024, 1, 1)})
	_ = tbl.Set("xlk", floats(1))
	_ = tbl.Set("sp500", floats(2))
	_ = tbl.Set("xle", floats(3))

	tbl.Rename(map[string]string{"xlk": "XLK"})
	tbl.Drop("sp500")
	if strings.Join(tbl.Columns(), ",") != "XLK,xle" {
		t.Fatalf("unexpected columns: %v", tbl.Columns())
	}
	sel := tbl.Select("xle", "missing", "XLK")
	if strings.Join(sel.Columns(), ",") != "xle,XLK" {
		t.Fatalf("unexpected selection: %v", sel.Columns())
	}
}

func TestMarshalJSONSplitOrientation(t *testing.T) {
	tbl := New([]time.Time{day(2024, 1, 1)})
	_ = tbl.Set("a", []null.Float{{}})

	raw, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if string(raw) != `{"columns":["a"],"index":["2024-01-01"],"data":[[null]]}` {
		t.Fatalf("unexpected json: %s", raw)
	}
}
