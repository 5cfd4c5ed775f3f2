package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/market"
)

// CSVSource reads OHLCV rows:
//
//	date,open,high,low,close[,volume]
//
// The header is optional and matched case-insensitively; the time column may
// be named date, time, timestamp or datetime. Without a header the columns
// are taken in the order above.
type CSVSource struct {
	Path   string
	Symbol string
	Range  Range
}

var _ Source = CSVSource{}

func (s CSVSource) Load(ctx context.Context) (market.Series, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return market.Series{}, err
	}
	defer f.Close()

	ser, err := ReadCSV(ctx, f, s.Symbol)
	if err != nil {
		return market.Series{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return s.Range.Apply(ser), nil
}

type columns struct {
	time, open, high, low, close, volume int
}

var positional = columns{0, 1, 2, 3, 4, 5}

func headerColumns(row []string) (columns, bool) {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, name := range row {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "time", "timestamp", "datetime":
			c.time = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.close = i
		case "volume":
			c.volume = i
		}
	}
	ok := c.time >= 0 && c.open >= 0 && c.high >= 0 && c.low >= 0 && c.close >= 0
	return c, ok
}

// ReadCSV parses bars from r and returns them sorted by time. Blank rows are
// skipped; a malformed row is an error naming its line.
func ReadCSV(ctx context.Context, r io.Reader, symbol string) (market.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		bars     []market.Bar
		cols     = positional
		sawFirst bool
		line     int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return market.Series{}, err
		}
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return market.Series{}, err
			}
		}
		if blank(row) {
			continue
		}

		if !sawFirst {
			sawFirst = true
			if _, err := ParseDate(row[0]); err != nil {
				c, ok := headerColumns(row)
				if !ok {
					return market.Series{}, fmt.Errorf("line %d: header needs date,open,high,low,close: %q", line, row)
				}
				cols = c
				continue
			}
		}

		b, err := parseBarRow(row, cols)
		if err != nil {
			return market.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return market.NewSeries(symbol, bars), nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseBarRow(row []string, c columns) (market.Bar, error) {
	need := max(c.time, c.open, c.high, c.low, c.close)
	if len(row) <= need {
		return market.Bar{}, fmt.Errorf("expected at least %d fields, got %d", need+1, len(row))
	}

	t, err := ParseDate(row[c.time])
	if err != nil {
		return market.Bar{}, err
	}
	b := market.Bar{Time: t}

	for _, f := range []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"open", c.open, &b.Open},
		{"high", c.high, &b.High},
		{"low", c.low, &b.Low},
		{"close", c.close, &b.Close},
	} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[f.idx]), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad %s %q: %w", f.name, row[f.idx], err)
		}
		*f.dst = v
	}

	if c.volume >= 0 && c.volume < len(row) {
		if s := strings.TrimSpace(row[c.volume]); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return market.Bar{}, fmt.Errorf("bad volume %q: %w", s, err)
			}
			b.Volume = v
		}
	}
	return b, nil
}

// WriteCSV writes s with a date,open,high,low,close,volume header. Daily
// series aligned to midnight UTC are written as plain dates.
func WriteCSV(w io.Writer, s market.Series) error {
	layout := time.RFC3339
	if dateOnly(s) {
		layout = "2006-01-02"
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for it := s.Iterator(); it.Next(); {
		b := it.Bar()
		if err := cw.Write([]string{b.Time.Format(layout), f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes s to path, creating or truncating it.
func WriteCSVFile(path string, s market.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dateOnly(s market.Series) bool {
	for it := s.Iterator(); it.Next(); {
		t := it.Bar().Time
		if t.Location() != time.UTC || !t.Equal(t.Truncate(24*time.Hour)) {
			return false
		}
	}
	return true
}
