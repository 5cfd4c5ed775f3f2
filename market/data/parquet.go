package data

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rustyeddy/barsim/market"
)

// BarRecord is the on-disk Parquet schema for bars. A file may hold several
// symbols.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// ParquetSource reads bars for one symbol from a Parquet file. Symbol may be
// empty when the file holds a single symbol.
type ParquetSource struct {
	Path   string
	Symbol string
	Range  Range
}

var _ Source = ParquetSource{}

func (s ParquetSource) Load(ctx context.Context) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return market.Series{}, err
	}
	ser, err := ReadParquet(s.Path, s.Symbol)
	if err != nil {
		return market.Series{}, err
	}
	return s.Range.Apply(ser), nil
}

// ReadParquet loads the rows for symbol, sorted by timestamp.
func ReadParquet(path, symbol string) (market.Series, error) {
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return market.Series{}, fmt.Errorf("read %s: %w", path, err)
	}

	if symbol == "" {
		for _, r := range rows {
			if symbol == "" {
				symbol = r.Symbol
			} else if !strings.EqualFold(r.Symbol, symbol) {
				return market.Series{}, fmt.Errorf("%s holds several symbols (%s, %s); pick one", path, symbol, r.Symbol)
			}
		}
	}

	bars := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		bars = append(bars, market.Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: float64(r.Volume),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return market.NewSeries(symbol, bars), nil
}

// WriteParquet writes s to path, creating parent directories. Volume is
// rounded to whole units.
func WriteParquet(path string, s market.Series) error {
	rows := make([]BarRecord, 0, s.Len())
	for it := s.Iterator(); it.Next(); {
		b := it.Bar()
		rows = append(rows, BarRecord{
			Symbol:    s.Symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(math.Round(b.Volume)),
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
