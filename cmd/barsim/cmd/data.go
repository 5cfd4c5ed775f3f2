package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/market/data"
)

// dataFlags override the config's data section.
type dataFlags struct {
	csv     string
	parquet string
	symbol  string
	start   string
	end     string
	seed    uint64
	bars    int
	model   string
}

func (d *dataFlags) add(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&d.csv, "csv", "", "load bars from a CSV file (date,open,high,low,close[,volume])")
	f.StringVar(&d.parquet, "parquet", "", "load bars from a Parquet file")
	f.StringVar(&d.symbol, "symbol", "", "symbol to read or label the bars with")
	f.StringVar(&d.start, "start", "", "first date to include (YYYY-MM-DD or RFC3339)")
	f.StringVar(&d.end, "end", "", "date to stop before (YYYY-MM-DD or RFC3339)")
	f.Uint64Var(&d.seed, "seed", 0, "synthetic: random seed")
	f.IntVar(&d.bars, "bars", 0, "synthetic: number of bars")
	f.StringVar(&d.model, "model", "", "synthetic: gbm, trending or mean_reverting")
}

func (d *dataFlags) source(cmd *cobra.Command, a *app) (data.Source, error) {
	dc := a.cfg.Data
	switch {
	case d.csv != "":
		dc.Source, dc.Path = "csv", d.csv
	case d.parquet != "":
		dc.Source, dc.Path = "parquet", d.parquet
	}
	f := cmd.Flags()
	if f.Changed("symbol") {
		dc.Symbol = strings.TrimSpace(d.symbol)
	}
	if f.Changed("start") {
		dc.Start = d.start
	}
	if f.Changed("end") {
		dc.End = d.end
	}
	if f.Changed("seed") {
		dc.Synthetic.Seed = d.seed
	}
	if f.Changed("bars") {
		dc.Synthetic.Bars = d.bars
	}
	if f.Changed("model") {
		dc.Synthetic.Model = d.model
	}
	return dc.Build()
}
