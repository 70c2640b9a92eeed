package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"fvgTrader/config"
	"fvgTrader/internal/adapters/logger"
	"fvgTrader/internal/adapters/sqlstore"
	"fvgTrader/internal/analytics"
)

func main() {
	sinceStr := flag.String("since", "", "Only trades closed at or after this date (YYYY-MM-DD)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	var since time.Time
	if *sinceStr != "" {
		since, err = time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			log.Fatalf("FATAL: invalid -since: %v", err)
		}
	}

	store, err := sqlstore.Open(sqlstore.Config{Driver: cfg.DBDriver, DBPath: cfg.DBPath, DSN: cfg.DBDSN, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize store: %v", err)
	}
	defer store.Close()

	trades, err := store.ClosedTrades(ctx, since)
	if err != nil {
		log.Fatalf("FATAL: Failed to load closed trades: %v", err)
	}
	if len(trades) == 0 {
		fmt.Println("No closed trades in the journal.")
		return
	}

	printReport(analytics.Analyze(trades, cfg.AccountBalance))
}

func printReport(r *analytics.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "Trades\t%d\t(%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%.2f%%\n", r.WinRate*100)
	fmt.Fprintf(w, "Total PnL\t%.2f\n", r.TotalPnL)
	if math.IsInf(r.ProfitFactor, 1) {
		fmt.Fprintln(w, "Profit factor\tinf")
	} else {
		fmt.Fprintf(w, "Profit factor\t%.2f\n", r.ProfitFactor)
	}
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\n", r.AverageWin, r.AverageLoss)
	fmt.Fprintf(w, "Expectancy\t%.2f\n", r.Expectancy)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(w, "Streaks\t%d wins, %d losses\n", r.MaxConsecutiveWins, r.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Average hold\t%s\n", r.AverageHold.Round(time.Minute))
	fmt.Fprintf(w, "Final balance\t%.2f\t(%.2f%%)\n", r.FinalBalance, r.ReturnOnCap*100)
	w.Flush()

	fmt.Println("\n## By symbol")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tTrades\tWins\tPnL\t")
	symbols := make([]string, 0, len(r.BySymbol))
	for s := range r.BySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		st := r.BySymbol[s]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t\n", s, st.Trades, st.Wins, st.PnL)
	}
	w.Flush()

	fmt.Println("\n## By close reason")
	for reason, n := range r.ByReason {
		fmt.Printf("%s: %d\n", reason, n)
	}

	fmt.Println("\n## Monthly PnL")
	for _, m := range r.Monthly() {
		fmt.Printf("%s: %.2f\n", m.Month.Format("2006-01"), m.Return)
	}
}
