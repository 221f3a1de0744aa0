package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"

	"github.com/talgya/bazaar/internal/agents"
	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/engine"
	"github.com/talgya/bazaar/internal/journal"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

var errStopReading = errors.New("stop reading")

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func printStandings(seed int64, tick uint64, rows []engine.Standing, top int) {
	accent.Printf("\n== STANDINGS (seed %d, tick %d) ==\n", seed, tick)
	if len(rows) == 0 {
		printWarn("No traders.")
		return
	}
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}
	fmt.Printf("%-4s %-20s %14s %14s %14s %14s %8s %6s\n", "#", "NAME", "CASH", "SAVINGS", "PORTFOLIO", "P/L", "SCORE", "OWNS")
	for i, r := range rows {
		fmt.Printf("%-4d %-20s %14.2f %14.2f %14.2f %14s %8d %6d\n",
			i+1, r.Name, r.Cash, r.Savings, r.Portfolio,
			colorizeMoney(r.Cash+r.Portfolio-agents.InitialBalance), r.Score, r.Owned)
	}
}

func printMarket(quotes []economy.Quote) {
	accent.Println("\n== MARKET ==")
	if len(quotes) == 0 {
		printWarn("No listed businesses.")
		return
	}
	fmt.Printf("%-11s %-24s %12s %12s %14s %8s %12s\n", "ID", "NAME", "PRICE", "DELTA", "TREASURY", "GOODS", "GOODS AVG")
	for _, q := range quotes {
		fmt.Printf("%-11d %-24s %12.2f %12s %14.2f %8d %12.2f\n",
			q.ID, q.Name, q.StockPrice, colorizeMoney(q.StockPrice-economy.InitialStockPrice), q.Balance, q.Products, q.GoodsPrice)
	}
}

func printPrices(points []journal.PricePoint) {
	accent.Printf("\n== %s (%d) ==\n", points[0].Name, points[0].BusinessID)
	fmt.Printf("%-8s %12s %12s %14s %8s %12s\n", "TICK", "PRICE", "DEMAND", "TREASURY", "GOODS", "GOODS AVG")
	prev := sql.NullFloat64{Float64: economy.InitialStockPrice, Valid: true}
	for _, p := range points {
		change := warn.Sprint("overflow")
		if p.StockPrice.Valid && prev.Valid {
			change = colorizeMoney(p.StockPrice.Float64 - prev.Float64)
		}
		fmt.Printf("%-8d %12s %12s %14s %8d %12s   %s\n",
			p.Tick, nullMoney(p.StockPrice), nullMoney(p.StockDemand), nullMoney(p.Balance),
			p.Products, nullMoney(p.GoodsPrice), change)
		prev = p.StockPrice
	}
}

// nullMoney renders a journaled value that overflowed as n/a.
func nullMoney(v sql.NullFloat64) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

func printRun(r journal.Run, counts map[string]int) {
	status := warn.Sprint("unfinished")
	if r.FinishedAt.Valid {
		status = success.Sprintf("finished at tick %d", r.LastTick.Int64)
	}
	accent.Printf("%s ", r.ID)
	fmt.Printf("seed=%d started=%s %s\n", r.Seed, r.StartedAt.Format("2006-01-02 15:04:05"), status)
	fmt.Printf("    trades=%d rejections=%d listings=%d arrivals=%d\n",
		counts[engine.CategoryTrade], counts[engine.CategoryRejection],
		counts[engine.CategoryListing], counts[engine.CategoryPopulation])
}

func printEvent(e engine.Event) {
	line := fmt.Sprintf("[%6d] %-10s %s", e.Tick, e.Kind, e.Description)
	switch e.Category {
	case engine.CategoryRejection:
		danger.Println(line)
	case engine.CategoryListing, engine.CategoryPopulation:
		accent.Println(line)
	default:
		fmt.Println(line)
	}
}

func printSegment(path string, limit int) error {
	printed := 0
	err := journal.ReadJSONL(path, func(line json.RawMessage) error {
		if limit > 0 && printed >= limit {
			return errStopReading
		}
		var entry journal.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return err
		}
		switch {
		case entry.Event != nil:
			printEvent(*entry.Event)
		case entry.Stats != nil:
			neutral.Printf("[%6d] snapshot   npcs=%d listed=%d mean_price=%.2f\n",
				entry.Tick, entry.Stats.Population, entry.Stats.Listed, entry.Stats.MeanStockPrice)
		}
		printed++
		return nil
	})
	if errors.Is(err, errStopReading) {
		return nil
	}
	return err
}

func colorizeMoney(v float64) string {
	text := fmt.Sprintf("%+.2f", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}
