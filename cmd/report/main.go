package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
)

// report is an offline summary of paper-trading results: portfolio state,
// per-pattern performance, and the most recent closed trades.
func main() {
	godotenv.Load()
	godotenv.Load("../../.env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := database.NewRepository(db)

	line := strings.Repeat("=", 78)
	fmt.Println(line)
	fmt.Println("PAPER TRADING REPORT")
	fmt.Println(line)

	portfolios, err := repo.GetAllPortfolios(ctx)
	if err != nil {
		fmt.Printf("Failed to load portfolios: %v\n", err)
		os.Exit(1)
	}

	for _, p := range portfolios {
		fmt.Printf("\nPortfolio %q\n", p.Name)
		fmt.Printf("  Total value:   $%.2f\n", p.TotalValue)
		fmt.Printf("  Cash balance:  $%.2f\n", p.CashBalance)
		fmt.Printf("  Total P&L:     $%+.2f\n", p.TotalPnL)
		fmt.Printf("  Daily P&L:     $%+.2f\n", p.DailyPnL)

		printPositions(ctx, repo, p.ID)
		printClosedTrades(ctx, repo, p.ID)
	}

	printPatternPerformance(ctx, repo)
}

func printPositions(ctx context.Context, repo *database.Repository, portfolioID string) {
	positions, err := repo.GetPositionsByPortfolio(ctx, portfolioID)
	if err != nil {
		fmt.Printf("  Failed to load positions: %v\n", err)
		return
	}

	open := 0
	for _, pos := range positions {
		if pos.Amount <= 0 {
			continue
		}
		if open == 0 {
			fmt.Println("\n  Open positions:")
		}
		open++

		token, err := repo.GetToken(ctx, pos.TokenID)
		symbol := pos.TokenID
		current := 0.0
		if err == nil {
			symbol = token.Symbol
			current = token.CurrentPrice
		}

		value := pos.Amount * current
		unrealized := (current - pos.AvgBuyPrice) * pos.Amount
		fmt.Printf("    %-10s %12.4f @ $%.4f  value $%.2f  unrealized $%+.2f\n",
			symbol, pos.Amount, pos.AvgBuyPrice, value, unrealized)
	}
	if open == 0 {
		fmt.Println("\n  No open positions")
	}
}

func printClosedTrades(ctx context.Context, repo *database.Repository, portfolioID string) {
	trades, err := repo.GetClosedTrades(ctx, portfolioID, 0)
	if err != nil {
		fmt.Printf("  Failed to load trades: %v\n", err)
		return
	}

	wins, losses := 0, 0
	realized := 0.0
	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		realized += *t.RealizedPnL
		if *t.RealizedPnL > 0 {
			wins++
		} else {
			losses++
		}
	}

	total := wins + losses
	fmt.Printf("\n  Closed trades: %d  (wins %d, losses %d", total, wins, losses)
	if total > 0 {
		fmt.Printf(", win rate %.1f%%", float64(wins)/float64(total)*100)
	}
	fmt.Printf(")  realized $%+.2f\n", realized)

	// last few exits, newest last
	start := len(trades) - 10
	if start < 0 {
		start = 0
	}
	for _, t := range trades[start:] {
		if t.RealizedPnL == nil || t.ClosedAt == nil {
			continue
		}
		fmt.Printf("    %s  %-4s %10.4f @ $%.4f  pnl $%+.2f\n",
			t.ClosedAt.Format("2006-01-02 15:04"), t.Side, t.Amount, t.Price, *t.RealizedPnL)
	}
}

func printPatternPerformance(ctx context.Context, repo *database.Repository) {
	perfs, err := repo.GetAllPatternPerformance(ctx)
	if err != nil {
		fmt.Printf("\nFailed to load pattern performance: %v\n", err)
		return
	}
	if len(perfs) == 0 {
		fmt.Println("\nNo pattern performance recorded yet")
		return
	}

	sort.Slice(perfs, func(i, j int) bool {
		return perfs[i].TotalProfit > perfs[j].TotalProfit
	})

	fmt.Println("\nPattern performance (by total profit):")
	fmt.Printf("  %-26s %-5s %7s %9s %10s %12s %6s\n",
		"pattern", "tf", "trades", "win rate", "avg ret", "profit", "mult")
	for _, pf := range perfs {
		fmt.Printf("  %-26s %-5s %7d %8.1f%% %9.2f%% %12.2f %6.2f\n",
			pf.PatternType, pf.Timeframe, pf.TotalTrades, pf.WinRate,
			pf.AverageReturn, pf.TotalProfit, pf.ConfidenceMultiplier)
	}

	threshold, err := repo.GetLearningParam(ctx, database.ParamMinConfidence, 0)
	if err == nil && threshold > 0 {
		fmt.Printf("\nAdaptive confidence threshold: %.1f\n", threshold)
	}
}
