// Package main lists accounts that passed their challenge together with
// their live trading state. Operational tool for the funding desk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"syntax-engine/internal/config"
	"syntax-engine/internal/domain"
	"syntax-engine/internal/storage"
	pgstore "syntax-engine/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	status := flag.String("status", "passed", "Challenge status to list (passed or breached)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "postgres_dsn is required")
		os.Exit(1)
	}

	challengeStatus := domain.ChallengeStatus(*status)
	if !challengeStatus.Valid() {
		fmt.Fprintf(os.Stderr, "invalid status %q (want passed or breached)\n", *status)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	accounts := pgstore.NewAccountStore(pool)
	states := pgstore.NewTradingStateStore(pool)

	list, err := accounts.ListByChallengeStatus(ctx, challengeStatus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list accounts: %v\n", err)
		os.Exit(1)
	}

	if len(list) == 0 {
		fmt.Printf("No accounts with challenge_status = %s\n", challengeStatus)
		return
	}

	fmt.Printf("Accounts with challenge_status = %s:\n\n", challengeStatus)
	for _, account := range list {
		fmt.Printf("%s\n", account.UserEmail)
		fmt.Printf("  start: $%s  target: $%s  drawdown limit: $%s\n",
			account.StartBalance, account.ProfitTarget, account.MaxDrawdownLimit)

		state, err := states.Get(ctx, account.UserEmail)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Println("  no trading state found")
		case err != nil:
			fmt.Printf("  trading state lookup failed: %v\n", err)
		default:
			fmt.Printf("  equity: $%s  balance: $%s  status: %s\n",
				state.Equity, state.Balance, state.Status)
			fmt.Printf("  last updated: %s\n", state.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Println()
	}
}
