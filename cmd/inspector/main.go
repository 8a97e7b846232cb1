package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GoAutonity/dripgate/internal/cdp"
	"github.com/GoAutonity/dripgate/internal/chain"
	"github.com/GoAutonity/dripgate/internal/config"
)

// Prints the faucet wallet's balances and CDP state as seen on chain.
// Handy when diagnosing a misbehaving deployment without touching it.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	wallet, err := chain.NewWallet(cfg.Wallet)
	if err != nil {
		log.Fatalf("load wallet: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := chain.NewClient(ctx, cfg.Chain, wallet)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	fmt.Println("--- Chain ---")
	fmt.Printf("ChainID: %s\n", client.ChainID())
	fmt.Printf("Wallet:  %s\n", wallet.Address().Hex())

	atn, err := client.NativeBalance(ctx, wallet.Address())
	if err != nil {
		log.Fatalf("native balance: %v", err)
	}
	ntn, err := client.TokenBalance(ctx, wallet.Address())
	if err != nil {
		log.Fatalf("token balance: %v", err)
	}
	fmt.Println("\n--- Balances ---")
	fmt.Printf("ATN: %s\n", atn)
	fmt.Printf("NTN: %s\n", ntn)

	tracker := cdp.NewTracker(
		client,
		decimal.NewFromFloat(cfg.CDP.TargetCR),
		decimal.NewFromFloat(cfg.CDP.MinCR),
		decimal.NewFromFloat(cfg.CDP.MaxCR),
	)
	status, err := tracker.GetStatus(ctx)
	if err != nil {
		log.Fatalf("cdp status: %v", err)
	}

	fmt.Println("\n--- CDP ---")
	if !status.Exists {
		fmt.Println("no open position")
		return
	}
	fmt.Printf("Collateral:    %s NTN\n", status.Collateral)
	fmt.Printf("Debt:          %s ATN\n", status.Debt)
	if status.CollateralizationRatio != nil {
		fmt.Printf("Ratio:         %s%%\n", status.CollateralizationRatio.StringFixed(2))
	}
	fmt.Printf("Health:        %s\n", status.Health)
	fmt.Printf("Liquidatable:  %v\n", status.IsLiquidatable)
	fmt.Printf("MaxBorrowable: %s ATN\n", status.MaxBorrowable)

	if action := tracker.ComputeRebalance(status); action != nil {
		fmt.Printf("\nProposed action: %s %s\n", action.Kind, action.Amount)
	}
}
