// Vault Operator — the operator-side service for a pooled-capital trading
// vault on Cronos.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires components, serves until SIGINT/SIGTERM
//	api/server.go        — HTTP surface: lock/close triggers, activity + status reads
//	workflow/lock.go     — lock orchestrator: payment → market data → AI decision → order → lockGlobal
//	workflow/close.go    — close orchestrator: cancel → PnL → close position → report → unlockGlobal
//	payment/verifier.go  — x402 payment header verification (EIP-712 recovery, local only)
//	exchange/client.go   — signed REST client for the derivatives exchange
//	chain/client.go      — vault contract collaborator (reads, lock/unlock, PnL reporting)
//	signal/client.go     — AI decision client with defensive normalization
//	sizing/sizer.go      — decision + pool + venue constraints → venue-compliant order
//	activity/store.go    — sqlite audit trail + latest AI status
//
// How a trade happens:
//
//	The admin UI POSTs to /api/trade/lock. Without an X-Payment header the
//	service answers 402 with payment requirements; the payer's wallet signs
//	an EIP-3009 transfer authorization and retries. Once verified, the
//	service asks the AI for a decision, sizes and places an order on the
//	exchange, and locks the pool contract. /api/trade/close unwinds it:
//	close the position, report realized PnL to the vault, unlock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"vault-operator/internal/activity"
	"vault-operator/internal/api"
	"vault-operator/internal/chain"
	"vault-operator/internal/config"
	"vault-operator/internal/exchange"
	"vault-operator/internal/payment"
	aisignal "vault-operator/internal/signal"
	"vault-operator/internal/workflow"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("VAULT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Wire components
	contract, err := chain.NewClient(cfg.Wallet, logger)
	if err != nil {
		logger.Error("failed to create chain client", "error", err)
		os.Exit(1)
	}
	defer contract.Close()

	verifier, err := payment.NewVerifier(cfg.Wallet, cfg.Payment, logger)
	if err != nil {
		logger.Error("failed to create payment verifier", "error", err)
		os.Exit(1)
	}

	store, err := activity.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open activity store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer store.Close()

	exchangeClient := exchange.NewClient(cfg.Exchange, logger)
	signals := aisignal.NewClient(cfg.AI, logger)

	lock := workflow.NewLockOrchestrator(
		exchangeClient, verifier, signals, contract, store,
		cfg.Exchange.Instrument, logger,
	)
	closer := workflow.NewCloseOrchestrator(
		exchangeClient, contract, store,
		cfg.Exchange.Instrument, decimal.NewFromFloat(cfg.Exchange.FallbackPrice), logger,
	)

	handlers := api.NewHandlers(lock, closer, store, contract, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("vault operator started",
		"instrument", cfg.Exchange.Instrument,
		"vault", cfg.Wallet.VaultAddress,
		"operator", contract.SignerAddress().Hex(),
		"url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop api server", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
