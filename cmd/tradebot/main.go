// Command tradebot runs the FIX trading client: it connects the quote and
// trade channels, keeps positions protected, and records every fill durably.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/client"
	"github.com/finbridge/fixtrader/internal/config"
	"github.com/finbridge/fixtrader/internal/history"
	"github.com/finbridge/fixtrader/internal/ledger"
	"github.com/finbridge/fixtrader/internal/notify"
	"github.com/finbridge/fixtrader/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	preload, err := store.Load()
	if err != nil {
		return err
	}
	log.Info("trade history loaded", zap.Int("entries", len(preload)))

	led := ledger.New(log, preload)

	notifier := notify.NewManager(log)
	notifier.AddProvider(&notify.LogProvider{Log: log})

	c := client.New(cfg, led, store, notifier, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	c.FetchSymbols(ctx)
	for _, sym := range cfg.Trading.Symbols {
		if err := c.SubscribeMarketData(sym); err != nil {
			log.Warn("market data subscription failed", zap.String("symbol", sym), zap.Error(err))
		}
	}

	// Initial state sync, then periodic convergence plus a protection pass.
	c.Resync()
	ticker := time.NewTicker(cfg.Trading.ResyncPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			c.Resync()
			// Let the position reports land before reconciling protections.
			time.Sleep(cfg.Trading.ResyncDelay)
			if err := c.ReconcileProtections(); err != nil {
				log.Warn("protection reconcile failed", zap.Error(err))
			}
		}
	}
}
