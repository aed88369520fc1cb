package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_sim/internal/app"
	"market_sim/internal/event"
	"market_sim/internal/infra"
	"market_sim/internal/server"
	"market_sim/internal/server/ws"
	"market_sim/internal/service"

	"golang.org/x/sync/errgroup"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the simulation config")
	flag.Parse()

	os.Exit(run(*configPath))
}

// run returns the process exit code. Deferred cleanup, including closing
// storage, completes before main exits.
func run(configPath string) int {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		bootstrap.Close()
		return 1
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if cfg.Debug.PprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", cfg.Debug.PprofAddr))
			if err := http.ListenAndServe(cfg.Debug.PprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Read side, feed and simulation
	event.Warmup()
	marketData := service.NewMarketDataService()
	hub := ws.NewHub(slog.Default(), infra.GlobalMetrics)

	sim, err := app.NewSimulation(cfg, bootstrap.Storage, marketData, hub)
	if err != nil {
		slog.Error("❌ Simulation setup failed", slog.Any("error", err))
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	// Sequencer (The Hotpath Loop)
	g.Go(func() error {
		sim.Sequencer().Run(runCtx)
		return nil
	})
	marketData.StartReportProcessor(runCtx)
	slog.Info("✅ Sequencer (Hotpath) started")

	// Feed
	if cfg.Feed.Addr != "" {
		srv := server.NewServer(cfg.Feed.Addr, marketData, bootstrap.Storage, infra.GlobalMetrics, hub, slog.Default())
		g.Go(func() error { return hub.Run(runCtx) })
		g.Go(srv.Start)
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Driver: stopping it (steps reached or signal) stops everything else
	g.Go(func() error {
		defer cancelRun()
		return sim.Run(runCtx)
	})

	slog.Info("✨ Market simulation fully operational. Press Ctrl+C to exit.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("❌ Simulation failed", slog.Any("error", err))
		return 1
	}

	snap := infra.GlobalMetrics.Snapshot()
	slog.Info("👋 Shut down gracefully",
		slog.Uint64("steps", snap.Steps),
		slog.Uint64("transactions", snap.Transactions),
		slog.Uint64("orders_accepted", snap.OrdersAccepted),
		slog.Uint64("orders_rejected", snap.OrdersRejected),
	)
	return 0
}
