package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/market-scout/internal/config"
	"github.com/rickgao/market-scout/internal/gateway"
	"github.com/rickgao/market-scout/internal/historical"
	"github.com/rickgao/market-scout/internal/model"
	"github.com/rickgao/market-scout/internal/poller"
	"github.com/rickgao/market-scout/internal/version"
	"github.com/rickgao/market-scout/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/scout.local.yaml", "path to config file (empty for defaults)")
	instrument := flag.String("instrument", "", "fetch one series for this instrument and exit")
	end := flag.String("end", "", `end anchor ("20240102 16:00:00", RFC 3339 or 2006-01-02; default now)`)
	duration := flag.String("duration", "", `window length, e.g. "2 D" (default from config)`)
	barSize := flag.String("bar-size", "", `bar size, e.g. "1 hour" (default from config)`)
	rth := flag.Bool("rth", false, "regular trading hours only")
	out := flag.String("out", "", "storage target for -instrument (default storage.target)")
	syncMode := flag.Bool("sync", false, "run the periodic sync for sync.instruments")
	showVersion := flag.Bool("version", false, "print the build version and exit")
	flag.Parse()

	build := version.Get()
	if *showVersion {
		fmt.Println("scout", build.String())
		return
	}

	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting scout", append(build.LogAttrs(), "config", *configPath)...)

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	level.Set(cfg.Logging.SlogLevel())

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"peer", fmt.Sprintf("%s:%d", cfg.Peer.Host, cfg.Peer.Port),
		"client_id", cfg.Peer.ClientID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	driver := gateway.NewDriver(gateway.ConfigFrom(cfg.Peer), logger)
	svc := historical.NewService(historical.ConfigFrom(cfg), driver, logger)

	// Start health server early so we can monitor the session
	var healthServer *http.Server
	if cfg.Health.Port > 0 {
		healthServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: createHealthHandler(cfg.Health.Path, svc),
		}
		go func() {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	logger.Info("connecting to gateway", "url", driver.URL(cfg.Peer.Host, cfg.Peer.Port))
	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway connected", "server_version", driver.ServerVersion(), "run_id", svc.RunID())

	exitCode := 0
	switch {
	case *instrument != "":
		req, err := oneShotRequest(*instrument, *end, *duration, *barSize, *rth)
		if err != nil {
			logger.Error("invalid request", "error", err)
			exitCode = 2
			break
		}
		target := *out
		if target == "" {
			target = cfg.Storage.Target
		}
		if err := fetchOnce(ctx, svc, req, target, logger); err != nil {
			logger.Error("fetch failed", "instrument", req.Instrument, "error", err)
			exitCode = 1
		}

	case *syncMode || len(cfg.Sync.Instruments) > 0:
		if err := runSync(ctx, cfg, svc, logger); err != nil {
			logger.Error("sync failed", "error", err)
			exitCode = 1
		}

	default:
		logger.Info("scout running, no work configured",
			"instance_id", cfg.Instance.ID,
		)
		<-ctx.Done()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Warn("session stop incomplete", "error", err)
	}
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}

	logger.Info("scout stopped")
	shutdownCancel()
	cancel()
	os.Exit(exitCode)
}

// endLayouts are the accepted -end formats, tried in order.
var endLayouts = []string{
	"20060102 15:04:05",
	time.RFC3339,
	time.DateOnly,
}

func oneShotRequest(instrument, end, duration, barSize string, rth bool) (model.Request, error) {
	req := model.Request{
		Instrument:  instrument,
		Duration:    duration,
		BarSize:     barSize,
		RegularOnly: rth,
	}
	if end == "" {
		return req, nil
	}
	for _, layout := range endLayouts {
		if t, err := time.ParseInLocation(layout, end, time.UTC); err == nil {
			req.End = t
			return req, nil
		}
	}
	return req, fmt.Errorf("unrecognized -end %q", end)
}

func fetchOnce(ctx context.Context, svc *historical.Service, req model.Request, target string, logger *slog.Logger) error {
	id, err := svc.RequestHistoricalData(ctx, req)
	if err != nil {
		return err
	}
	defer svc.Release(id)

	if err := svc.Wait(ctx, id); err != nil {
		return err
	}

	recs, err := svc.Bars(id)
	if err != nil {
		return err
	}
	attrs := []any{"req_id", id, "bars", len(recs)}
	if len(recs) > 0 {
		attrs = append(attrs, "first", recs[0].Time, "last", recs[len(recs)-1].Time)
	}
	logger.Info("series received", attrs...)

	if target == "" {
		logger.Warn("no storage target, series not saved")
		return nil
	}
	if err := svc.WriteToStorage(ctx, id, target); err != nil {
		return err
	}
	logger.Info("series saved", "target", target)
	return nil
}

func runSync(ctx context.Context, cfg *config.ScoutConfig, svc *historical.Service, logger *slog.Logger) error {
	saver, err := writer.Open(ctx, cfg.Storage.Target, writer.WriterConfigFrom(cfg.Storage), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer saver.Close()

	p := poller.New(poller.ConfigFrom(cfg.Sync), svc, saver, logger)
	if err := p.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return p.Stop(stopCtx)
}
