// Command trader runs the volume-breakout trading loop: scan the market on
// an interval (or consume the websocket stream), score candidates into
// signals and manage positions to exit, with Prometheus metrics on the side.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seojinpark/volumetrader/internal/broker"
	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/observ"
	"github.com/seojinpark/volumetrader/internal/order"
	"github.com/seojinpark/volumetrader/internal/ratelimit"
	"github.com/seojinpark/volumetrader/internal/scanner"
	sigproc "github.com/seojinpark/volumetrader/internal/signal"
	"github.com/seojinpark/volumetrader/internal/store"
	"github.com/seojinpark/volumetrader/internal/stream"
)

// monitorInterval paces the polling position monitor.
const monitorInterval = 2 * time.Second

// simStartingCash funds the sim account when no broker is wired.
const simStartingCash = 10_000_000

func main() {
	if err := run(); err != nil {
		observ.Error("fatal", err, nil)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to the YAML config")
		mode       = flag.String("mode", "", "override run mode: sim or live")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observ.Log("startup", map[string]any{
		"mode": cfg.Mode, "interval_s": cfg.Scanner.IntervalSeconds,
		"rate_limit": fmt.Sprintf("%d/%.1fs", cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds),
	})

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	st.SaveSystemLog("startup", map[string]any{"mode": cfg.Mode})
	defer st.SaveSystemLog("shutdown", nil)

	source, gateway, err := buildBroker(cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds*float64(time.Second)))
	tracker := market.NewBreakoutTracker()
	evaluator := market.NewEvaluator(cfg.Conditions)
	processor := sigproc.NewProcessor(cfg.Signal, cfg.Sizing)
	manager := order.NewManager(cfg.Risk, gateway, st)
	scan := scanner.New(cfg.Scanner, limiter, source, tracker, evaluator, st)

	var streamClient *stream.Client
	if cfg.Stream.Enabled {
		streamClient = stream.NewClient(cfg.Stream, os.Getenv(cfg.Broker.APIKeyEnv))
	}

	handler := func(cand market.Candidate, results map[string]market.ConditionResult) {
		if !evaluator.AllSatisfied(results) {
			observ.Log("candidate_waiting", map[string]any{"symbol": cand.Symbol})
			return
		}

		limiter.Acquire()
		bal, err := gateway.AccountBalance(ctx)
		if err != nil {
			observ.Error("balance_fetch_failed", err, map[string]any{"symbol": cand.Symbol})
			return
		}

		sig, outcome := processor.Process(cand, results, bal.Cash)
		if outcome != sigproc.OutcomeEmitted {
			return
		}
		o, err := manager.ExecuteSignal(ctx, sig)
		if err != nil || o == nil {
			return
		}
		if streamClient != nil {
			if err := streamClient.Subscribe(sig.Symbol); err != nil {
				observ.Error("stream_subscribe_failed", err, map[string]any{"symbol": sig.Symbol})
			}
		}
	}

	errCh := make(chan error, 3)

	go serveMetrics(ctx, cfg.MetricsAddr, errCh)
	go func() {
		scan.Run(ctx, handler)
	}()
	go monitorLoop(ctx, limiter, source, manager, streamClient)
	go sessionResetLoop(ctx, scan, manager)

	if streamClient != nil {
		go func() {
			if err := streamClient.Run(ctx, func(snap market.Snapshot) {
				manager.OnTick(ctx, snap.Symbol, snap.Price)
			}); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		observ.Log("shutdown", nil)
		return nil
	case err := <-errCh:
		return err
	}
}

// buildBroker wires either the in-process sim or the live REST client for
// both the quote and order sides.
func buildBroker(cfg config.Root) (broker.QuoteSource, broker.OrderGateway, error) {
	if cfg.Mode == "sim" {
		sim := broker.NewSim(simStartingCash)
		return sim, sim, nil
	}
	client, err := broker.NewClient(
		cfg.Broker,
		cfg.RateLimit,
		os.Getenv(cfg.Broker.APIKeyEnv),
		os.Getenv(cfg.Broker.APISecretEnv),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// monitorLoop polls quotes for every open position and feeds them to the
// exit checks. It runs alongside the stream, which delivers the same ticks
// faster; OnTick claims each exit once, so the overlap is harmless. With
// streaming on it also prunes subscriptions for positions that closed.
func monitorLoop(ctx context.Context, limiter *ratelimit.Limiter, source broker.QuoteSource, manager *order.Manager, sc *stream.Client) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, symbol := range manager.OpenSymbols() {
			if ctx.Err() != nil {
				return
			}
			limiter.Acquire()
			snap, err := source.Quote(ctx, symbol)
			if err != nil {
				observ.Error("monitor_quote_failed", err, map[string]any{"symbol": symbol})
				continue
			}
			manager.OnTick(ctx, symbol, snap.Price)
			if sc != nil {
				if _, held := manager.PositionFor(symbol); !held {
					if err := sc.Unsubscribe(symbol); err != nil {
						observ.Error("stream_unsubscribe_failed", err, map[string]any{"symbol": symbol})
					}
				}
			}
		}
	}
}

// sessionResetLoop clears per-session state shortly after each local
// midnight: the breakout set, condition histories and the daily P&L.
func sessionResetLoop(ctx context.Context, scan *scanner.Scanner, manager *order.Manager) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 5, 0, now.Location()).AddDate(0, 0, 1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			scan.ResetSession()
			manager.ResetDaily()
		}
	}
}

func serveMetrics(ctx context.Context, addr string, errCh chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	observ.Log("metrics_listening", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errCh <- err
	}
}
