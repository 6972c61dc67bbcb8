package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/api"
	audithook "github.com/xraph/paywall/audit_hook"
	"github.com/xraph/paywall/config"
	"github.com/xraph/paywall/entitlement/redis"
	kafkahook "github.com/xraph/paywall/kafka_hook"
	"github.com/xraph/paywall/observability"
	"github.com/xraph/paywall/provider/card"
	"github.com/xraph/paywall/provider/signed"
	"github.com/xraph/paywall/provider/wallet"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, _ := cfg.Level() //nolint:errcheck // validated by Load
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	engine, err := buildEngine(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start paywall: %w", err)
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Warn("paywall stop failed", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(engine, cfg, logger, reg),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("paywall listening", "addr", cfg.Addr, "version", Version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("paywall stopped")
	return nil
}

// buildEngine wires the engine and its plugins from cfg.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*paywall.Paywall, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	opts := []paywall.Option{
		paywall.WithLogger(logger),
		paywall.WithPolicy(policy),
		paywall.WithCacheTTL(cfg.CacheTTL),
		paywall.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		paywall.WithPlugin(audithook.New(audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
			logger.InfoContext(ctx, "audit",
				"action", ev.Action,
				"resource_id", ev.ResourceID,
				"outcome", ev.Outcome,
				"severity", ev.Severity,
				"reason", ev.Reason,
			)
			return nil
		}), audithook.WithLogger(logger))),
	}

	if cfg.CardEnabled() {
		opts = append(opts, paywall.WithAdapter(card.New(cfg.Card, card.WithLogger(logger))))
	}
	if cfg.SignedEnabled() {
		opts = append(opts, paywall.WithAdapter(signed.New(cfg.Signed, signed.WithLogger(logger))))
	}
	if cfg.WalletEnabled() {
		opts = append(opts, paywall.WithAdapter(wallet.New(cfg.Wallet, wallet.WithLogger(logger))))
	}

	if cfg.RedisURL != "" {
		cache, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, paywall.WithCache(cache))
	}

	if cfg.Kafka.Brokers != "" {
		w := kafkahook.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts = append(opts, paywall.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(logger))))
	}

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.Info("paywall store opened", "driver", cfg.Store.Driver)
	return paywall.New(s, opts...), nil
}

func newRouter(engine *paywall.Paywall, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Store().Ping(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Mount("/", api.NewHandler(engine,
		api.WithLogger(logger),
		api.WithTimeout(cfg.RequestTimeout),
	).Routes())
	return r
}
