package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/gdpr-admin/internal/apiclient"
	"github.com/pribylovaa/gdpr-admin/internal/app"
	"github.com/pribylovaa/gdpr-admin/internal/config"
)

func main() {
	// .env необязателен: без него работают CONFIG_PATH/local.yaml/ENV.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	if flag.NArg() == 0 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	a, err := app.New(ctx, cfg,
		app.WithLogger(log),
		app.WithRegisterer(reg),
		app.WithRedirect(func(_ context.Context, loginURL string) {
			fmt.Fprintf(os.Stderr, "Session expired. Sign in again: %s\n", loginURL)
		}),
	)
	if err != nil {
		log.Error("app_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	err = run(ctx, a, flag.Args(), os.Stdout)
	if cfg.Metrics.Enabled {
		logMetrics(ctx, log, reg)
	}
	_ = a.Close()

	if err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		log.Debug("command_failed", slog.String("err", err.Error()))
		fmt.Fprintln(os.Stderr, apiclient.Message(err))
		os.Exit(1)
	}
}

// setupLogger настраивает slog по окружению. Логи идут в stderr,
// stdout остаётся за результатом команды.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// logMetrics пишет итог клиентских счётчиков одной строкой на серию.
func logMetrics(ctx context.Context, log *slog.Logger, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		log.Warn("metrics_gather_failed", slog.String("err", err.Error()))
		return
	}

	for _, f := range families {
		for _, m := range f.GetMetric() {
			attrs := []slog.Attr{slog.String("name", f.GetName())}
			for _, l := range m.GetLabel() {
				attrs = append(attrs, slog.String(l.GetName(), l.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, slog.Float64("value", m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				attrs = append(attrs, slog.Float64("value", m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				attrs = append(attrs,
					slog.Uint64("count", m.GetHistogram().GetSampleCount()),
					slog.Float64("sum", m.GetHistogram().GetSampleSum()),
				)
			}
			log.LogAttrs(ctx, slog.LevelDebug, "metric", attrs...)
		}
	}
}
