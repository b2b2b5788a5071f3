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

	"github.com/joho/godotenv"

	"github.com/pribylovaa/gdpr-admin/internal/config"
	"github.com/pribylovaa/gdpr-admin/internal/devserver"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath string
		seedEmail  string
		seedPass   string
	)
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&seedEmail, "seed-email", "", "create an admin operator on start")
	flag.StringVar(&seedPass, "seed-password", "", "password for -seed-email")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting devserver", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	dev := devserver.New(devserver.OptionsFromConfig(cfg.DevServer, cfg.Timeouts.Request, log))
	if seedEmail != "" {
		if err := dev.AddUser(seedEmail, seedPass, "admin", "default"); err != nil {
			log.Error("seed_user_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		log.Info("seed_user_created")
	}

	dev.StartJanitor(rootCtx, 30*time.Minute)

	addr := cfg.DevServer.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           dev.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
	}

	log.Info("devserver_stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
