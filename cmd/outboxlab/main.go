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

	"github.com/joho/godotenv"

	"github.io/infrasutra/outboxlab/internal/api"
	"github.io/infrasutra/outboxlab/internal/backend"
	"github.io/infrasutra/outboxlab/internal/compose"
	"github.io/infrasutra/outboxlab/internal/config"
	"github.io/infrasutra/outboxlab/internal/dashboard"
	"github.io/infrasutra/outboxlab/internal/mailer"
	"github.io/infrasutra/outboxlab/internal/session"
	"github.io/infrasutra/outboxlab/internal/sse"
	"github.io/infrasutra/outboxlab/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	hub := sse.NewHub()

	sessions := session.NewManager(
		db,
		session.NewUserinfoClient(cfg.UserinfoURL, httpClient),
		logger,
		session.WithChangeHook(api.SessionEvents(hub, logger)),
	)
	client := backend.NewClient(cfg.APIURL, httpClient, logger)
	sync := dashboard.New(client, sessions, logger, dashboard.WithNotifier(api.NewDashboardEvents(hub, logger)))
	sessions.OnChange(sync.Follow)

	state := sessions.Hydrate(ctx)
	if state.Authenticated() {
		logger.Info("session restored", "email", state.Session.Email)
		go sync.Refresh(ctx)
	}
	composer := compose.New(sessions, client, sync.Refresh, logger)
	sender := mailer.FromConfig(cfg, logger)

	apiServer := api.NewServer(cfg, api.Services{
		Sessions:  sessions,
		Composer:  composer,
		Dashboard: sync,
		Hub:       hub,
		Mailer:    sender,
	}, logger)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr, "backend", cfg.APIURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	sync.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
}
