package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/engageautomations/ghl-oauth-service/audit"
	"github.com/engageautomations/ghl-oauth-service/exchange"
	"github.com/engageautomations/ghl-oauth-service/internal/config"
	"github.com/engageautomations/ghl-oauth-service/internal/database"
	"github.com/engageautomations/ghl-oauth-service/provider"
	"github.com/engageautomations/ghl-oauth-service/scheduler"
	"github.com/engageautomations/ghl-oauth-service/server"
	"github.com/engageautomations/ghl-oauth-service/sessions"
	"github.com/engageautomations/ghl-oauth-service/tokens"
)

func main() {
	log := newLogger()
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.New()
	displayAppname(cfg.GetAppName())

	store, err := database.Open(cfg.GetDatabasePath(), log)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer store.Close()

	installationRepo := database.NewInstallationRepo(store)
	tokenRepo := database.NewTokenRepo(store)
	auditStore := database.NewAuditStore(store)

	auditLog := audit.NewLogger(auditStore, log)
	defer auditLog.Close()

	providerClient := provider.NewClient(cfg, log)

	tokenManager, err := tokens.NewManager(installationRepo, tokenRepo, providerClient, auditLog, log,
		tokens.WithAccessTokenSkew(cfg.GetAccessTokenSkew()))
	if err != nil {
		return errors.Wrap(err, "creating token manager")
	}

	exchangeService, err := exchange.NewService(installationRepo, tokenRepo, providerClient, auditLog, log)
	if err != nil {
		return errors.Wrap(err, "creating exchange service")
	}

	sessionManager, err := sessions.NewManager(installationRepo, tokenRepo, tokenManager, auditLog, log,
		cfg.GetSessionSecret(), cfg.GetSessionExpiry())
	if err != nil {
		return errors.Wrap(err, "creating session manager")
	}

	refreshScheduler, err := scheduler.New(tokenRepo, tokenManager, cfg.GetRefreshLookahead(), log)
	if err != nil {
		return errors.Wrap(err, "creating refresh scheduler")
	}
	if err := refreshScheduler.Start(cfg.GetRefreshSchedule()); err != nil {
		return errors.Wrap(err, "starting refresh scheduler")
	}
	defer refreshScheduler.Stop()

	srv, err := server.New(cfg, server.Deps{
		Provider:         providerClient,
		Exchange:         exchangeService,
		Tokens:           tokenManager,
		Sessions:         sessionManager,
		InstallationRepo: installationRepo,
		TokenRepo:        tokenRepo,
		AuditReader:      auditStore,
		Health:           store.Health,
	}, log)
	if err != nil {
		return errors.Wrap(err, "creating server")
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(httpServer, log)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(httpServer *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(httpServer.Shutdown(ctx), "server.Shutdown")
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if config.New().GetEnv() == "DEV" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
