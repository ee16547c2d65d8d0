package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meshkit/meshhost/internal/archive"
	"github.com/meshkit/meshhost/internal/bus"
	"github.com/meshkit/meshhost/internal/config"
	"github.com/meshkit/meshhost/internal/control"
	httpserver "github.com/meshkit/meshhost/internal/http"
	v1 "github.com/meshkit/meshhost/internal/http/v1"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/policy"
	"github.com/meshkit/meshhost/internal/providers/extras"
	"github.com/meshkit/meshhost/internal/providers/kvcache"
	"github.com/meshkit/meshhost/internal/runtime"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log := newLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("meshhostd exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostKey, err := keys.LoadOrGenerate(filepath.Join(cfg.DataDir, "keys"), keys.KindHost)
	if err != nil {
		return err
	}

	comps := runtime.NewWazeroComponentHost(ctx, log.Named("wasm"))
	defer func() { _ = comps.Close(context.Background()) }()

	provHost := runtime.NewBuiltinProviderHost(log.Named("providers"))
	provHost.RegisterModule(extras.ModuleName, func() runtime.ProviderModule { return extras.New() })
	provHost.RegisterModule(kvcache.ModuleName, func() runtime.ProviderModule { return kvcache.New() })

	archives := archive.NewService(filepath.Join(cfg.DataDir, "archives"), log.Named("archive"))

	var authorizer policy.Authorizer
	if len(cfg.TrustedIssuers) > 0 || len(cfg.DeniedCapabilities) > 0 {
		authorizer = &policy.CapabilityPolicy{
			TrustedIssuers:     cfg.TrustedIssuers,
			DeniedCapabilities: cfg.DeniedCapabilities,
		}
	}

	ctrl, err := control.Initialize(ctx, control.Deps{
		Bus:        bus.NewInProcess(),
		Components: comps,
		Providers:  provHost,
		Archives:   archives,
		Log:        log.Named("control"),
	}, control.Config{
		Labels:            cfg.Labels,
		Authorizer:        authorizer,
		HostKey:           hostKey,
		AllowLiveUpdates:  cfg.AllowLiveUpdates,
		StrictUpdateCheck: cfg.StrictUpdateCheck,
		CacheProviderRef:  cfg.CacheProviderRef,
		CacheConfig:       config.CacheEnv(),
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpserver.NewServer(v1.NewAPI(ctrl, archives, log.Named("http"))),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("meshhostd listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("host_id", ctrl.HostID()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zc.Build()
	if err != nil {
		return zap.NewExample()
	}
	return log
}
