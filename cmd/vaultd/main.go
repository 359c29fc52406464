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
	"time"

	"stablevault/cmd/internal/passphrase"
	"stablevault/config"
	"stablevault/core"
	"stablevault/core/events"
	"stablevault/crypto"
	"stablevault/integrations/indexer"
	"stablevault/integrations/webhooks"
	"stablevault/native/common"
	"stablevault/observability/logging"
	telemetry "stablevault/observability/otel"
	"stablevault/rpc"
	"stablevault/storage"
)

const serviceName = "vaultd"

func main() {
	configFile := flag.String("config", "./vaultd.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		slog.Error("vaultd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	passSource := passphrase.NewSource(config.DefaultPassphraseEnv, "owner keystore")
	cfg, err := config.Load(configFile, config.WithPassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile := ""
	if cfg.Logging.File != "" {
		logFile = cfg.ResolvePath(cfg.Logging.File)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Logging.Env,
		Level:      cfg.Logging.Level,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, common.DefaultRoles())
	if err != nil {
		return err
	}
	node.SetLogger(logger.With(slog.String("component", "node")))

	owner, err := cfg.LoadOwnerKey()
	if err != nil {
		return fmt.Errorf("load owner key: %w", err)
	}
	sysCfg, err := cfg.SystemConfig()
	if err != nil {
		return err
	}
	sys, err := ensureSystem(node, owner.PubKey().Address(), sysCfg)
	if err != nil {
		return err
	}
	logger.Info("system ready",
		slog.String("owner", sys.Owner.String()),
		slog.String("vault", sys.Vault.String()),
		slog.String("stableToken", sys.StableToken.String()))

	hub := rpc.NewHub(logger.With(slog.String("component", "ws")))
	emitters := events.Multi{hub}
	var source rpc.EventSource
	if cfg.Indexer.Enabled {
		store, err := indexer.Open(cfg.Indexer.Driver, cfg.ResolvePath(cfg.Indexer.DSN), logger.With(slog.String("component", "indexer")))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("close indexer", slog.Any("error", err))
			}
		}()
		emitters = append(emitters, store)
		source = store
	}
	if cfg.Webhook.URL != "" {
		secret, err := cfg.WebhookSecret()
		if err != nil {
			return err
		}
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.URL, []byte(secret),
			webhooks.WithTypes(cfg.Webhook.Types...),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger.With(slog.String("component", "webhook"))))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		emitters = append(emitters, dispatcher)
	}
	node.SetEmitter(emitters)

	server, err := rpc.NewServer(node, source, hub, rpc.ServerConfig{
		Auth: rpc.AuthConfig{
			HMACSecret: secret,
			Issuer:     cfg.RPC.Issuer,
			ClockSkew:  time.Duration(cfg.RPC.ClockSkewSeconds) * time.Second,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RPC.RequestsPerMinute,
			Burst:             cfg.RPC.Burst,
		},
		AllowAnonymousReads: cfg.RPC.AllowAnonymousReads,
		ServiceName:         serviceName,
	}, logger.With(slog.String("component", "rpc")))
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.RPC.Address)
}

// ensureSystem binds the deployment recorded in the store, deploying a fresh
// one owned by owner the first time the daemon runs.
func ensureSystem(node *core.Node, owner crypto.Address, cfg core.SystemConfig) (core.System, error) {
	sys, err := node.LoadSystem()
	if err == nil {
		if !sys.Owner.Equal(owner) {
			return core.System{}, fmt.Errorf("stored deployment is owned by %s, keystore holds %s", sys.Owner, owner)
		}
		return sys, nil
	}
	if !errors.Is(err, core.ErrSystemNotDeployed) {
		return core.System{}, fmt.Errorf("load system: %w", err)
	}
	sys, err = node.DeploySystem(owner, cfg)
	if err != nil {
		return core.System{}, fmt.Errorf("deploy system: %w", err)
	}
	return sys, nil
}
