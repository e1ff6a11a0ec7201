package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"treasury/config"
	"treasury/core/runtime"
	"treasury/crypto"
	"treasury/observability/logging"
	telemetry "treasury/observability/otel"
	"treasury/sandbox"
	"treasury/services/treasuryd/adapters"
	svcconfig "treasury/services/treasuryd/config"
	"treasury/services/treasuryd/health"
	"treasury/services/treasuryd/journal"
	"treasury/services/treasuryd/keeper"
	"treasury/services/treasuryd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/treasuryd/config.yaml", "path to treasuryd configuration file")
	flag.Parse()

	cfg, err := svcconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("treasuryd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("TREASURY_ENV"))
	logOpts := logging.Options{Service: "treasuryd", Env: env, Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   true,
		}
	}
	logger := logging.SetupWithOptions(logOpts)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("treasuryd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deployment, err := config.Load(cfg.Deployment)
	if err != nil {
		log.Fatalf("treasuryd: load deployment: %v", err)
	}
	db, err := deployment.OpenDatabase()
	if err != nil {
		log.Fatalf("treasuryd: open state: %v", err)
	}
	defer db.Close()

	hub := server.NewHub(0)
	host, err := runtime.NewHost(runtime.Config{
		DB:            db,
		Pauses:        deployment.Pauses(),
		Sink:          hub,
		Logger:        logger,
		MaxOperations: cfg.MaxOperations,
	})
	if err != nil {
		log.Fatalf("treasuryd: runtime: %v", err)
	}

	var (
		stack    *sandbox.Stack
		injector *adapters.Injector
	)
	switch cfg.Mode {
	case svcconfig.ModeRemote:
		if injector, err = installRemote(host, cfg.Remote, logger); err != nil {
			log.Fatalf("treasuryd: remote collaborators: %v", err)
		}
	default:
		token, pool, fa2, err := deployment.SandboxAddresses()
		if err != nil {
			log.Fatalf("treasuryd: sandbox addresses: %v", err)
		}
		if stack, err = sandbox.Install(host, sandbox.Addresses{Token: token, Pool: pool, FA2: fa2}); err != nil {
			log.Fatalf("treasuryd: sandbox: %v", err)
		}
		logger.Warn("treasuryd: running against sandbox collaborators")
	}

	if err := deployment.Deploy(ctx, host); err != nil {
		log.Fatalf("treasuryd: deploy controllers: %v", err)
	}
	if stack != nil {
		if err := deployment.SeedSandbox(ctx, host, stack); err != nil {
			log.Fatalf("treasuryd: seed sandbox: %v", err)
		}
	}
	injectorDone := make(chan struct{})
	if injector != nil {
		go func() {
			defer close(injectorDone)
			_ = injector.Run(ctx)
		}()
	} else {
		close(injectorDone)
	}

	j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, logger)
	if err != nil {
		log.Fatalf("treasuryd: open journal: %v", err)
	}
	defer j.Close()
	host.AddObserver(j)

	names := make([]string, 0)
	for name := range host.Names() {
		names = append(names, name)
	}

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: cfg.Auth.Secret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("treasuryd: auth: %v", err)
	}
	limiter := server.NewRateLimiter(server.RateLimit{PerSecond: cfg.RateLimit.PerSecond, Burst: cfg.RateLimit.Burst})
	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, host, j, hub, auth, limiter, logger)
	if err != nil {
		log.Fatalf("treasuryd: server: %v", err)
	}

	if cfg.Keeper.Enabled {
		addr, err := crypto.DecodeAddress(cfg.Keeper.Address)
		if err != nil {
			log.Fatalf("treasuryd: keeper address: %v", err)
		}
		k, err := keeper.New(host, addr, cfg.Keeper.Controllers, cfg.Keeper.Interval.Duration, keeper.WithLogger(logger))
		if err != nil {
			log.Fatalf("treasuryd: keeper: %v", err)
		}
		go func() {
			if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("treasuryd: keeper stopped", slog.String("error", err.Error()))
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.GRPCListenAddress)
	if err != nil {
		log.Fatalf("treasuryd: grpc listen: %v", err)
	}
	hs := health.New(names, logger)
	go func() {
		if err := hs.Serve(ctx, listener); err != nil {
			logger.Error("treasuryd: grpc health stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("treasuryd: controllers deployed", slog.Int("count", len(names)), slog.String("mode", cfg.Mode))
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("treasuryd: http server: %v", err)
	}
	stop()
	<-injectorDone
}

// installRemote routes price views to the oracle endpoint and registers the
// configured remote contracts. The returned injector, nil when no remote
// contract is configured, forwards their operations after commit.
func installRemote(host *runtime.Host, cfg svcconfig.RemoteConfig, logger *slog.Logger) (*adapters.Injector, error) {
	views, err := adapters.NewOracleClient(cfg.OracleEndpoint, cfg.APIKey, cfg.Timeout.Duration)
	if err != nil {
		return nil, err
	}
	host.SetViews(views)

	remotes := make([]*adapters.RemoteContract, 0, len(cfg.Collaborators))
	for _, c := range cfg.Collaborators {
		addr, err := crypto.DecodeAddress(c.Address)
		if err != nil {
			return nil, err
		}
		remote := adapters.NewRemoteContract(addr, c.Entrypoints)
		if err := host.RegisterCollaborator(remote); err != nil {
			return nil, err
		}
		remotes = append(remotes, remote)
	}
	if len(remotes) == 0 {
		return nil, nil
	}
	injector, err := adapters.NewInjector(cfg.InjectorEndpoint, cfg.APIKey, cfg.Timeout.Duration, remotes, logger)
	if err != nil {
		return nil, err
	}
	host.AddObserver(injector)
	return injector, nil
}
